// Package provider defines the capability contract that every photo source
// must satisfy plus the sentinel errors the rest of the system classifies
// failures against. Concrete sources live in sibling packages (drivea,
// cloudb) and are selected at runtime by name.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"time"
)

// Sentinel errors classify provider failures into the kinds the sync
// controller and cache engine branch on. Providers return them as the Kind
// of an *Error, whose Unwrap yields that sentinel, so callers classify with
// errors.Is; the concrete transport error is kept in Error.Cause.
var (
	ErrConfiguration  = errors.New("provider: configuration error")
	ErrAuthentication = errors.New("provider: authentication error")
	ErrNetwork        = errors.New("provider: network error")
	ErrRateLimited    = errors.New("provider: rate limited")
	ErrNotFound       = errors.New("provider: not found")
	ErrValidation     = errors.New("provider: validation error")
	ErrCancelled      = errors.New("provider: cancelled")
)

// Error wraps a sentinel with provider name, operation, and the concrete
// cause so logs carry enough context to debug. It has no separate message
// field; Error() builds its text from Provider, Operation and Cause (or Kind).
type Error struct {
	Provider  string
	Operation string
	Kind      error
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Operation, e.Cause)
	}

	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Operation, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Photo is a normalized remote photo record, independent of any provider's
// native wire format.
type Photo struct {
	ID          string
	FolderID    string
	Name        string
	MimeType    string
	SizeBytes   int64
	ContentHash string
	Width       int
	Height      int
	CapturedAt  time.Time
	ModifiedAt  time.Time

	// AncestorIDs is the chain of folder ids above FolderID, nearest
	// first, as far as the provider observed it: a recursive scan knows
	// the full chain back to the scan root, a flat change feed may know
	// nothing beyond FolderID itself. Callers use it to reconstruct
	// folder ancestry without a second walk.
	AncestorIDs []string
}

// FolderEdge links a folder to its immediate parent, as observed in a
// change feed.
type FolderEdge struct {
	FolderID string
	ParentID string
}

// ChangeKind distinguishes the shapes of incremental change a provider
// can report.
type ChangeKind int

const (
	ChangeUpserted ChangeKind = iota
	ChangeDeleted
	// ChangeFolder reports a folder's parent link rather than a photo;
	// consumers use these to keep their picture of the folder hierarchy
	// current as folders are created or moved between scans.
	ChangeFolder
)

// Change is one entry of an incremental delta/changes feed.
type Change struct {
	Kind   ChangeKind
	Photo  Photo      // zero value for ChangeDeleted except ID; unused for ChangeFolder
	Folder FolderEdge // set only for ChangeFolder
}

// PhotoSeq is a finite lazy sequence of photos discovered by a folder scan.
// Iteration stops early if the yield function returns false; an error
// encountered mid-scan is reported via the second value on the final yield.
type PhotoSeq = iter.Seq2[Photo, error]

// ChangeSeq is a finite lazy sequence of incremental changes.
type ChangeSeq = iter.Seq2[Change, error]

// Provider is the capability contract a cloud photo source must implement.
// Implementations are expected to be safe for concurrent use by multiple
// goroutines calling different methods, but a single provider value is
// normally owned by one sync controller instance.
type Provider interface {
	// Name identifies the provider for logging and configuration, e.g. "drivea".
	Name() string

	// Initialize prepares the provider for use (loads and validates the
	// persisted token, builds the underlying transport). It must be called
	// once before any other method.
	Initialize(ctx context.Context) error

	// IsReachable performs a cheap connectivity probe. It never returns an
	// error; callers branch on the boolean.
	IsReachable(ctx context.Context) bool

	// ScanFolder lazily enumerates every photo found under folderID, up to
	// maxDepth levels of nested folders (0 means folderID itself only,
	// negative means unlimited). The returned sequence is finite.
	ScanFolder(ctx context.Context, folderID string, maxDepth int) PhotoSeq

	// InitialCursor returns the cursor value representing "no changes
	// observed yet" for use with the first call to ChangesSince.
	InitialCursor(ctx context.Context) (string, error)

	// ChangesSince lazily enumerates every change recorded after cursor and
	// returns the cursor to resume from on the next call. The cursor should
	// only be persisted by the caller once the sequence has been fully
	// drained without error.
	ChangesSince(ctx context.Context, cursor string) (ChangeSeq, func() string, error)

	// DownloadContent streams the bytes of a single photo. The caller must
	// close the returned ReadCloser.
	DownloadContent(ctx context.Context, photoID string, timeout time.Duration) (io.ReadCloser, error)
}
