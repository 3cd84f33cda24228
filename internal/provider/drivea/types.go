package drivea

import (
	"log/slog"
	"strings"
	"time"
)

// Name identifies this conformance in logs and configuration.
const Name = "drivea"

// minValidYear/maxValidYear bound plausible timestamps; anything outside is
// replaced with the current time and logged rather than propagated as-is.
const (
	minValidYear = 1970
	maxValidYear = 2100
)

// imageMimePrefix is used to filter scan results down to photo content —
// folders and non-image files are skipped by the caller, not here.
const imageMimePrefix = "image/"

// driveItemResponse mirrors the Graph API driveItem JSON shape used by both
// the children-listing and delta endpoints.
type driveItemResponse struct {
	ID                   string       `json:"id"`
	Name                 string       `json:"name"`
	Size                 int64        `json:"size"`
	CTag                 string       `json:"cTag"`
	CreatedDateTime      string       `json:"createdDateTime"`
	LastModifiedDateTime string       `json:"lastModifiedDateTime"`
	ParentReference      *parentRef   `json:"parentReference"`
	File                 *fileFacet   `json:"file"`
	Folder               *folderFacet `json:"folder"`
	Photo                *photoFacet  `json:"photo"`
	Image                *imageFacet  `json:"image"`
	Deleted              *struct{}    `json:"deleted"`
	DownloadURL          string       `json:"@microsoft.graph.downloadUrl"` //nolint:tagliatelle
}

type parentRef struct {
	ID string `json:"id"`
}

type fileFacet struct {
	MimeType string `json:"mimeType"`
}

type folderFacet struct {
	ChildCount int `json:"childCount"`
}

// photoFacet signals the item has camera metadata; its presence (even with
// no fields populated) is how the API marks an item as a photo.
type photoFacet struct {
	TakenDateTime string `json:"takenDateTime"`
}

// imageFacet carries the pixel dimensions Graph reports for image items.
type imageFacet struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// isImage reports whether this item should be treated as a photo.
func (d *driveItemResponse) isImage() bool {
	if d.Folder != nil || d.Deleted != nil {
		return false
	}

	if d.Photo != nil {
		return true
	}

	return d.File != nil && strings.HasPrefix(d.File.MimeType, imageMimePrefix)
}

// remotePhoto converts a driveItemResponse into the package-local photo
// record used by scan.go and changes.go before final normalization into
// provider.Photo.
type remotePhoto struct {
	id          string
	folderID    string
	name        string
	mimeType    string
	sizeBytes   int64
	contentHash string
	width       int
	height      int
	capturedAt  time.Time
	modifiedAt  time.Time
}

func toRemotePhoto(d *driveItemResponse, logger *slog.Logger) remotePhoto {
	rp := remotePhoto{
		id:          d.ID,
		name:        d.Name,
		sizeBytes:   d.Size,
		contentHash: d.CTag,
	}

	if d.ParentReference != nil {
		rp.folderID = d.ParentReference.ID
	}

	if d.File != nil {
		rp.mimeType = d.File.MimeType
	}

	if d.Image != nil {
		rp.width = d.Image.Width
		rp.height = d.Image.Height
	}

	capturedRaw := d.LastModifiedDateTime
	if d.Photo != nil && d.Photo.TakenDateTime != "" {
		capturedRaw = d.Photo.TakenDateTime
	}

	rp.capturedAt = parseTimestamp(capturedRaw, "takenDateTime", d.ID, logger)
	rp.modifiedAt = parseTimestamp(d.LastModifiedDateTime, "lastModifiedDateTime", d.ID, logger)

	return rp
}

// parseTimestamp parses an RFC3339 timestamp, falling back to the current
// time (and a debug log) for empty, malformed, or implausible values.
func parseTimestamp(raw, field, itemID string, logger *slog.Logger) time.Time {
	if raw == "" {
		logger.Debug("empty timestamp, using current time", slog.String("field", field), slog.String("item_id", itemID))

		return time.Now().UTC()
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		logger.Debug("invalid timestamp, using current time",
			slog.String("field", field), slog.String("item_id", itemID), slog.String("raw", raw))

		return time.Now().UTC()
	}

	if t.Year() < minValidYear || t.Year() > maxValidYear {
		logger.Debug("timestamp out of valid range, using current time",
			slog.String("field", field), slog.String("item_id", itemID), slog.String("raw", raw))

		return time.Now().UTC()
	}

	return t
}
