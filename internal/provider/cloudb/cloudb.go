// Package cloudb implements the provider.Provider contract against a
// Dropbox-shaped cursor/cloudb API: list_folder + list_folder/continue for
// enumeration, list_folder/continue again (seeded with a saved cursor) for
// incremental changes, and direct-content download endpoints. It exists as
// a second, independent conformance of provider.Provider so the rest of
// the system depends only on the interface, never on drivea's shape.
package cloudb

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kestrelframe/photosync/internal/provider"
	"github.com/kestrelframe/photosync/internal/providercommon"
)

// Name identifies this conformance in logs and configuration.
const Name = "cloudb"

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.cloudb.example.com/2"

// DefaultContentURL is the root for content (download) endpoints, which
// this API shape serves from a separate host than metadata calls.
const DefaultContentURL = "https://content.cloudb.example.com/2"

// Config holds everything needed to construct a Provider.
type Config struct {
	TokenPath  string
	BaseURL    string
	ContentURL string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Provider implements provider.Provider against the cloudb API shape.
type Provider struct {
	tokenPath  string
	baseURL    string
	contentURL string
	logger     *slog.Logger

	client *client
}

// New constructs a Provider. Call Initialize before using it.
func New(cfg Config) *Provider {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	contentURL := cfg.ContentURL
	if contentURL == "" {
		contentURL = DefaultContentURL
	}

	p := &Provider{tokenPath: cfg.TokenPath, baseURL: baseURL, contentURL: contentURL, logger: logger}

	if cfg.HTTPClient != nil {
		p.client = newClient(baseURL, contentURL, cfg.HTTPClient, nil, logger)
	}

	return p
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Initialize(ctx context.Context) error {
	ts, err := tokenSourceFromPath(ctx, p.tokenPath, p.logger)
	if err != nil {
		return err
	}

	httpClient := http.DefaultClient
	if p.client != nil {
		httpClient = p.client.httpClient
	}

	p.client = newClient(p.baseURL, p.contentURL, httpClient, ts, p.logger)

	return nil
}

func (p *Provider) IsReachable(ctx context.Context) bool {
	return providercommon.IsReachable(ctx, p.baseURL)
}

func (p *Provider) ScanFolder(ctx context.Context, folderID string, maxDepth int) provider.PhotoSeq {
	return p.scanFolder(ctx, folderID, maxDepth)
}

func (p *Provider) InitialCursor(ctx context.Context) (string, error) {
	return p.initialCursor(ctx, rootFolderForCursor)
}

func (p *Provider) ChangesSince(ctx context.Context, cursor string) (provider.ChangeSeq, func() string, error) {
	return p.changesSince(ctx, cursor)
}

func (p *Provider) DownloadContent(ctx context.Context, photoID string, timeout time.Duration) (io.ReadCloser, error) {
	return p.downloadContent(ctx, photoID, timeout)
}

// rootFolderForCursor seeds InitialCursor's recursive list_folder call. The
// API this conformance models always watches the whole account from the
// root, unlike drivea's per-folder delta scoping.
const rootFolderForCursor = ""

var _ provider.Provider = (*Provider)(nil)
