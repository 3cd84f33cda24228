package drivea

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kestrelframe/photosync/internal/provider"
	"github.com/kestrelframe/photosync/internal/providercommon"
)

// Config holds everything needed to construct a Provider.
type Config struct {
	// DriveID is the remote drive identifier to scan, e.g. "me" or a
	// explicit drive ID returned by the API's /me/drives endpoint.
	DriveID string
	// TokenPath is the on-disk location of the persisted OAuth2 token.
	TokenPath string
	// BaseURL overrides DefaultBaseURL; tests point this at an httptest server.
	BaseURL string
	// HTTPClient overrides the default client; tests inject one with a
	// short timeout or custom transport.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Provider implements provider.Provider against a Graph-shaped API.
type Provider struct {
	driveID   string
	tokenPath string
	baseURL   string
	logger    *slog.Logger

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

	p := &Provider{
		driveID:   cfg.DriveID,
		tokenPath: cfg.TokenPath,
		baseURL:   baseURL,
		logger:    logger,
	}

	if cfg.HTTPClient != nil {
		p.client = newClient(baseURL, cfg.HTTPClient, nil, logger)
	}

	return p
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return Name }

// Initialize implements provider.Provider: it loads the persisted token and
// builds the authenticated HTTP client.
func (p *Provider) Initialize(ctx context.Context) error {
	ts, err := tokenSourceFromPath(ctx, p.tokenPath, p.logger)
	if err != nil {
		return err
	}

	httpClient := http.DefaultClient
	if p.client != nil {
		httpClient = p.client.httpClient
	}

	p.client = newClient(p.baseURL, httpClient, ts, p.logger)

	return nil
}

// IsReachable implements provider.Provider.
func (p *Provider) IsReachable(ctx context.Context) bool {
	return providercommon.IsReachable(ctx, p.baseURL)
}

// ScanFolder implements provider.Provider.
func (p *Provider) ScanFolder(ctx context.Context, folderID string, maxDepth int) provider.PhotoSeq {
	return p.scanFolder(ctx, folderID, maxDepth)
}

// InitialCursor implements provider.Provider.
func (p *Provider) InitialCursor(ctx context.Context) (string, error) {
	return p.initialCursor(ctx)
}

// ChangesSince implements provider.Provider.
func (p *Provider) ChangesSince(ctx context.Context, cursor string) (provider.ChangeSeq, func() string, error) {
	return p.changesSince(ctx, cursor)
}

// DownloadContent implements provider.Provider.
func (p *Provider) DownloadContent(ctx context.Context, photoID string, timeout time.Duration) (io.ReadCloser, error) {
	return p.downloadContent(ctx, photoID, timeout)
}

var _ provider.Provider = (*Provider)(nil)
