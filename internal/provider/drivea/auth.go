package drivea

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/kestrelframe/photosync/internal/provider"
	"github.com/kestrelframe/photosync/internal/providercommon"
	"github.com/kestrelframe/photosync/internal/tokenfile"
)

// defaultClientID is the public, multi-tenant application registration used
// for the device-code flow. It has no associated secret — public clients
// never hold one.
const defaultClientID = "8efac532-bbe7-4bc5-919c-1443ccab860a"

var defaultScopes = []string{"offline_access", "Files.Read.All", "User.Read"}

// ErrNotLoggedIn is returned when no token file exists at the configured path.
var ErrNotLoggedIn = errors.New("drivea: not logged in")

// DeviceAuth holds the fields a caller displays to the user during the
// device-code flow.
type DeviceAuth struct {
	UserCode        string
	VerificationURI string
}

func oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID: defaultClientID,
		Scopes:   defaultScopes,
		Endpoint: microsoft.AzureADEndpoint("common"),
	}
}

// Login runs the OAuth2 device-code flow: requests a device code, invokes
// display so the caller can show the user code and verification URL, polls
// until authorized, and persists the resulting token at tokenPath.
func Login(ctx context.Context, tokenPath string, display func(DeviceAuth), logger *slog.Logger) (*tokenSourceHandle, error) {
	cfg := oauthConfig()

	logger.Info("starting device code auth flow", slog.String("path", tokenPath))

	da, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("drivea: device auth request failed: %w", err)
	}

	display(DeviceAuth{UserCode: da.UserCode, VerificationURI: da.VerificationURI})

	tok, err := cfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("drivea: device code authorization failed: %w", err)
	}

	if saveErr := tokenfile.Save(tokenPath, tok, nil); saveErr != nil {
		return nil, fmt.Errorf("drivea: saving token: %w", saveErr)
	}

	logger.Info("login successful", slog.String("path", tokenPath), slog.Time("expiry", tok.Expiry))

	return newTokenSourceHandle(ctx, cfg, tok, tokenPath, nil, logger), nil
}

// Logout removes the saved token file at tokenPath. A missing file is not
// an error — it means the caller is already logged out.
func Logout(tokenPath string, logger *slog.Logger) error {
	err := os.Remove(tokenPath)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("logout: no token file to remove", slog.String("path", tokenPath))

		return nil
	}

	if err != nil {
		return fmt.Errorf("drivea: removing token file: %w", err)
	}

	logger.Info("logout: removed token file", slog.String("path", tokenPath))

	return nil
}

// tokenSourceHandle wraps a providercommon.PersistingTokenSource behind the
// tokenSource interface client.go expects, keeping oauth2 types out of the
// provider.Provider boundary.
type tokenSourceHandle struct {
	*providercommon.PersistingTokenSource
}

// tokenRefreshMargin is how far ahead of expiry a token is proactively
// refreshed, per the token refresh contract.
const tokenRefreshMargin = 5 * time.Minute

func newTokenSourceHandle(
	ctx context.Context, cfg *oauth2.Config, tok *oauth2.Token, tokenPath string, meta map[string]string, logger *slog.Logger,
) *tokenSourceHandle {
	src := oauth2.ReuseTokenSourceWithExpiry(tok, cfg.TokenSource(ctx, tok), tokenRefreshMargin)

	return &tokenSourceHandle{
		PersistingTokenSource: providercommon.NewPersistingTokenSource(src, tokenPath, tok, meta, logger),
	}
}

// tokenSourceFromPath loads a previously saved token and wraps it in a
// refreshing, persisting token source. Returns ErrNotLoggedIn if no token
// file exists.
func tokenSourceFromPath(ctx context.Context, tokenPath string, logger *slog.Logger) (*tokenSourceHandle, error) {
	tok, meta, err := tokenfile.Load(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("drivea: loading token: %w", err)
	}

	if tok == nil {
		return nil, &provider.Error{Provider: Name, Operation: "Initialize", Kind: provider.ErrAuthentication, Cause: ErrNotLoggedIn}
	}

	expired := !tok.Expiry.IsZero() && tok.Expiry.Before(time.Now())
	logger.Info("loaded saved token", slog.String("path", tokenPath), slog.Bool("expired", expired))

	return newTokenSourceHandle(ctx, oauthConfig(), tok, tokenPath, meta, logger), nil
}
