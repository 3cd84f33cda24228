package cloudb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2"

	"github.com/kestrelframe/photosync/internal/provider"
	"github.com/kestrelframe/photosync/internal/providercommon"
	"github.com/kestrelframe/photosync/internal/tokenfile"
)

// defaultClientID is the public application registration for this
// conformance's authorization-code flow.
const defaultClientID = "photosync-cloudb-client"

var endpoint = oauth2.Endpoint{
	AuthURL:  "https://www.cloudb.example.com/oauth2/authorize",
	TokenURL: "https://api.cloudb.example.com/oauth2/token",
}

// ErrNotLoggedIn is returned when no token file exists at the configured path.
var ErrNotLoggedIn = errors.New("cloudb: not logged in")

func oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:    defaultClientID,
		Endpoint:    endpoint,
		RedirectURL: "http://localhost",
	}
}

// AuthCodeURL returns the URL the caller should direct the user to visit.
// Unlike drivea's device-code flow, this
// conformance expects the caller to paste back the resulting code manually
// (the shape a CLI offers when it cannot bind a local listener, e.g. when
// running inside a container without a loopback redirect).
func AuthCodeURL(state string) string {
	return oauthConfig().AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// ExchangeCode exchanges a pasted-back authorization code for a token and
// persists it at tokenPath.
func ExchangeCode(ctx context.Context, tokenPath, code string, logger *slog.Logger) (*tokenSourceHandle, error) {
	cfg := oauthConfig()

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("cloudb: token exchange failed: %w", err)
	}

	if saveErr := tokenfile.Save(tokenPath, tok, nil); saveErr != nil {
		return nil, fmt.Errorf("cloudb: saving token: %w", saveErr)
	}

	logger.Info("login successful", slog.String("path", tokenPath), slog.Time("expiry", tok.Expiry))

	return newTokenSourceHandle(ctx, cfg, tok, tokenPath, nil, logger), nil
}

// Logout removes the saved token file at tokenPath.
func Logout(tokenPath string, logger *slog.Logger) error {
	err := os.Remove(tokenPath)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("logout: no token file to remove", slog.String("path", tokenPath))

		return nil
	}

	if err != nil {
		return fmt.Errorf("cloudb: removing token file: %w", err)
	}

	logger.Info("logout: removed token file", slog.String("path", tokenPath))

	return nil
}

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

	return &tokenSourceHandle{PersistingTokenSource: providercommon.NewPersistingTokenSource(src, tokenPath, tok, meta, logger)}
}

func tokenSourceFromPath(ctx context.Context, tokenPath string, logger *slog.Logger) (*tokenSourceHandle, error) {
	tok, meta, err := tokenfile.Load(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("cloudb: loading token: %w", err)
	}

	if tok == nil {
		return nil, &provider.Error{Provider: Name, Operation: "Initialize", Kind: provider.ErrAuthentication, Cause: ErrNotLoggedIn}
	}

	expired := !tok.Expiry.IsZero() && tok.Expiry.Before(time.Now())
	logger.Info("loaded saved token", slog.String("path", tokenPath), slog.Bool("expired", expired))

	return newTokenSourceHandle(ctx, oauthConfig(), tok, tokenPath, meta, logger), nil
}
