package providercommon

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"

	"github.com/kestrelframe/photosync/internal/tokenfile"
)

// PersistingTokenSource wraps a stock oauth2.TokenSource and writes the
// token back to tokenPath whenever the library performs a silent refresh.
// The mainline golang.org/x/oauth2 package has no refresh-notification hook,
// so this compares the access token and expiry on every call instead of
// relying on one.
type PersistingTokenSource struct {
	src       oauth2.TokenSource
	tokenPath string
	meta      map[string]string
	logger    *slog.Logger

	mu         sync.Mutex
	lastAccess string
	lastExpiry int64
}

// NewPersistingTokenSource builds a PersistingTokenSource seeded with the
// token that was current at load time, so the first Token() call that
// returns the same value does not trigger a redundant write.
func NewPersistingTokenSource(
	src oauth2.TokenSource, tokenPath string, seed *oauth2.Token, meta map[string]string, logger *slog.Logger,
) *PersistingTokenSource {
	p := &PersistingTokenSource{
		src:       src,
		tokenPath: tokenPath,
		meta:      meta,
		logger:    logger,
	}

	if seed != nil {
		p.lastAccess = seed.AccessToken
		p.lastExpiry = seed.Expiry.Unix()
	}

	return p
}

// Token returns the current bearer token string, persisting it to disk
// first if the underlying source refreshed it since the last call.
func (p *PersistingTokenSource) Token() (string, error) {
	tok, err := p.src.Token()
	if err != nil {
		return "", fmt.Errorf("providercommon: obtaining token: %w", err)
	}

	p.mu.Lock()
	changed := tok.AccessToken != p.lastAccess || tok.Expiry.Unix() != p.lastExpiry
	if changed {
		p.lastAccess = tok.AccessToken
		p.lastExpiry = tok.Expiry.Unix()
	}
	p.mu.Unlock()

	if changed {
		if saveErr := tokenfile.Save(p.tokenPath, tok, p.meta); saveErr != nil {
			p.logger.Warn("failed to persist refreshed token",
				slog.String("path", p.tokenPath),
				slog.String("error", saveErr.Error()),
			)
		} else {
			p.logger.Info("persisted refreshed token to disk", slog.String("path", p.tokenPath))
		}
	}

	return tok.AccessToken, nil
}
