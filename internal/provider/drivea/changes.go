package drivea

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/kestrelframe/photosync/internal/provider"
	"github.com/kestrelframe/photosync/internal/providercommon"
)

// deltaPreferHeader requests that shared/remote items be reported using
// stable alias IDs; without it, personal accounts can receive incomplete
// delta pages for shared folders.
var deltaPreferHeader = http.Header{"Prefer": {"deltashowremoteitemsaliasid"}}

type deltaResponse struct {
	Value     []driveItemResponse `json:"value"`
	NextLink  string              `json:"@odata.nextLink"`  //nolint:tagliatelle
	DeltaLink string              `json:"@odata.deltaLink"` //nolint:tagliatelle
}

// initialCursor returns the empty string: drivea treats an empty cursor as
// "enumerate everything from the beginning" and the first ChangesSince call
// naturally performs that full enumeration.
func (p *Provider) initialCursor(_ context.Context) (string, error) {
	return "", nil
}

// changesSince walks one or more delta pages starting from cursor (empty
// means "from the beginning") and returns a lazy sequence of changes plus a
// closure yielding the resume cursor. The closure only returns a meaningful
// value once the sequence has been fully drained without error — callers
// must not persist it earlier, matching the cursor-after-full-drain
// invariant.
func (p *Provider) changesSince(ctx context.Context, cursor string) (provider.ChangeSeq, func() string, error) {
	final := cursor

	seq := func(yield func(provider.Change, error) bool) {
		token := cursor

		for {
			select {
			case <-ctx.Done():
				yield(provider.Change{}, &provider.Error{Provider: Name, Operation: "ChangesSince", Kind: provider.ErrCancelled, Cause: ctx.Err()})

				return
			default:
			}

			dr, nextToken, deltaLink, err := p.deltaPage(ctx, token)
			if err != nil {
				yield(provider.Change{}, err)

				return
			}

			for i := range dr {
				d := &dr[i]

				change, ok := toChange(d, p)
				if !ok {
					continue
				}

				if !yield(change, nil) {
					return
				}
			}

			if deltaLink != "" {
				final = deltaLink

				return
			}

			token = nextToken

			if sleepErr := p.client.sleepFunc(ctx, providercommon.PaginationPaceDelay); sleepErr != nil {
				yield(provider.Change{}, &provider.Error{Provider: Name, Operation: "ChangesSince", Kind: provider.ErrCancelled, Cause: sleepErr})

				return
			}
		}
	}

	return seq, func() string { return final }, nil
}

func toChange(d *driveItemResponse, p *Provider) (provider.Change, bool) {
	if d.Deleted != nil {
		return provider.Change{Kind: provider.ChangeDeleted, Photo: provider.Photo{ID: d.ID}}, true
	}

	// Folder entries in the delta feed carry the parent link a consumer
	// needs to place newly created or moved folders in the hierarchy.
	if d.Folder != nil {
		if d.ParentReference == nil {
			return provider.Change{}, false
		}

		return provider.Change{
			Kind:   provider.ChangeFolder,
			Folder: provider.FolderEdge{FolderID: d.ID, ParentID: d.ParentReference.ID},
		}, true
	}

	if !d.isImage() {
		return provider.Change{}, false
	}

	rp := toRemotePhoto(d, p.logger)

	return provider.Change{Kind: provider.ChangeUpserted, Photo: toProviderPhoto(rp)}, true
}

// deltaPage fetches one page and returns its items plus exactly one of
// (nextToken, deltaLink) depending on whether more pages remain.
func (p *Provider) deltaPage(ctx context.Context, token string) ([]driveItemResponse, string, string, error) {
	path, err := p.buildDeltaPath(token)
	if err != nil {
		return nil, "", "", err
	}

	resp, err := p.client.doWithHeaders(ctx, http.MethodGet, path, nil, deltaPreferHeader)
	if err != nil {
		return nil, "", "", err
	}
	defer resp.Body.Close()

	var dr deltaResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&dr); decodeErr != nil {
		return nil, "", "", &provider.Error{
			Provider: Name, Operation: "ChangesSince", Kind: provider.ErrValidation,
			Cause: fmt.Errorf("decoding delta response: %w", decodeErr),
		}
	}

	if dr.DeltaLink != "" {
		return dr.Value, "", dr.DeltaLink, nil
	}

	next := dr.NextLink
	if next != "" {
		stripped, stripErr := p.client.stripBaseURL(next)
		if stripErr != nil {
			return nil, "", "", &provider.Error{Provider: Name, Operation: "ChangesSince", Kind: provider.ErrValidation, Cause: stripErr}
		}

		next = stripped
	}

	return dr.Value, next, "", nil
}

const deltaHTTPPrefix = "http"

// buildDeltaPath constructs the request path for a delta page. An empty or
// non-URL token means "start a fresh enumeration"; anything beginning with
// an HTTP scheme is a previously returned nextLink/deltaLink to resume from.
func (p *Provider) buildDeltaPath(token string) (string, error) {
	if token == "" || !strings.HasPrefix(token, deltaHTTPPrefix) {
		return fmt.Sprintf("/drives/%s/root/delta", p.driveID), nil
	}

	path, err := p.client.stripBaseURL(token)
	if err != nil {
		return "", &provider.Error{Provider: Name, Operation: "ChangesSince", Kind: provider.ErrValidation, Cause: fmt.Errorf("invalid cursor: %w", err)}
	}

	return path, nil
}
