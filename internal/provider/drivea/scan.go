package drivea

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kestrelframe/photosync/internal/provider"
	"github.com/kestrelframe/photosync/internal/providercommon"
)

// listChildrenPageSize is the $top value for children requests; 200 is the
// maximum page size the API allows for drive item collections.
const listChildrenPageSize = 200

type listChildrenResponse struct {
	Value    []driveItemResponse `json:"value"`
	NextLink string              `json:"@odata.nextLink"` //nolint:tagliatelle
}

// scanFolder returns a lazy, depth-bounded walk of folderID as a
// provider.PhotoSeq. maxDepth 0 scans folderID's direct children only;
// negative means unlimited recursion.
func (p *Provider) scanFolder(ctx context.Context, folderID string, maxDepth int) provider.PhotoSeq {
	return func(yield func(provider.Photo, error) bool) {
		visited := map[string]bool{folderID: true}
		p.walkFolder(ctx, folderID, maxDepth, nil, visited, yield)
	}
}

// walkFolder performs one level of pagination and recurses into
// subfolders; it reports its own continuation decision so the caller can
// stop early across the whole recursive walk. visited tracks every
// folder ID already entered on this walk so a folder re-parented into
// its own subtree (or duplicated via a sharing link) is not re-scanned.
// ancestors is the chain of folder ids above folderID, nearest first,
// accumulated as the walk descends and stamped onto each yielded photo.
func (p *Provider) walkFolder(ctx context.Context, folderID string, depth int, ancestors []string, visited map[string]bool, yield func(provider.Photo, error) bool) bool {
	path := fmt.Sprintf("/drives/%s/items/%s/children?$top=%d", p.driveID, folderID, listChildrenPageSize)

	for path != "" {
		select {
		case <-ctx.Done():
			yield(provider.Photo{}, &provider.Error{Provider: Name, Operation: "ScanFolder", Kind: provider.ErrCancelled, Cause: ctx.Err()})

			return false
		default:
		}

		items, nextPath, err := p.listChildrenPage(ctx, path)
		if err != nil {
			yield(provider.Photo{}, err)

			return false
		}

		for i := range items {
			d := &items[i]

			if d.Folder != nil && d.Deleted == nil {
				if depth != 0 && !visited[d.ID] {
					visited[d.ID] = true

					childDepth := depth - 1
					if depth < 0 {
						childDepth = depth
					}

					childAncestors := append([]string{folderID}, ancestors...)

					if !p.walkFolder(ctx, d.ID, childDepth, childAncestors, visited, yield) {
						return false
					}
				}

				continue
			}

			if !d.isImage() {
				continue
			}

			rp := toRemotePhoto(d, p.logger)

			photo := toProviderPhoto(rp)
			photo.AncestorIDs = ancestors

			if !yield(photo, nil) {
				return false
			}
		}

		path = nextPath

		if path != "" {
			if err := p.client.sleepFunc(ctx, providercommon.PaginationPaceDelay); err != nil {
				yield(provider.Photo{}, &provider.Error{Provider: Name, Operation: "ScanFolder", Kind: provider.ErrCancelled, Cause: err})

				return false
			}
		}
	}

	return true
}

func (p *Provider) listChildrenPage(ctx context.Context, path string) ([]driveItemResponse, string, error) {
	resp, err := p.client.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	var lcr listChildrenResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&lcr); decodeErr != nil {
		return nil, "", &provider.Error{
			Provider: Name, Operation: "ScanFolder", Kind: provider.ErrValidation,
			Cause: fmt.Errorf("decoding children response: %w", decodeErr),
		}
	}

	var nextPath string

	if lcr.NextLink != "" {
		stripped, stripErr := p.client.stripBaseURL(lcr.NextLink)
		if stripErr != nil {
			return nil, "", &provider.Error{Provider: Name, Operation: "ScanFolder", Kind: provider.ErrValidation, Cause: stripErr}
		}

		nextPath = stripped
	}

	return lcr.Value, nextPath, nil
}

func toProviderPhoto(rp remotePhoto) provider.Photo {
	return provider.Photo{
		ID:          rp.id,
		FolderID:    rp.folderID,
		Name:        rp.name,
		MimeType:    rp.mimeType,
		SizeBytes:   rp.sizeBytes,
		ContentHash: rp.contentHash,
		Width:       rp.width,
		Height:      rp.height,
		CapturedAt:  rp.capturedAt,
		ModifiedAt:  rp.modifiedAt,
	}
}
