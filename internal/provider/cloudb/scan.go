package cloudb

import (
	"context"

	"github.com/kestrelframe/photosync/internal/provider"
	"github.com/kestrelframe/photosync/internal/providercommon"
)

type listFolderRequest struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`
}

type listFolderContinueRequest struct {
	Cursor string `json:"cursor"`
}

type listFolderResponse struct {
	Entries []entry `json:"entries"`
	Cursor  string  `json:"cursor"`
	HasMore bool    `json:"has_more"`
}

// scanFolder lists folderID non-recursively when maxDepth is 0, or asks the
// API to recurse server-side otherwise — this API shape has no per-level
// depth control, so a finite positive maxDepth is enforced client-side by
// comparing each entry's path depth against the scanned root.
func (p *Provider) scanFolder(ctx context.Context, folderID string, maxDepth int) provider.PhotoSeq {
	return func(yield func(provider.Photo, error) bool) {
		var resp listFolderResponse

		err := p.client.rpc(ctx, "/files/list_folder", listFolderRequest{Path: folderID, Recursive: maxDepth != 0}, &resp)
		if err != nil {
			yield(provider.Photo{}, err)

			return
		}

		for {
			for i := range resp.Entries {
				e := &resp.Entries[i]
				if e.Tag != "file" || !isPhotoName(e.Name) {
					continue
				}

				if maxDepth > 0 {
					depth := entryDepth(folderID, e.PathLower)
					if depth < 0 || depth > maxDepth {
						continue
					}
				}

				if !yield(e.toPhoto(), nil) {
					return
				}
			}

			if !resp.HasMore {
				return
			}

			if err := p.client.sleepFunc(ctx, providercommon.PaginationPaceDelay); err != nil {
				yield(provider.Photo{}, &provider.Error{Provider: Name, Operation: "ScanFolder", Kind: provider.ErrCancelled, Cause: err})

				return
			}

			cursor := resp.Cursor
			resp = listFolderResponse{}

			if err := p.client.rpc(ctx, "/files/list_folder/continue", listFolderContinueRequest{Cursor: cursor}, &resp); err != nil {
				yield(provider.Photo{}, err)

				return
			}
		}
	}
}
