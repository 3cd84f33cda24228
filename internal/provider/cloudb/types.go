package cloudb

import (
	"strings"
	"time"

	"github.com/kestrelframe/photosync/internal/provider"
)

// photoExtensions approximates the image filter this API exposes as a
// server-side "media_info" filter; kept as a local allowlist so the
// conformance needs no extra round trip to ask the server.
var photoExtensions = []string{".jpg", ".jpeg", ".png", ".heic", ".gif", ".bmp", ".tiff", ".webp"}

func isPhotoName(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range photoExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}

	return false
}

// entry mirrors one element of a list_folder/list_folder-continue result:
// either a file ("file") or a folder ("folder") metadata record, or a
// deleted-path tombstone ("deleted").
type entry struct {
	Tag            string     `json:".tag"`
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	PathLower      string     `json:"path_lower"`
	ParentFolderID string     `json:"parent_shared_folder_id"`
	Size           int64      `json:"size"`
	ContentHash    string     `json:"content_hash"`
	ClientModified string     `json:"client_modified"`
	ServerModified string     `json:"server_modified"`
	MediaInfo      *mediaInfo `json:"media_info"`
}

// mediaInfo mirrors the metadata result's optional media_info.metadata
// facet, present when the request was made with include_media_info.
type mediaInfo struct {
	Metadata struct {
		Dimensions *struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"dimensions"`
	} `json:"metadata"`
}

func (e *entry) toPhoto() provider.Photo {
	capturedAt := parseTime(e.ClientModified)
	modifiedAt := parseTime(e.ServerModified)

	parent, ancestors := parentChain(e.PathLower)

	p := provider.Photo{
		ID:          e.ID,
		FolderID:    parent,
		AncestorIDs: ancestors,
		Name:        e.Name,
		MimeType:    mimeFromName(e.Name),
		SizeBytes:   e.Size,
		ContentHash: e.ContentHash,
		CapturedAt:  capturedAt,
		ModifiedAt:  modifiedAt,
	}

	if e.MediaInfo != nil && e.MediaInfo.Metadata.Dimensions != nil {
		p.Width = e.MediaInfo.Metadata.Dimensions.Width
		p.Height = e.MediaInfo.Metadata.Dimensions.Height
	}

	return p
}

// parentChain splits an entry's path_lower into its parent folder path and
// the chain of ancestor folder paths above that, nearest first, ending at
// the account root "". Folders in this API are addressed by path, so the
// parent paths double as the folder identifiers scope filtering walks.
func parentChain(pathLower string) (string, []string) {
	trimmed := strings.Trim(strings.ToLower(pathLower), "/")
	if trimmed == "" {
		return "", nil
	}

	segments := strings.Split(trimmed, "/")

	segments = segments[:len(segments)-1]
	if len(segments) == 0 {
		return "", nil
	}

	parent := "/" + strings.Join(segments, "/")

	ancestors := make([]string, 0, len(segments))
	for i := len(segments) - 1; i >= 1; i-- {
		ancestors = append(ancestors, "/"+strings.Join(segments[:i], "/"))
	}

	ancestors = append(ancestors, "")

	return parent, ancestors
}

// entryDepth reports how many folder levels below root the entry at
// pathLower sits: 0 for a direct child of root, -1 when the entry is not
// under root at all.
func entryDepth(root, pathLower string) int {
	rootNorm := strings.TrimSuffix(strings.ToLower(root), "/")
	pathNorm := strings.ToLower(pathLower)

	if rootNorm != "" && !strings.HasPrefix(pathNorm, rootNorm+"/") {
		return -1
	}

	rel := strings.Trim(strings.TrimPrefix(pathNorm, rootNorm), "/")
	if rel == "" {
		return -1
	}

	return strings.Count(rel, "/")
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Now().UTC()
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Now().UTC()
	}

	return t
}

func mimeFromName(name string) string {
	lower := strings.ToLower(name)

	switch {
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".gif"):
		return "image/gif"
	case strings.HasSuffix(lower, ".heic"):
		return "image/heic"
	case strings.HasSuffix(lower, ".bmp"):
		return "image/bmp"
	case strings.HasSuffix(lower, ".tiff"):
		return "image/tiff"
	case strings.HasSuffix(lower, ".webp"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
