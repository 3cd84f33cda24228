package cloudb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelframe/photosync/internal/provider"
)

func noopSleep(_ context.Context, _ time.Duration) error {
	return nil
}

type staticToken struct{}

func (staticToken) Token() (string, error) { return "test-token", nil }

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestProvider points both the metadata and content hosts at the same
// mock server, with a static token and no sleep delays.
func newTestProvider(t *testing.T, handler http.Handler) *Provider {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p := New(Config{BaseURL: srv.URL, ContentURL: srv.URL, Logger: testLogger(t)})
	p.client = newClient(srv.URL, srv.URL, srv.Client(), staticToken{}, testLogger(t))
	p.client.sleepFunc = noopSleep

	return p
}

func TestScanFolderPaginatesWithContinue(t *testing.T) {
	mux := http.NewServeMux()

	mux.HandleFunc("/files/list_folder", func(w http.ResponseWriter, r *http.Request) {
		var req listFolderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Recursive, "a depth-unbounded scan must ask for server-side recursion")

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"entries": [
			{".tag": "file", "id": "p1", "name": "p1.jpg", "size": 10},
			{".tag": "folder", "id": "f1", "name": "album"}
		], "cursor": "cur-1", "has_more": true}`)
	})

	mux.HandleFunc("/files/list_folder/continue", func(w http.ResponseWriter, r *http.Request) {
		var req listFolderContinueRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "cur-1", req.Cursor)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"entries": [
			{".tag": "file", "id": "p2", "name": "p2.png", "size": 20},
			{".tag": "file", "id": "x1", "name": "notes.txt", "size": 5}
		], "cursor": "cur-2", "has_more": false}`)
	})

	p := newTestProvider(t, mux)

	var ids []string

	for photo, err := range p.ScanFolder(context.Background(), "", -1) {
		require.NoError(t, err)

		ids = append(ids, photo.ID)
	}

	assert.Equal(t, []string{"p1", "p2"}, ids, "folders and non-photo files must be filtered out")
}

func TestScanFolderHonorsFiniteDepth(t *testing.T) {
	mux := http.NewServeMux()

	mux.HandleFunc("/files/list_folder", func(w http.ResponseWriter, r *http.Request) {
		var req listFolderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Recursive)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"entries": [
			{".tag": "file", "id": "p0", "name": "top.jpg", "path_lower": "/photos/top.jpg", "size": 10},
			{".tag": "file", "id": "p1", "name": "one.jpg", "path_lower": "/photos/f1/one.jpg", "size": 10},
			{".tag": "file", "id": "p2", "name": "two.jpg", "path_lower": "/photos/f1/f2/two.jpg", "size": 10},
			{".tag": "file", "id": "p3", "name": "three.jpg", "path_lower": "/photos/f1/f2/f3/three.jpg", "size": 10}
		], "cursor": "cur-1", "has_more": false}`)
	})

	p := newTestProvider(t, mux)

	var ids []string

	for photo, err := range p.ScanFolder(context.Background(), "/photos", 2) {
		require.NoError(t, err)

		ids = append(ids, photo.ID)
	}

	assert.Equal(t, []string{"p0", "p1", "p2"}, ids, "entries nested deeper than maxDepth must be filtered out")
}

func TestToPhotoDerivesAncestryFromPath(t *testing.T) {
	e := entry{Tag: "file", ID: "p1", Name: "one.jpg", PathLower: "/photos/f1/f2/one.jpg"}

	photo := e.toPhoto()

	assert.Equal(t, "/photos/f1/f2", photo.FolderID)
	assert.Equal(t, []string{"/photos/f1", "/photos", ""}, photo.AncestorIDs)
}

func TestChangesSinceAppliesDeletesAndAdvancesCursor(t *testing.T) {
	mux := http.NewServeMux()

	mux.HandleFunc("/files/list_folder/continue", func(w http.ResponseWriter, r *http.Request) {
		var req listFolderContinueRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")

		if req.Cursor == "cur-0" {
			fmt.Fprint(w, `{"entries": [
				{".tag": "file", "id": "p1", "name": "p1.jpg", "size": 10}
			], "cursor": "cur-1", "has_more": true}`)

			return
		}

		fmt.Fprint(w, `{"entries": [
			{".tag": "deleted", "id": "p0", "name": "p0.jpg"}
		], "cursor": "cur-2", "has_more": false}`)
	})

	p := newTestProvider(t, mux)

	seq, cursor, err := p.ChangesSince(context.Background(), "cur-0")
	require.NoError(t, err)

	var upserted, deleted []string

	for change, err := range seq {
		require.NoError(t, err)

		if change.Kind == provider.ChangeDeleted {
			deleted = append(deleted, change.Photo.ID)
		} else {
			upserted = append(upserted, change.Photo.ID)
		}
	}

	assert.Equal(t, []string{"p1"}, upserted)
	assert.Equal(t, []string{"p0"}, deleted)
	assert.Equal(t, "cur-2", cursor(), "the resume cursor must come from the final drained page")
}

func TestChangesSinceSurfacesFolderEdges(t *testing.T) {
	mux := http.NewServeMux()

	mux.HandleFunc("/files/list_folder/continue", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"entries": [
			{".tag": "folder", "id": "f2", "name": "f2", "path_lower": "/photos/f1/f2"}
		], "cursor": "cur-1", "has_more": false}`)
	})

	p := newTestProvider(t, mux)

	seq, _, err := p.ChangesSince(context.Background(), "cur-0")
	require.NoError(t, err)

	var edges []provider.FolderEdge

	for change, err := range seq {
		require.NoError(t, err)

		if change.Kind == provider.ChangeFolder {
			edges = append(edges, change.Folder)
		}
	}

	require.Len(t, edges, 1)
	assert.Equal(t, provider.FolderEdge{FolderID: "/photos/f1/f2", ParentID: "/photos/f1"}, edges[0])
}

func TestInitialCursorUsesLatestCursorEndpoint(t *testing.T) {
	mux := http.NewServeMux()

	mux.HandleFunc("/files/list_folder/get_latest_cursor", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"cursor": "cur-now"}`)
	})

	p := newTestProvider(t, mux)

	cursor, err := p.InitialCursor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cur-now", cursor)
}

func TestDownloadContentPassesArgHeader(t *testing.T) {
	mux := http.NewServeMux()

	mux.HandleFunc("/files/download", func(w http.ResponseWriter, r *http.Request) {
		var arg downloadArg
		require.NoError(t, json.Unmarshal([]byte(r.Header.Get("cloudb-api-arg")), &arg))
		assert.Equal(t, "p1", arg.Path)

		fmt.Fprint(w, "jpeg-bytes")
	})

	p := newTestProvider(t, mux)

	rc, err := p.DownloadContent(context.Background(), "p1", 5*time.Second)
	require.NoError(t, err)

	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))
}

func TestRPCRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"cursor": "cur-now"}`)
	})

	p := newTestProvider(t, handler)

	cursor, err := p.InitialCursor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cur-now", cursor)
	assert.Equal(t, int32(2), calls.Load())
}
