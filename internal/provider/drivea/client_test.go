package drivea

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelframe/photosync/internal/provider"
)

// noopSleep skips retry backoff and pagination pacing so tests run fast.
func noopSleep(_ context.Context, _ time.Duration) error {
	return nil
}

type staticToken struct{}

func (staticToken) Token() (string, error) { return "test-token", nil }

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestProvider builds a Provider pointed at a mock server, with a
// static token source and no sleep delays. Server cleanup is automatic.
func newTestProvider(t *testing.T, handler http.Handler) (*Provider, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p := New(Config{DriveID: "d", BaseURL: srv.URL, Logger: testLogger(t)})
	p.client = newClient(srv.URL, srv.Client(), staticToken{}, testLogger(t))
	p.client.sleepFunc = noopSleep

	return p, srv
}

func collectPhotos(t *testing.T, seq provider.PhotoSeq) []provider.Photo {
	t.Helper()

	var photos []provider.Photo

	for photo, err := range seq {
		require.NoError(t, err)

		photos = append(photos, photo)
	}

	return photos
}

func TestScanFolderPaginatesAndRecurses(t *testing.T) {
	mux := http.NewServeMux()

	// Root: one photo, one subfolder, then a second page with another photo.
	mux.HandleFunc("/drives/d/items/root/children", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `{"value": [
				{"id": "p2", "name": "p2.jpg", "file": {"mimeType": "image/jpeg"}, "parentReference": {"id": "root"}}
			]}`)

			return
		}

		next := "BASEURL/drives/d/items/root/children?page=2"
		fmt.Fprintf(w, `{"value": [
			{"id": "p1", "name": "p1.jpg", "file": {"mimeType": "image/jpeg"}, "parentReference": {"id": "root"}},
			{"id": "sub", "name": "sub", "folder": {"childCount": 1}}
		], "@odata.nextLink": %q}`, next)
	})

	mux.HandleFunc("/drives/d/items/sub/children", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"value": [
			{"id": "p3", "name": "p3.jpg", "file": {"mimeType": "image/jpeg"}, "parentReference": {"id": "sub"}}
		]}`)
	})

	// The nextLink must share the client's base URL; rewrite the
	// placeholder once the server URL is known.
	var srv *httptest.Server

	rewriting := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, r)

		body := rec.Body.String()
		for k, vals := range rec.Header() {
			for _, v := range vals {
				w.Header().Add(k, v)
			}
		}

		w.WriteHeader(rec.Code)
		fmt.Fprint(w, strings.ReplaceAll(body, "BASEURL", srv.URL))
	})

	p, s := newTestProvider(t, rewriting)
	srv = s

	photos := collectPhotos(t, p.ScanFolder(context.Background(), "root", -1))

	ids := make([]string, 0, len(photos))
	for _, photo := range photos {
		ids = append(ids, photo.ID)

		if photo.ID == "p3" {
			assert.Equal(t, []string{"root"}, photo.AncestorIDs,
				"a photo in a subfolder must carry the walk's ancestor chain")
		}
	}

	assert.ElementsMatch(t, []string{"p1", "p2", "p3"}, ids)
}

func TestScanFolderSkipsRevisitedFolder(t *testing.T) {
	var rootRequests atomic.Int32

	mux := http.NewServeMux()

	// Root contains a folder entry whose id is root itself — the shape a
	// cyclic share produces. The walk must not descend back into it.
	mux.HandleFunc("/drives/d/items/root/children", func(w http.ResponseWriter, _ *http.Request) {
		rootRequests.Add(1)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"value": [
			{"id": "root", "name": "loop", "folder": {"childCount": 1}},
			{"id": "p1", "name": "p1.jpg", "file": {"mimeType": "image/jpeg"}, "parentReference": {"id": "root"}}
		]}`)
	})

	p, _ := newTestProvider(t, mux)

	photos := collectPhotos(t, p.ScanFolder(context.Background(), "root", -1))

	require.Len(t, photos, 1)
	assert.Equal(t, int32(1), rootRequests.Load(), "a cyclic folder must be listed exactly once")
}

func TestScanFolderHonorsMaxDepth(t *testing.T) {
	mux := http.NewServeMux()

	mux.HandleFunc("/drives/d/items/root/children", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"value": [
			{"id": "p1", "name": "p1.jpg", "file": {"mimeType": "image/jpeg"}, "parentReference": {"id": "root"}},
			{"id": "sub", "name": "sub", "folder": {"childCount": 1}}
		]}`)
	})

	mux.HandleFunc("/drives/d/items/sub/children", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"value": [
			{"id": "p2", "name": "p2.jpg", "file": {"mimeType": "image/jpeg"}, "parentReference": {"id": "sub"}}
		]}`)
	})

	p, _ := newTestProvider(t, mux)

	photos := collectPhotos(t, p.ScanFolder(context.Background(), "root", 0))

	require.Len(t, photos, 1)
	assert.Equal(t, "p1", photos[0].ID, "depth 0 must not descend into subfolders")
}

func TestClientRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"value": []}`)
	})

	p, _ := newTestProvider(t, handler)

	photos := collectPhotos(t, p.ScanFolder(context.Background(), "root", 0))

	assert.Empty(t, photos)
	assert.Equal(t, int32(2), calls.Load(), "a 503 must be retried")
}

func TestClientFailsFastOnAuthError(t *testing.T) {
	var calls atomic.Int32

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	p, _ := newTestProvider(t, handler)

	var seqErr error

	for _, err := range p.ScanFolder(context.Background(), "root", 0) {
		if err != nil {
			seqErr = err

			break
		}
	}

	require.Error(t, seqErr)
	assert.True(t, errors.Is(seqErr, provider.ErrAuthentication))
	assert.Equal(t, int32(1), calls.Load(), "auth failures must not be retried")
}

func TestChangesSinceExposesCursorOnlyAfterDrain(t *testing.T) {
	var srv *httptest.Server

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"value": [
			{"id": "p1", "name": "p1.jpg", "file": {"mimeType": "image/jpeg"}, "parentReference": {"id": "root"}},
			{"id": "f1", "name": "new-album", "folder": {"childCount": 0}, "parentReference": {"id": "root"}},
			{"id": "gone", "deleted": {}}
		], "@odata.deltaLink": %q}`, srv.URL+"/drives/d/root/delta?token=abc")
	})

	p, s := newTestProvider(t, handler)
	srv = s

	seq, cursor, err := p.ChangesSince(context.Background(), "")
	require.NoError(t, err)

	var upserts, deletes int

	var edges []provider.FolderEdge

	for change, err := range seq {
		require.NoError(t, err)

		switch change.Kind {
		case provider.ChangeUpserted:
			upserts++
		case provider.ChangeDeleted:
			deletes++

			assert.Equal(t, "gone", change.Photo.ID)
		case provider.ChangeFolder:
			edges = append(edges, change.Folder)
		}
	}

	assert.Equal(t, 1, upserts)
	assert.Equal(t, 1, deletes)
	assert.Equal(t, []provider.FolderEdge{{FolderID: "f1", ParentID: "root"}}, edges)
	assert.Equal(t, srv.URL+"/drives/d/root/delta?token=abc", cursor())
}

func TestDownloadContentFollowsPreAuthURL(t *testing.T) {
	var srv *httptest.Server

	mux := http.NewServeMux()

	mux.HandleFunc("/drives/d/items/p1", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id": "p1", "name": "p1.jpg", "@microsoft.graph.downloadUrl": %q}`, srv.URL+"/content/p1")
	})

	mux.HandleFunc("/content/p1", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"), "pre-authenticated downloads must not carry the bearer token")
		fmt.Fprint(w, "jpeg-bytes")
	})

	p, s := newTestProvider(t, mux)
	srv = s

	rc, err := p.DownloadContent(context.Background(), "p1", 5*time.Second)
	require.NoError(t, err)

	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))
}
