package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dl-alexandre/ecmdocs/internal/errors"
	"github.com/dl-alexandre/ecmdocs/internal/remote"
	"github.com/dl-alexandre/ecmdocs/internal/types"
	"github.com/dl-alexandre/ecmdocs/internal/utils"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{400, false},
		{401, false},
		{404, false},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{504, true},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			if got := isRetryable(&errors.HTTPError{StatusCode: tt.status}); got != tt.want {
				t.Errorf("isRetryable(%d) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	t.Run("retry-after seconds", func(t *testing.T) {
		err := &errors.HTTPError{StatusCode: 429, Header: http.Header{"Retry-After": []string{"2"}}}
		if got := calculateBackoff(time.Second, 0, err); got != 2*time.Second {
			t.Errorf("got %v, want 2s", got)
		}
	})

	t.Run("retry-after capped", func(t *testing.T) {
		err := &errors.HTTPError{StatusCode: 429, Header: http.Header{"Retry-After": []string{"3600"}}}
		want := time.Duration(utils.MaxRetryDelayMs) * time.Millisecond
		if got := calculateBackoff(time.Second, 0, err); got != want {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("exponential with jitter", func(t *testing.T) {
		err := &errors.HTTPError{StatusCode: 503}
		got := calculateBackoff(100*time.Millisecond, 2, err)
		if got < 300*time.Millisecond || got > 500*time.Millisecond {
			t.Errorf("got %v, want 400ms ±25%%", got)
		}
	})
}

func TestExecuteWithRetry_RetriesTransientFailures(t *testing.T) {
	client := NewClient(http.DefaultClient, "http://unused", ClientOptions{MaxRetries: 3, RetryDelayMs: 1})
	calls := 0
	got, err := ExecuteWithRetry(context.Background(), client, NewRequestContext("a", types.RequestTypeGet), func() (string, error) {
		calls++
		if calls < 3 {
			return "", &errors.HTTPError{StatusCode: 503}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Errorf("got %q after %d calls", got, calls)
	}
}

func TestExecuteWithRetry_StopsOnPermanentFailure(t *testing.T) {
	client := NewClient(http.DefaultClient, "http://unused", ClientOptions{MaxRetries: 3, RetryDelayMs: 1})
	calls := 0
	_, err := ExecuteWithRetry(context.Background(), client, NewRequestContext("a", types.RequestTypeGet), func() (string, error) {
		calls++
		return "", &errors.HTTPError{StatusCode: 404, Message: "missing"}
	})
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if !utils.IsCode(err, utils.ErrCodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

// fakeServer serves a small repository over the public REST API
type fakeServer struct {
	t         *testing.T
	server    *httptest.Server
	childHits int32

	mu       sync.Mutex
	lastAuth string
	lastBody string
}

func (fs *fakeServer) record(auth, body string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if auth != "" {
		fs.lastAuth = auth
	}
	if body != "" {
		fs.lastBody = body
	}
}

func (fs *fakeServer) last() (auth, body string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.lastAuth, fs.lastBody
}

const core = "/alfresco/api/-default-/public/alfresco/versions/1"

func newFakeServer(t *testing.T) *fakeServer {
	fs := &fakeServer{t: t}
	mux := http.NewServeMux()

	mux.HandleFunc(core+"/nodes/-root-", func(w http.ResponseWriter, r *http.Request) {
		fs.record(r.Header.Get("Authorization"), "")
		writeJSON(w, 200, `{"entry":{"id":"root-id","name":"Company Home","isFolder":true,"modifiedAt":"2024-03-01T12:00:00.000+0000","allowableOperations":["create"]}}`)
	})
	mux.HandleFunc(core+"/nodes/root-id/children", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fs.childHits, 1)
		if r.Method == http.MethodPost {
			body, _ := io.ReadAll(r.Body)
			fs.record("", string(body))
			writeJSON(w, 201, `{"entry":{"id":"new-id","name":"draft.txt","isFile":true,"parentId":"root-id","content":{"mimeType":"text/plain","sizeInBytes":0},"allowableOperations":["update","delete"]}}`)
			return
		}
		if r.URL.Query().Get("include") != "allowableOperations" {
			t.Errorf("children request missing include=allowableOperations")
		}
		if r.URL.Query().Get("skipCount") == "0" {
			writeJSON(w, 200, `{"list":{"pagination":{"count":1,"hasMoreItems":true,"skipCount":0,"maxItems":100},"entries":[
				{"entry":{"id":"f1","name":"Projects","isFolder":true,"parentId":"root-id","modifiedAt":"2024-03-01T12:00:00Z","allowableOperations":["create","delete"]}}]}}`)
			return
		}
		writeJSON(w, 200, `{"list":{"pagination":{"count":1,"hasMoreItems":false,"skipCount":1,"maxItems":100},"entries":[
			{"entry":{"id":"d1","name":"notes.txt","isFile":true,"parentId":"root-id","modifiedAt":"2024-03-01T12:00:00.000+0000","content":{"mimeType":"text/plain","sizeInBytes":5}}}]}}`)
	})
	mux.HandleFunc(core+"/nodes/d1/content", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "5")
		_, _ = w.Write([]byte("hello"))
	})
	mux.HandleFunc(core+"/nodes/d1/renditions/doclib/content", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("placeholder") != "false" {
			t.Errorf("rendition request must disable placeholders")
		}
		writeJSON(w, 404, `{"error":{"errorKey":"framework.exception.EntityNotFound","statusCode":404,"briefSummary":"rendition not found"}}`)
	})
	mux.HandleFunc(core+"/nodes/d1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, 200, `{"entry":{"id":"d1","name":"notes.txt","isFile":true,"parentId":"root-id","allowableOperations":["update"]}}`)
	})
	mux.HandleFunc(core+"/sites", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"list":{"pagination":{"hasMoreItems":false},"entries":[{"entry":{"id":"swsdp","title":"Sample Site","visibility":"PUBLIC"}}]}}`)
	})
	mux.HandleFunc(core+"/sites/swsdp/containers/documentLibrary", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"entry":{"id":"lib-id","folderId":"documentLibrary"}}`)
	})
	mux.HandleFunc(core+"/nodes/lib-id", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"entry":{"id":"lib-id","name":"documentLibrary","isFolder":true}}`)
	})
	mux.HandleFunc(core+"/people/-me-/favorites", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("where") != "(EXISTS(target/folder))" {
			t.Errorf("favorites request must filter folders")
		}
		writeJSON(w, 200, `{"list":{"pagination":{"hasMoreItems":false},"entries":[{"entry":{"targetGuid":"fav-1","target":{"folder":{"id":"fav-1","name":"Shared"}}}}]}}`)
	})
	mux.HandleFunc("/alfresco/api/-default-/public/search/versions/1/search", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fs.record("", string(body))
		writeJSON(w, 200, `{"list":{"pagination":{"hasMoreItems":false},"entries":[{"entry":{"id":"d1","name":"notes.txt","isFile":true}}]}}`)
	})

	fs.server = httptest.NewServer(mux)
	t.Cleanup(fs.server.Close)
	return fs
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func connect(t *testing.T, fs *fakeServer) *Client {
	t.Helper()
	connector := NewConnector(ConnectorOptions{MaxRetries: 0, RetryDelayMs: 1})
	repo, err := connector.ConnectDirect(context.Background(), fs.server.URL, "alice", "secret")
	if err != nil {
		t.Fatalf("ConnectDirect() error = %v", err)
	}
	return repo.(*Client)
}

func TestConnectDirect_ResolvesRootWithBasicAuth(t *testing.T) {
	fs := newFakeServer(t)
	client := connect(t, fs)

	if auth, _ := fs.last(); !strings.HasPrefix(auth, "Basic ") {
		t.Errorf("expected basic auth header, got %q", auth)
	}
	root := client.RootFolder()
	if root == nil || root.ID != "root-id" || !root.IsRootFolder || !root.IsFolder() {
		t.Fatalf("unexpected root %+v", root)
	}
	if root.Permissions == nil || !root.Permissions.CanAddChildren {
		t.Errorf("root permissions not derived from allowableOperations")
	}
}

func TestListChildren_WalksPages(t *testing.T) {
	fs := newFakeServer(t)
	client := connect(t, fs)

	nodes, err := client.ListChildren(context.Background(), "root-id")
	if err != nil {
		t.Fatalf("ListChildren() error = %v", err)
	}
	if len(nodes) != 2 || atomic.LoadInt32(&fs.childHits) != 2 {
		t.Fatalf("got %d nodes in %d requests", len(nodes), atomic.LoadInt32(&fs.childHits))
	}

	folder, doc := nodes[0], nodes[1]
	if !folder.IsFolder() || !folder.Permissions.CanAddChildren || !folder.Permissions.CanDelete {
		t.Errorf("unexpected folder %+v", folder)
	}
	if doc.IsFolder() || doc.Size != 5 || doc.MimeType != "text/plain" {
		t.Errorf("unexpected document %+v", doc)
	}
	if doc.Permissions != nil {
		t.Errorf("document without allowableOperations must have nil permissions")
	}
	want := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if !doc.ModifiedAt.Equal(want) {
		t.Errorf("ModifiedAt = %v, want %v", doc.ModifiedAt, want)
	}
}

func TestContentAndRendition(t *testing.T) {
	fs := newFakeServer(t)
	client := connect(t, fs)

	size, body, err := client.GetContentStream(context.Background(), "d1")
	if err != nil {
		t.Fatalf("GetContentStream() error = %v", err)
	}
	defer body.Close()
	data, _ := io.ReadAll(body)
	if size != 5 || string(data) != "hello" {
		t.Errorf("got size %d data %q", size, data)
	}

	_, _, err = client.GetRenditionStream(context.Background(), "d1", remote.RenditionThumbnail)
	if !utils.IsCode(err, utils.ErrCodeNotFound) {
		t.Errorf("expected NOT_FOUND for missing rendition, got %v", err)
	}
	if cliErr := utils.AsCLIError(err); cliErr.Message != "rendition not found" {
		t.Errorf("expected server summary as message, got %q", cliErr.Message)
	}
}

func TestCreateAndDelete(t *testing.T) {
	fs := newFakeServer(t)
	client := connect(t, fs)

	node, err := client.CreateDocument(context.Background(), "root-id", "draft.txt")
	if err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	var req createNodeRequest
	_, body := fs.last()
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("bad create body %q: %v", body, err)
	}
	if req.Name != "draft.txt" || req.NodeType != utils.NodeTypeContent {
		t.Errorf("unexpected create request %+v", req)
	}
	if node.ID != "new-id" || !node.Permissions.CanEdit {
		t.Errorf("unexpected created node %+v", node)
	}

	if err := client.DeleteNode(context.Background(), "d1"); err != nil {
		t.Errorf("DeleteNode() error = %v", err)
	}
}

func TestSitesAndFavorites(t *testing.T) {
	fs := newFakeServer(t)
	client := connect(t, fs)
	ctx := context.Background()

	sites, err := client.GetSites(ctx)
	if err != nil || len(sites) != 1 || sites[0].Title != "Sample Site" {
		t.Fatalf("GetSites() = %v, %v", sites, err)
	}

	lib, err := client.GetDocumentLibrary(ctx, "swsdp")
	if err != nil || lib.ID != "lib-id" || !lib.IsFolder() {
		t.Fatalf("GetDocumentLibrary() = %+v, %v", lib, err)
	}

	favs, err := client.GetFavoriteFolders(ctx)
	if err != nil || len(favs) != 1 || favs[0].ID != "fav-1" || !favs[0].IsFolder() {
		t.Fatalf("GetFavoriteFolders() = %v, %v", favs, err)
	}
}

func TestSearch_SendsQueryAndLanguage(t *testing.T) {
	fs := newFakeServer(t)
	client := connect(t, fs)

	nodes, err := client.Search(context.Background(), `TEXT:"notes"`, remote.LanguageKeyword)
	if err != nil || len(nodes) != 1 {
		t.Fatalf("Search() = %v, %v", nodes, err)
	}
	var req searchRequest
	_, body := fs.last()
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("bad search body: %v", err)
	}
	if req.Query.Query != `TEXT:"notes"` || req.Query.Language != "afts" {
		t.Errorf("unexpected search request %+v", req)
	}
}

func TestGetPermissions(t *testing.T) {
	fs := newFakeServer(t)
	client := connect(t, fs)

	perms, err := client.GetPermissions(context.Background(), "d1")
	if err != nil {
		t.Fatalf("GetPermissions() error = %v", err)
	}
	if !perms.CanEdit || perms.CanDelete || perms.CanAddChildren {
		t.Errorf("unexpected permissions %+v", perms)
	}
}

func TestConnectDirect_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 401, `{"error":{"statusCode":401,"briefSummary":"Authentication failed"}}`)
	}))
	defer server.Close()

	connector := NewConnector(ConnectorOptions{})
	repo, err := connector.ConnectDirect(context.Background(), server.URL, "alice", "wrong")
	if repo != nil {
		t.Errorf("expected nil repository on failure")
	}
	if !utils.IsCode(err, utils.ErrCodeAuthExpired) {
		t.Errorf("expected AUTH_EXPIRED, got %v", err)
	}
}

func TestConnectOAuth_SendsBearerToken(t *testing.T) {
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		writeJSON(w, 200, `{"entry":{"id":"root-id","name":"Company Home","isFolder":true}}`)
	}))
	defer server.Close()

	connector := NewConnector(ConnectorOptions{Cloud: CloudEndpoints{APIBaseURL: server.URL, TokenURL: server.URL + "/token"}})
	_, err := connector.ConnectOAuth(context.Background(), &types.OAuthBundle{
		APIKey:      "key",
		APISecret:   "secret",
		AccessToken: "tok-123",
		Expiry:      time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("ConnectOAuth() error = %v", err)
	}
	if auth != "Bearer tok-123" {
		t.Errorf("Authorization = %q", auth)
	}
}
