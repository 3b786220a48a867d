package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/daycast/syncengine/internal/offline/schema"
)

// newTestClient starts a server running handler and returns a client for it.
func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{
		BaseURL:  srv.URL + "/api/v1",
		ClientID: "client-1",
		Tokens:   StaticToken("secret"),
		Timeout:  2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client, srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClientRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "not a url", "/relative/path"} {
		if _, err := NewClient(Config{BaseURL: raw}); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("NewClient(%q) error = %v, want ErrInvalidRequest", raw, err)
		}
	}
}

func TestHealthURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:8000/api/v1", "http://localhost:8000/health"},
		{"http://localhost:8000/api/v1/", "http://localhost:8000/health"},
		{"https://example.com/daycast/api/v2", "https://example.com/daycast/health"},
		{"https://example.com/api", "https://example.com/health"},
		{"https://example.com", "https://example.com/health"},
	}

	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			c, err := NewClient(Config{BaseURL: tt.base})
			if err != nil {
				t.Fatalf("NewClient failed: %v", err)
			}
			if got := c.HealthURL(); got != tt.want {
				t.Errorf("HealthURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	status := http.StatusOK
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("health path = %q, want /health", r.URL.Path)
		}
		w.WriteHeader(status)
	})

	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("Health() = %v, want nil", err)
	}

	status = http.StatusServiceUnavailable
	err := client.Health(context.Background())
	if err == nil {
		t.Fatal("Health() on 503 should fail")
	}
	if Classify(err) != ClassApplication {
		t.Errorf("Classify(503) = %v, want application", Classify(err))
	}
}

func TestRequestHeaders(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Client-ID"); got != "client-1" {
			t.Errorf("X-Client-ID = %q, want client-1", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q, want Bearer secret", got)
		}
		if r.URL.Path != "/api/v1/inputs" || r.URL.Query().Get("date") != "2025-03-01" {
			t.Errorf("unexpected request %s", r.URL)
		}
		// Older servers omit include_in_generation.
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"a","type":"text","content":"hi","date":"2025-03-01","cleared":false,` +
			`"created_at":"2025-03-01T08:00:00Z","updated_at":"2025-03-01T08:00:00Z"}]`))
	})

	items, err := client.FetchItems(context.Background(), "2025-03-01")
	if err != nil {
		t.Fatalf("FetchItems failed: %v", err)
	}
	if len(items) != 1 || items[0].ID != "a" {
		t.Fatalf("FetchItems = %+v", items)
	}
	if !items[0].IncludeInGeneration {
		t.Error("include_in_generation should default to true")
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    any
		check   func(error) bool
		message string
	}{
		{
			name:    "unauthorized",
			status:  http.StatusUnauthorized,
			body:    map[string]string{"error": "token expired"},
			check:   func(err error) bool { return errors.Is(err, ErrUnauthorized) },
			message: "unauthorized: token expired",
		},
		{
			name:    "not found",
			status:  http.StatusNotFound,
			body:    map[string]string{"error": "no such item"},
			check:   func(err error) bool { return errors.Is(err, ErrInvalidRequest) },
			message: "invalid request: no such item",
		},
		{
			name:    "unprocessable",
			status:  http.StatusUnprocessableEntity,
			check:   func(err error) bool { return errors.Is(err, ErrInvalidRequest) },
			message: "invalid request: HTTP 422",
		},
		{
			name:   "server error with body",
			status: http.StatusInternalServerError,
			body:   map[string]string{"error": "database down", "code": "db_unavailable"},
			check: func(err error) bool {
				var srvErr *ServerError
				return errors.As(err, &srvErr) && srvErr.Status == 500 && srvErr.Code == "db_unavailable"
			},
			message: "database down",
		},
		{
			name:   "server error without body",
			status: http.StatusBadGateway,
			check: func(err error) bool {
				var srvErr *ServerError
				return errors.As(err, &srvErr) && srvErr.Status == 502
			},
			message: "HTTP 502",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.body == nil {
					w.WriteHeader(tt.status)
					return
				}
				writeJSON(w, tt.status, tt.body)
			})

			_, err := client.CreateItem(context.Background(), schema.CreateItemRequest{Type: schema.ItemText, Content: "x", Date: "2025-03-01"})
			if err == nil {
				t.Fatal("expected error")
			}
			if !tt.check(err) {
				t.Errorf("unexpected error type: %T %v", err, err)
			}
			if err.Error() != tt.message {
				t.Errorf("message = %q, want %q", err.Error(), tt.message)
			}
			if Classify(err) != ClassApplication {
				t.Errorf("Classify = %v, want application", Classify(err))
			}
		})
	}
}

func TestDecodeError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"id": 42`)
	})

	_, err := client.FetchDay(context.Background(), "2025-03-01")
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("FetchDay error = %v, want ErrDecode", err)
	}
	if Classify(err) != ClassApplication {
		t.Errorf("Classify = %v, want application", Classify(err))
	}
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL + "/api/v1"
	srv.Close()

	client, err := NewClient(Config{BaseURL: base, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.FetchItems(context.Background(), "2025-03-01")
	if !IsNetworkError(err) {
		t.Fatalf("FetchItems on closed server = %v, want network error", err)
	}
	if err := client.Health(context.Background()); !IsNetworkError(err) {
		t.Errorf("Health on closed server = %v, want network error", err)
	}
}

func TestCancelledContextIsNotNetworkError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := client.FetchItems(ctx, "2025-03-01")
	if err == nil {
		t.Fatal("expected error")
	}
	if Classify(err) != ClassNone {
		t.Errorf("Classify(cancelled) = %v, want none", Classify(err))
	}
}

func TestUpdateItemFieldsBody(t *testing.T) {
	var body map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s, want PATCH", r.Method)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusOK, schema.Item{ID: "a", Type: schema.ItemText, Date: "2025-03-01"})
	})

	fields := schema.ImportanceFields(nil).Merge(schema.IncludeFields(false))
	if _, err := client.UpdateItemFields(context.Background(), "a", fields); err != nil {
		t.Fatalf("UpdateItemFields failed: %v", err)
	}

	v, ok := body["importance"]
	if !ok || v != nil {
		t.Errorf("importance = %v (present %v), want explicit null", v, ok)
	}
	if body["include_in_generation"] != false {
		t.Errorf("include_in_generation = %v, want false", body["include_in_generation"])
	}
}

func TestUploadImage(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/inputs/upload" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm failed: %v", err)
		}
		if got := r.FormValue("date"); got != "2025-03-01" {
			t.Errorf("date = %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile failed: %v", err)
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if string(data) != "jpegbytes" || header.Filename != "cat.jpg" {
			t.Errorf("upload = %q as %q", data, header.Filename)
		}
		writeJSON(w, http.StatusCreated, schema.Item{ID: "img-1", Type: schema.ItemImage, Content: "/u/cat.jpg", Date: "2025-03-01"})
	})

	item, err := client.UploadImage(context.Background(), []byte("jpegbytes"), "2025-03-01", "cat.jpg")
	if err != nil {
		t.Fatalf("UploadImage failed: %v", err)
	}
	if item.ID != "img-1" || item.Type != schema.ItemImage {
		t.Errorf("UploadImage = %+v", item)
	}
}

func TestPublishStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("result_ids"); got != "r1,r2" {
			t.Errorf("result_ids = %q", got)
		}
		writeJSON(w, http.StatusOK, map[string]any{"statuses": map[string]any{"r1": "my-post", "r2": nil}})
	})

	statuses, err := client.PublishStatus(context.Background(), []string{"r1", "r2"})
	if err != nil {
		t.Fatalf("PublishStatus failed: %v", err)
	}
	if statuses["r1"] == nil || *statuses["r1"] != "my-post" {
		t.Errorf("r1 = %v, want my-post", statuses["r1"])
	}
	if v, ok := statuses["r2"]; !ok || v != nil {
		t.Errorf("r2 = %v (present %v), want nil entry", v, ok)
	}
}

func TestFetchPublicPostsQuery(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("cursor") != "abc" || q.Get("limit") != "10" || q.Get("channel") != "blog" {
			t.Errorf("query = %v", q)
		}
		writeJSON(w, http.StatusOK, schema.PostList{Posts: []schema.PublishedPost{{ID: "p", Slug: "s"}}})
	})

	list, err := client.FetchPublicPosts(context.Background(), schema.PostQuery{Cursor: "abc", Limit: 10, Channel: "blog"})
	if err != nil {
		t.Fatalf("FetchPublicPosts failed: %v", err)
	}
	if len(list.Posts) != 1 || list.Cursor != nil {
		t.Errorf("FetchPublicPosts = %+v", list)
	}
}

func TestFileTokenSource(t *testing.T) {
	src := FileTokenSource{Path: filepath.Join(t.TempDir(), "auth", "token")}

	token, err := src.Token()
	if err != nil || token != "" {
		t.Fatalf("Token() on missing file = %q, %v", token, err)
	}

	if err := src.Save("  abc123 "); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	token, err = src.Token()
	if err != nil || token != "abc123" {
		t.Errorf("Token() = %q, %v, want abc123", token, err)
	}
}
