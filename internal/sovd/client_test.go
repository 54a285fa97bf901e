package sovd

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(server.URL, "/api/v1", nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestNormalizeServerURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare host port", "192.168.1.5:8080", "http://192.168.1.5:8080"},
		{"scheme kept", "https://gateway.local:9443", "https://gateway.local:9443"},
		{"trailing slash stripped", "http://gateway.local/", "http://gateway.local"},
		{"path stripped", "http://gateway.local/api/v1", "http://gateway.local"},
		{"query and fragment stripped", "http://gateway.local/?x=1#top", "http://gateway.local"},
		{"whitespace trimmed", "  localhost:8080  ", "http://localhost:8080"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			u, err := normalizeServerURL(tt.input)
			if err != nil {
				t.Fatalf("normalizeServerURL(%q): %v", tt.input, err)
			}
			if got := u.String(); got != tt.want {
				t.Errorf("normalizeServerURL(%q) = %q, want %q", tt.input, got, tt.want)
			}

			// Normalizing an already normalized URL changes nothing.
			again, err := normalizeServerURL(u.String())
			if err != nil {
				t.Fatalf("re-normalize: %v", err)
			}
			if again.String() != tt.want {
				t.Errorf("re-normalize changed %q to %q", tt.want, again.String())
			}
		})
	}
}

func TestNormalizeServerURLRejectsEmpty(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "   "} {
		if _, err := normalizeServerURL(input); err == nil {
			t.Errorf("normalizeServerURL(%q) succeeded, want error", input)
		}
	}
}

func TestNormalizeBasePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{"", "/api/v1"},
		{"/api/v1", "/api/v1"},
		{"api/v1", "/api/v1"},
		{"/api/v1/", "/api/v1"},
		{"//api/v1//", "/api/v1"},
		{"/v2", "/v2"},
	}
	for _, tt := range tests {
		if got := normalizeBasePath(tt.input); got != tt.want {
			t.Errorf("normalizeBasePath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestPathSegmentsEscapedOnce(t *testing.T) {
	t.Parallel()

	var escapedPath, decodedPath string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		escapedPath = r.URL.EscapedPath()
		decodedPath = r.URL.Path
		w.Write([]byte(`{"topics": []}`))
	}))

	ctx := context.Background()
	if _, err := client.ListData(ctx, "drive controller"); err != nil {
		t.Fatalf("ListData: %v", err)
	}
	if escapedPath != "/api/v1/components/drive%20controller/data" {
		t.Errorf("escaped path = %q", escapedPath)
	}
	if decodedPath != "/api/v1/components/drive controller/data" {
		t.Errorf("decoded path = %q", decodedPath)
	}

	// A slash inside a segment must stay one segment on the wire.
	if _, err := client.GetData(ctx, "ecu", "cmd/vel"); err != nil {
		t.Fatalf("GetData: %v", err)
	}
	if escapedPath != "/api/v1/components/ecu/data/cmd%2Fvel" {
		t.Errorf("escaped path = %q", escapedPath)
	}
}

func TestRequestHeaders(t *testing.T) {
	t.Parallel()

	var got http.Header
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte(`{"areas": []}`))
	}))

	if _, err := client.ListAreas(context.Background()); err != nil {
		t.Fatalf("ListAreas: %v", err)
	}
	if got.Get("Accept") != "application/json" {
		t.Errorf("Accept = %q", got.Get("Accept"))
	}
	if got.Get("User-Agent") != defaultUserAgent {
		t.Errorf("User-Agent = %q", got.Get("User-Agent"))
	}
	if got.Get("X-Request-Id") == "" {
		t.Error("X-Request-Id missing")
	}
}

func TestContentTypeOnlyWithBody(t *testing.T) {
	t.Parallel()

	types := make(map[string]string)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		types[r.Method] = r.Header.Get("Content-Type")
		w.Write([]byte(`{}`))
	}))

	ctx := context.Background()
	if err := client.Health(ctx); err != nil {
		t.Fatalf("Health: %v", err)
	}
	if err := client.SetConfiguration(ctx, "ecu", "max_speed", 3.0); err != nil {
		t.Fatalf("SetConfiguration: %v", err)
	}
	if types[http.MethodGet] != "" {
		t.Errorf("GET carried Content-Type %q", types[http.MethodGet])
	}
	if types[http.MethodPut] != "application/json" {
		t.Errorf("PUT Content-Type = %q", types[http.MethodPut])
	}
}

func TestTimeoutSentinel(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() { close(release) })
	client.readTimeout = 30 * time.Millisecond

	_, err := client.ListAreas(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}

	// A gateway failure must not look like a timeout.
	failing := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "boom"}`, http.StatusInternalServerError)
	}))
	_, err = failing.ListAreas(context.Background())
	if errors.Is(err, ErrTimeout) {
		t.Fatalf("gateway error matched ErrTimeout: %v", err)
	}
}

func TestAPIErrorMessageExtraction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"error field wins", `{"error": "not found", "message": "m", "details": "d"}`, "not found"},
		{"message second", `{"message": "component offline", "details": "d"}`, "component offline"},
		{"details last", `{"details": "bus timeout"}`, "bus timeout"},
		{"garbage body", `<html>nope</html>`, "HTTP 404"},
		{"empty body", ``, "HTTP 404"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(tt.body))
			}))
			_, err := client.EntityDetail(context.Background(), EntityComponents, "ghost")
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want *APIError", err)
			}
			if apiErr.StatusCode != http.StatusNotFound {
				t.Errorf("StatusCode = %d", apiErr.StatusCode)
			}
			if apiErr.Error() != tt.want {
				t.Errorf("Error() = %q, want %q", apiErr.Error(), tt.want)
			}
		})
	}
}

func TestAPIErrorRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusNotFound, false},
		{http.StatusConflict, false},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
	}
	for _, tt := range tests {
		err := &APIError{StatusCode: tt.status}
		if got := err.Retryable(); got != tt.want {
			t.Errorf("Retryable(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestResetAllConfigurationsPartial(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		w.WriteHeader(http.StatusMultiStatus)
		w.Write([]byte(`{"succeeded": 3, "failures": [{"name": "wheel_base", "reason": "read-only"}]}`))
	}))

	result, err := client.ResetAllConfigurations(context.Background(), "drive_controller")
	if err != nil {
		t.Fatalf("ResetAllConfigurations: %v", err)
	}
	if !result.Partial() {
		t.Error("Partial() = false, want true")
	}
	if result.Succeeded != 3 || len(result.Failures) != 1 {
		t.Errorf("result = %+v", result)
	}
	if result.Failures[0].Name != "wheel_base" {
		t.Errorf("failure name = %q", result.Failures[0].Name)
	}
}

func TestDownloadBulkDataFilename(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", `attachment; filename="session_42.mcap"`)
		w.Write([]byte{0x1f, 0x8b, 0x00})
	}))

	bulk, err := client.DownloadBulkData(context.Background(), EntityComponents, "diag_recorder", "sessions", "42")
	if err != nil {
		t.Fatalf("DownloadBulkData: %v", err)
	}
	if bulk.Filename != "session_42.mcap" {
		t.Errorf("Filename = %q", bulk.Filename)
	}
	if bulk.ContentType != "application/octet-stream" {
		t.Errorf("ContentType = %q", bulk.ContentType)
	}
	if len(bulk.Data) != 3 {
		t.Errorf("Data length = %d", len(bulk.Data))
	}
}

func TestOperationStatusMissingGoal(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("goal_id") != "g-1" {
			t.Errorf("goal_id = %q", r.URL.Query().Get("goal_id"))
		}
		w.Write([]byte(`{"goals": []}`))
	}))

	_, err := client.OperationStatus(context.Background(), "ecu", "calibrate", "g-1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("err = %v, want 404 *APIError", err)
	}
}
