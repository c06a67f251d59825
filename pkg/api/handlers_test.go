package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"physio-replay/pkg/monitor"
)

const vitalsCSV = `time,HR,SpO2
0,70,97
1,72,97
2,71,96
3,73,97
4,74,96
5,72,97
`

// newTestServer wires a fresh engine behind the full route table so tests
// exercise the same mux production uses.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	h := NewHandler(monitor.New(nil), nil, NewTrendCache(time.Minute), t.Logf)
	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// uploadCSV posts body as a multipart capture for the given kind and
// returns the response.
func uploadCSV(t *testing.T, srv *httptest.Server, kind, body string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "capture.csv")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := fw.Write([]byte(body)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	mw.Close()

	resp, err := http.Post(srv.URL+"/api/upload/"+kind, mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

// TestOverviewListsKinds checks the self-describing index names every
// signal class and endpoint.
func TestOverviewListsKinds(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var overview struct {
		Kinds     []string       `json:"kinds"`
		Endpoints map[string]any `json:"endpoints"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&overview); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(overview.Kinds) != 3 {
		t.Fatalf("kinds = %v, want 3 entries", overview.Kinds)
	}
	for _, ep := range []string{"upload", "live", "trend", "stream", "history"} {
		if _, ok := overview.Endpoints[ep]; !ok {
			t.Errorf("endpoint %q missing from overview", ep)
		}
	}
}

// TestUploadThenLive walks the happy path over real HTTP.
func TestUploadThenLive(t *testing.T) {
	srv := newTestServer(t)

	resp := uploadCSV(t, srv, "vitals-numerics", vitalsCSV)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	var summary struct {
		UploadID string  `json:"uploadID"`
		Channels int     `json:"channels"`
		Duration float64 `json:"durationSeconds"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Channels != 2 || summary.Duration != 5 {
		t.Fatalf("summary = %+v", summary)
	}

	live, err := http.Get(srv.URL + "/api/vitals-numerics/live")
	if err != nil {
		t.Fatalf("live: %v", err)
	}
	defer live.Body.Close()
	if live.StatusCode != http.StatusOK {
		t.Fatalf("live status = %d", live.StatusCode)
	}
	var window struct {
		WindowStart float64        `json:"windowStart"`
		Truncated   bool           `json:"truncated"`
		Channels    map[string]any `json:"channels"`
	}
	if err := json.NewDecoder(live.Body).Decode(&window); err != nil {
		t.Fatalf("decode window: %v", err)
	}
	if !window.Truncated {
		t.Error("5s record in a 10s window should be truncated")
	}
	if len(window.Channels) != 2 {
		t.Errorf("window channels = %d, want 2", len(window.Channels))
	}
}

// TestLiveBeforeUploadConflicts checks the sequencing error surfaces as 409.
func TestLiveBeforeUploadConflicts(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/eeg/live")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

// TestUploadRejections covers client-side upload mistakes.
func TestUploadRejections(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		kind   string
		body   string
		status int
	}{
		{"unknown kind", "heart-rate", vitalsCSV, http.StatusNotFound},
		{"malformed cell", "vitals-numerics", "time,HR\nnope,70\n", http.StatusBadRequest},
		{"header only", "vitals-numerics", "time,HR\n", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := uploadCSV(t, srv, tt.kind, tt.body)
			resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

// TestUploadRequiresPost checks the upload route refuses GET.
func TestUploadRequiresPost(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/upload/eeg")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}

// TestTrendParamsAndCacheRefresh checks point clamping, channel selection
// and that a re-upload is visible immediately despite the response cache.
func TestTrendParamsAndCacheRefresh(t *testing.T) {
	srv := newTestServer(t)
	uploadCSV(t, srv, "vitals-numerics", vitalsCSV).Body.Close()

	get := func(url string) (int, map[string]json.RawMessage) {
		t.Helper()
		resp, err := http.Get(url)
		if err != nil {
			t.Fatalf("get %s: %v", url, err)
		}
		defer resp.Body.Close()
		var payload struct {
			Points   int                        `json:"points"`
			Channels map[string]json.RawMessage `json:"channels"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return payload.Points, payload.Channels
	}

	points, channels := get(srv.URL + "/api/vitals-numerics/trend?points=4&channels=HR")
	if points != minTrendPoints {
		t.Errorf("points = %d, want clamped to %d", points, minTrendPoints)
	}
	if len(channels) != 1 {
		t.Errorf("channels = %d, want just HR", len(channels))
	}

	// Same query again to land on the cached response, then re-upload with
	// one channel and confirm the cache was purged.
	get(srv.URL + "/api/vitals-numerics/trend?channels=HR")
	uploadCSV(t, srv, "vitals-numerics", "time,MAP\n0,90\n1,91\n2,92\n").Body.Close()
	_, channels = get(srv.URL + "/api/vitals-numerics/trend")
	if _, ok := channels["MAP"]; !ok || len(channels) != 1 {
		t.Fatalf("post-reupload channels = %v, want just MAP", channels)
	}
}

// TestHistoryWithoutCatalog checks the endpoint degrades to an empty list
// when no database is attached.
func TestHistoryWithoutCatalog(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/history")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var payload struct {
		Uploads []any `json:"uploads"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Uploads) != 0 {
		t.Fatalf("uploads = %v, want empty", payload.Uploads)
	}
}

// TestStreamEmitsWindows reads the first SSE event and checks it carries a
// window payload.
func TestStreamEmitsWindows(t *testing.T) {
	srv := newTestServer(t)
	uploadCSV(t, srv, "vitals-numerics", vitalsCSV).Body.Close()

	resp, err := http.Get(srv.URL + "/api/vitals-numerics/stream")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	buf := make([]byte, 4096)
	n, err := resp.Body.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	event := string(buf[:n])
	if !strings.HasPrefix(event, "data: ") {
		t.Fatalf("first event = %q, want data frame", event)
	}
	var window struct {
		Channels map[string]any `json:"channels"`
	}
	payload := strings.TrimPrefix(strings.SplitN(event, "\n", 2)[0], "data: ")
	if err := json.Unmarshal([]byte(payload), &window); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if len(window.Channels) != 2 {
		t.Fatalf("streamed channels = %d, want 2", len(window.Channels))
	}
}

// TestStreamWithoutRecordEndsImmediately checks the feed closes with a done
// event when the kind has no record.
func TestStreamWithoutRecordEndsImmediately(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/eeg/stream")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	buf := make([]byte, 1024)
	n, _ := resp.Body.Read(buf)
	if !strings.HasPrefix(string(buf[:n]), "event: done") {
		t.Fatalf("first event = %q, want done", string(buf[:n]))
	}
}
