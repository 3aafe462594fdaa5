package api

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/ocrnode/internal/events"
	"github.com/smazurov/ocrnode/internal/ipc"
	modelstore "github.com/smazurov/ocrnode/internal/models"
	"github.com/smazurov/ocrnode/internal/sidecar"
)

// fakeRunner stands in for the supervisor.
type fakeRunner struct {
	mu        sync.Mutex
	boxes     []ipc.Box
	err       error
	lastReq   *ipc.Request
	cancelled bool
	status    sidecar.Status
}

func (f *fakeRunner) Run(_ context.Context, req *ipc.Request) ([]ipc.Box, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = req
	return f.boxes, f.err
}

func (f *fakeRunner) Cancel(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = true
	return f.status.State == sidecar.StateRunning, nil
}

func (f *fakeRunner) Status() sidecar.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeRunner) Tuning() (time.Duration, time.Duration) {
	return 120 * time.Second, 500 * time.Millisecond
}

func (f *fakeRunner) request() *ipc.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

func newTestServer(t *testing.T, runner *fakeRunner, opts *Options) *httptest.Server {
	t.Helper()
	if opts == nil {
		opts = &Options{}
	}
	opts.Supervisor = runner
	server := NewServer(opts)
	ts := httptest.NewServer(server.GetMux())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func installModel(t *testing.T, root, id string) {
	t.Helper()
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"inference.pdmodel", "inference.pdiparams"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestHealthAndVersionSkipAuth(t *testing.T) {
	ts := newTestServer(t, &fakeRunner{}, &Options{AuthUsername: "u", AuthPassword: "p"})

	for _, path := range []string{"/api/health", "/api/version"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestRunOCR(t *testing.T) {
	runner := &fakeRunner{boxes: []ipc.Box{{
		Text:       "Hello",
		Polygon:    []ipc.Point{{0, 0}, {10, 0}, {10, 5}, {0, 5}},
		Confidence: 0.9,
	}}}
	ts := newTestServer(t, runner, nil)

	resp := postJSON(t, ts.URL+"/api/ocr", `{"type":"path","data":"/tmp/a.png"}`)
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}

	got := decode[struct {
		Boxes []struct {
			Text       string       `json:"text"`
			Box        [][2]float64 `json:"box"`
			Confidence float64      `json:"confidence"`
		} `json:"boxes"`
		Count int `json:"count"`
	}](t, resp)

	if got.Count != 1 || len(got.Boxes) != 1 {
		t.Fatalf("unexpected body: %+v", got)
	}
	if got.Boxes[0].Text != "Hello" || got.Boxes[0].Box[2] != [2]float64{10, 5} {
		t.Errorf("unexpected box: %+v", got.Boxes[0])
	}

	req := runner.request()
	if req.Kind != ipc.KindPath || req.Data != "/tmp/a.png" || req.Config != nil {
		t.Errorf("unexpected request: %+v", req)
	}
}

func TestRunOCRResolvesModel(t *testing.T) {
	root := t.TempDir()
	installModel(t, root, "pp-ocr-v4-ar")

	runner := &fakeRunner{boxes: []ipc.Box{}}
	ts := newTestServer(t, runner, &Options{Models: modelstore.NewStore(root, "")})

	resp := postJSON(t, ts.URL+"/api/ocr", `{"type":"base64","data":"aGk=","model":"pp-ocr-v4-ar"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	req := runner.request()
	if req.Config == nil || req.Config.Language != "ar" || req.Config.RecognitionModelDir != filepath.Join(root, "pp-ocr-v4-ar") {
		t.Errorf("model config not resolved: %+v", req.Config)
	}

	tests := []struct {
		model string
		want  int
	}{
		{"pp-ocr-v4-fr", http.StatusNotFound},
		{"../etc", http.StatusBadRequest},
	}
	for _, tt := range tests {
		resp := postJSON(t, ts.URL+"/api/ocr", fmt.Sprintf(`{"type":"path","data":"/a.png","model":%q}`, tt.model))
		if resp.StatusCode != tt.want {
			t.Errorf("model %q: status = %d, want %d", tt.model, resp.StatusCode, tt.want)
		}
	}
}

func TestRunOCRValidation(t *testing.T) {
	runner := &fakeRunner{}
	ts := newTestServer(t, runner, nil)

	for _, body := range []string{
		`{"type":"url","data":"http://example.com/a.png"}`,
		`{"type":"path","data":""}`,
	} {
		resp := postJSON(t, ts.URL+"/api/ocr", body)
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Errorf("%s: status = %d, want 422", body, resp.StatusCode)
		}
	}
	if runner.request() != nil {
		t.Error("invalid input must not reach the supervisor")
	}
}

func TestRunOCRErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid request", fmt.Errorf("%w: empty", sidecar.ErrInvalidRequest), http.StatusBadRequest},
		{"worker error", &ipc.WorkerError{Message: "Image not found"}, http.StatusUnprocessableEntity},
		{"protocol error", ipc.NewProtocolError("garbage", []byte("oops")), http.StatusBadGateway},
		{"cancelled", sidecar.ErrCancelled, http.StatusConflict},
		{"timed out", sidecar.ErrTimedOut, http.StatusGatewayTimeout},
		{"launch failed", &sidecar.LaunchError{Path: "/x", Err: os.ErrNotExist}, http.StatusServiceUnavailable},
		{"io error", &sidecar.IOError{Op: "write request", Err: errors.New("broken pipe")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var se huma.StatusError
			if !errors.As(mapJobError(tt.err), &se) {
				t.Fatal("expected a huma status error")
			}
			if se.GetStatus() != tt.want {
				t.Errorf("status = %d, want %d", se.GetStatus(), tt.want)
			}
		})
	}

	ts := newTestServer(t, &fakeRunner{err: sidecar.ErrTimedOut}, nil)
	resp := postJSON(t, ts.URL+"/api/ocr", `{"type":"path","data":"/a.png"}`)
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", resp.StatusCode)
	}
}

func TestCancelAndStatus(t *testing.T) {
	started := time.Now().Add(-time.Second)
	runner := &fakeRunner{status: sidecar.Status{
		State:     sidecar.StateRunning,
		JobID:     "job-1",
		PID:       4242,
		StartedAt: started,
		Waiting:   1,
	}}
	ts := newTestServer(t, runner, nil)

	resp, err := http.Get(ts.URL + "/api/ocr/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	status := decode[map[string]any](t, resp)
	if status["state"] != "running" || status["job_id"] != "job-1" || status["pid"] != float64(4242) {
		t.Errorf("unexpected status: %v", status)
	}
	if status["timeout_ms"] != float64(120000) || status["waiting"] != float64(1) {
		t.Errorf("unexpected status: %v", status)
	}
	if _, ok := status["last_ended_at"]; ok {
		t.Error("last_ended_at should be omitted before any job finished")
	}

	cancel := postJSON(t, ts.URL+"/api/ocr/cancel", "")
	if cancel.StatusCode != http.StatusOK {
		t.Fatalf("cancel status = %d", cancel.StatusCode)
	}
	body := decode[map[string]any](t, cancel)
	if body["cancelled"] != true {
		t.Errorf("unexpected cancel body: %v", body)
	}
}

func TestListModels(t *testing.T) {
	root := t.TempDir()
	installModel(t, root, "pp-ocr-v4-ar")
	ts := newTestServer(t, &fakeRunner{}, &Options{Models: modelstore.NewStore(root, "")})

	resp, err := http.Get(ts.URL + "/api/models")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	got := decode[struct {
		Models []struct {
			ID      string `json:"id"`
			Default bool   `json:"default"`
		} `json:"models"`
		Count int `json:"count"`
	}](t, resp)

	if got.Count != 2 || got.Models[0].ID != modelstore.DefaultID || !got.Models[0].Default {
		t.Errorf("unexpected models: %+v", got)
	}
	if got.Models[1].ID != "pp-ocr-v4-ar" {
		t.Errorf("unexpected second model: %+v", got.Models[1])
	}
}

func TestBasicAuth(t *testing.T) {
	ts := newTestServer(t, &fakeRunner{}, &Options{AuthUsername: "test", AuthPassword: "secret"})
	creds := base64.StdEncoding.EncodeToString([]byte("test:secret"))
	wrong := base64.StdEncoding.EncodeToString([]byte("test:wrong"))

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"header", "Basic " + creds, "", http.StatusOK},
		{"query", "", creds, http.StatusOK},
		{"wrong password", "Basic " + wrong, "", http.StatusUnauthorized},
		{"bearer", "Bearer abc", "", http.StatusUnauthorized},
		{"not base64", "Basic ***", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := ts.URL + "/api/ocr/status"
			if tt.query != "" {
				url += "?auth=" + tt.query
			}
			req, _ := http.NewRequest(http.MethodGet, url, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if tt.want == http.StatusUnauthorized && resp.Header.Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ocrnode_sidecar_jobs_total 1\n")
	})
	ts := newTestServer(t, &fakeRunner{}, &Options{
		AuthUsername:      "u",
		AuthPassword:      "p",
		PrometheusHandler: handler,
	})

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "jobs_total") {
		t.Errorf("GET /metrics = %d %q", resp.StatusCode, body)
	}
}

func TestRootRedirectsToDocs(t *testing.T) {
	ts := newTestServer(t, &fakeRunner{}, nil)
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/docs" {
		t.Errorf("GET / = %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
}

func readSSEData(t *testing.T, body io.Reader) <-chan string {
	t.Helper()
	lines := make(chan string, 16)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(body)
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "data:") {
				lines <- line
			}
		}
	}()
	return lines
}

func TestEventStream(t *testing.T) {
	bus := events.New()
	runner := &fakeRunner{status: sidecar.Status{State: sidecar.StateIdle}}
	ts := newTestServer(t, runner, &Options{EventBus: bus})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to connect to SSE: %v", err)
	}
	defer resp.Body.Close()

	if !strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("Expected SSE content type, got %s", resp.Header.Get("Content-Type"))
	}

	lines := readSSEData(t, resp.Body)
	select {
	case msg := <-lines:
		if !strings.Contains(msg, `"to":"idle"`) {
			t.Errorf("expected initial state snapshot, got: %s", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for initial SSE message")
	}

	bus.Publish(events.JobFinishedEvent{JobID: "job-42", State: "completed", Outcome: "success"})

	select {
	case msg := <-lines:
		if !strings.Contains(msg, "job-42") || !strings.Contains(msg, `"outcome":"success"`) {
			t.Errorf("unexpected event: %s", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for job-finished event")
	}
}

func TestEventStreamRequiresAuth(t *testing.T) {
	ts := newTestServer(t, &fakeRunner{}, &Options{AuthUsername: "test", AuthPassword: "test"})

	resp, err := http.Get(ts.URL + "/api/events")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Expected status 401, got %d", resp.StatusCode)
	}
}

func TestStartStop(t *testing.T) {
	ready := make(chan net.Addr, 1)
	server := NewServer(&Options{
		Supervisor: &fakeRunner{},
		OnReady:    func(addr net.Addr) { ready <- addr },
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start("127.0.0.1:0") }()

	var addr net.Addr
	select {
	case addr = <-ready:
	case err := <-errCh:
		t.Fatalf("Start returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server never became ready")
	}

	resp, err := http.Get("http://" + addr.String() + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}

	if err := server.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Start after Stop = %v, want nil", err)
	}
}
