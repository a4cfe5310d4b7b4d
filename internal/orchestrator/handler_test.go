package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func newTestHandler(t *testing.T) (*Handler, *InMemoryRepository) {
	t.Helper()
	repo := newTestRepository()
	svc := NewService(repo)
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewHandler(svc, log), repo
}

func newTestRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func post(t *testing.T, r http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var b []byte
	switch v := body.(type) {
	case nil:
	case string:
		b = []byte(v)
	default:
		b, _ = json.Marshal(v)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandler_RegisterSegment(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newTestRouter(h)

	body := map[string]interface{}{"id": "a", "steps": []map[string]interface{}{{"duration": 2.0}}}
	rec := post(t, r, "/sessions/s1/segments", body)

	if rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", rec.Code)
	}
}

func TestHandler_RegisterSegment_bad_request(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newTestRouter(h)

	cases := map[string]any{
		"not json":      "not json",
		"unknown field": map[string]interface{}{"id": "a", "colour": "red"},
		"missing id":    map[string]interface{}{"steps": []interface{}{}},
		"bad fallback":  map[string]interface{}{"id": "a", "fallback": map[string]interface{}{"mode": "maybe"}},
	}
	for name, body := range cases {
		if rec := post(t, r, "/sessions/s1/segments", body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, rec.Code)
		}
	}
}

func TestHandler_RegisterSegment_conflict_after_end(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newTestRouter(h)

	if rec := post(t, r, "/sessions/s1/segments", map[string]interface{}{"id": "a"}); rec.Code != http.StatusAccepted {
		t.Fatalf("setup: expected 202, got %d", rec.Code)
	}
	if rec := post(t, r, "/sessions/s1/end", nil); rec.Code != http.StatusOK {
		t.Fatalf("end session: expected 200, got %d", rec.Code)
	}

	rec := post(t, r, "/sessions/s1/segments", map[string]interface{}{"id": "b"})
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 after session ended, got %d", rec.Code)
	}
}

func TestHandler_LoadCompositionAndStatus(t *testing.T) {
	h, repo := newTestHandler(t)
	r := newTestRouter(h)

	rec := post(t, r, "/sessions/s1/composition", scenario())
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	waitSession(t, repo, "s1")

	req := httptest.NewRequest(http.MethodGet, "/sessions/s1", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("expected json content type, got %s", rec.Header().Get("Content-Type"))
	}
	var st Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !st.Ready || st.Expected != 3 || st.Labels["A.mid"] != 1.5 {
		t.Errorf("unexpected status: %+v", st)
	}
	var sawFallbackError bool
	for _, p := range st.Placements {
		if p.ID == "C" && p.Outcome == "fallback" && strings.Contains(p.Error, "X.never") {
			sawFallbackError = true
		}
	}
	if !sawFallbackError {
		t.Errorf("expected C to fall back with missing X.never: %+v", st.Placements)
	}
}

func TestHandler_LoadComposition_duplicateIDs(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newTestRouter(h)

	c := scenario()
	c.Segments[1].ID = "A"
	if rec := post(t, r, "/sessions/s1/composition", c); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_GetSchedule(t *testing.T) {
	h, repo := newTestHandler(t)
	r := newTestRouter(h)

	post(t, r, "/sessions/s1/composition", scenario())
	waitSession(t, repo, "s1")

	req := httptest.NewRequest(http.MethodGet, "/sessions/s1/schedule.txt", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Errorf("expected text content type, got %s", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "@1.500 B") {
		t.Errorf("unexpected schedule body: %s", rec.Body.String())
	}
}

func TestHandler_not_found(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newTestRouter(h)

	for _, path := range []string{"/sessions/missing", "/sessions/missing/schedule.txt"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, rec.Code)
		}
	}
}

func TestHandler_EndSession(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newTestRouter(h)

	if rec := post(t, r, "/sessions/s1/end", nil); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_segmentsAcrossRequests(t *testing.T) {
	h, repo := newTestHandler(t)
	r := newTestRouter(h)

	// B is submitted before A in a separate request and still joins on A.mid.
	post(t, r, "/sessions/s1/segments", map[string]interface{}{"id": "B", "depends_on": []string{"A.mid"}, "timeout": "1s"})
	post(t, r, "/sessions/s1/segments", map[string]interface{}{
		"id":     "A",
		"steps":  []map[string]interface{}{{"duration": 1}, {"mark": "mid"}, {"duration": 1}},
		"labels": map[string]interface{}{"mid": map[string]interface{}{}},
	})

	sess, _ := repo.Get("s1")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for !sess.Registry.Ready() {
		select {
		case <-ctx.Done():
			t.Fatal("session never became ready")
		case <-time.After(5 * time.Millisecond):
		}
	}

	st, _ := h.svc.Status("s1")
	for _, p := range st.Placements {
		if p.ID == "B" && p.StartAt != 1 {
			t.Errorf("B should start at A.mid = 1, got %v", p.StartAt)
		}
	}
}

type failingWriter struct {
	header http.Header
	code   int
}

func (w *failingWriter) Header() http.Header       { return w.header }
func (w *failingWriter) WriteHeader(code int)      { w.code = code }
func (w *failingWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestHandler_GetSchedule_logsWriteFailure(t *testing.T) {
	var logs bytes.Buffer
	repo := newTestRepository()
	svc := NewService(repo)
	h := NewHandler(svc, slog.New(slog.NewJSONHandler(&logs, nil)))
	r := newTestRouter(h)

	post(t, r, "/sessions/s1/segments", map[string]interface{}{"id": "a"})
	waitSession(t, repo, "s1")

	w := &failingWriter{header: http.Header{}}
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/s1/schedule.txt", nil))

	if w.code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.code)
	}
	if !strings.Contains(logs.String(), "write schedule failed") || !strings.Contains(logs.String(), "connection reset") {
		t.Errorf("expected write failure to be logged, got: %s", logs.String())
	}
}
