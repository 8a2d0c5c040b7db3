package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/revelation/internal/config"
	"github.com/hyperjump/revelation/internal/errs"
	"github.com/hyperjump/revelation/internal/feedback"
	"github.com/hyperjump/revelation/internal/metadata"
	"github.com/hyperjump/revelation/internal/metrics"
	"github.com/hyperjump/revelation/internal/models"
	"github.com/hyperjump/revelation/internal/ranking"
	"github.com/hyperjump/revelation/internal/service"
	"go.uber.org/zap"
)

type fakeEngine struct {
	ready   bool
	results []ranking.Result
	err     error
	gotK    int
	gotData []byte
}

func (f *fakeEngine) Predict(_ context.Context, image []byte, k int) ([]ranking.Result, error) {
	f.gotData, f.gotK = image, k
	return f.results, f.err
}

func (f *fakeEngine) RankVector(_ context.Context, _ []float32, k int) ([]ranking.Result, error) {
	f.gotK = k
	return f.results, f.err
}

func (f *fakeEngine) Ready() bool       { return f.ready }
func (f *fakeEngine) ModelLoaded() bool { return true }
func (f *fakeEngine) Status() service.Status {
	return service.Status{Ready: f.ready, ModelLoaded: true, Entries: 3, RankMode: "exact"}
}

const testCatalog = "id,name,model_path\n101,Iron Sword,m/sword\n102,Steel Sword,m/sword\n201,Iron Shield,m/shield\n"

func newTestServer(t *testing.T, engine *fakeEngine, withFeedback bool) *Server {
	t.Helper()
	cat, err := metadata.ParseCSV(strings.NewReader(testCatalog))
	if err != nil {
		t.Fatal(err)
	}
	opts := []Option{WithCatalog(metadata.NewStore(cat)), WithMetrics(metrics.New())}
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	if withFeedback {
		dir := t.TempDir()
		backend, err := feedback.NewLocalBackend(filepath.Join(dir, "images"))
		if err != nil {
			t.Fatal(err)
		}
		store, err := feedback.OpenStore(filepath.Join(dir, "feedback.db"))
		if err != nil {
			t.Fatal(err)
		}
		svc := feedback.NewService(backend, store, zap.NewNop())
		t.Cleanup(func() { svc.Close() })
		opts = append(opts, WithFeedback(svc))
		cfg.Feedback.Dir = filepath.Join(dir, "images")
		cfg.Feedback.DatabasePath = filepath.Join(dir, "feedback.db")
	}
	cfg.Gallery.CachePath = filepath.Join(t.TempDir(), "gallery.bin")
	return NewServer(engine, cfg, zap.NewNop(), opts...)
}

func multipartBody(t *testing.T, field, contentType string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="crop.png"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func do(t *testing.T, srv *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{ready: true}, false)
	w := do(t, srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out models.HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Status != "healthy" || !out.ModelLoaded || !out.GalleryLoaded {
		t.Errorf("health = %+v", out)
	}
}

func TestHandlePredict(t *testing.T) {
	engine := &fakeEngine{ready: true, results: []ranking.Result{
		{Rank: 1, Label: "Iron Sword_101", Score: 0.9},
		{Rank: 2, Label: "Iron Shield_201", Score: 0.5},
	}}
	srv := newTestServer(t, engine, false)
	body, ct := multipartBody(t, "image", "image/png", []byte("png"), map[string]string{"k": "2"})
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", ct)
	w := do(t, srv, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d body %s", w.Code, w.Body)
	}
	var out models.PredictionResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if engine.gotK != 2 || string(engine.gotData) != "png" {
		t.Errorf("engine got k=%d data=%q", engine.gotK, engine.gotData)
	}
	if len(out.Results) != 2 {
		t.Fatalf("results = %+v", out.Results)
	}
	if got := out.Results[0].SameModelGears; len(got) != 1 || got[0].ID != "102" {
		t.Errorf("siblings of first result = %+v", got)
	}
	if got := out.Results[1].SameModelGears; got == nil || len(got) != 0 {
		t.Errorf("siblings of lone item = %#v, want empty list", got)
	}
}

func TestHandlePredict_FileFieldAccepted(t *testing.T) {
	engine := &fakeEngine{ready: true}
	srv := newTestServer(t, engine, false)
	body, ct := multipartBody(t, "file", "image/jpeg", []byte("jpg"), nil)
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", ct)
	if w := do(t, srv, req); w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	if engine.gotK != 0 {
		t.Errorf("default k forwarded as %d, want 0", engine.gotK)
	}
}

func TestHandlePredict_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		fields      map[string]string
		engine      *fakeEngine
		want        int
	}{
		{"not an image", "text/plain", nil, &fakeEngine{ready: true}, http.StatusBadRequest},
		{"bad k", "image/png", map[string]string{"k": "abc"}, &fakeEngine{ready: true}, http.StatusBadRequest},
		{"zero k", "image/png", map[string]string{"k": "0"}, &fakeEngine{ready: true}, http.StatusBadRequest},
		{"not ready", "image/png", nil, &fakeEngine{err: errs.Unavailable("service.predict", "gallery not loaded")}, http.StatusServiceUnavailable},
		{"undecodable", "image/png", nil, &fakeEngine{ready: true, err: errs.Invalid("embedding.Decode", "cannot decode")}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.engine, false)
			body, ct := multipartBody(t, "image", tt.contentType, []byte("x"), tt.fields)
			req := httptest.NewRequest(http.MethodPost, "/predict", body)
			req.Header.Set("Content-Type", ct)
			if w := do(t, srv, req); w.Code != tt.want {
				t.Errorf("status: got %d, want %d (%s)", w.Code, tt.want, w.Body)
			}
		})
	}
}

func TestHandleRank(t *testing.T) {
	engine := &fakeEngine{ready: true, results: []ranking.Result{{Rank: 1, Label: "Iron Sword_101", Score: 1}}}
	srv := newTestServer(t, engine, false)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/rank", strings.NewReader(`{"embedding":[1,0],"k":3}`))
	w := do(t, srv, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	if engine.gotK != 3 {
		t.Errorf("k = %d", engine.gotK)
	}
	req = httptest.NewRequest(http.MethodPost, "/api/v1/rank", strings.NewReader(`{`))
	if w := do(t, srv, req); w.Code != http.StatusBadRequest {
		t.Errorf("malformed body status: got %d", w.Code)
	}
}

func TestFeedbackRoundTrip(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{ready: true}, true)

	body, ct := multipartBody(t, "image", "image/png", []byte("png"), map[string]string{"label": " Iron Sword_101 "})
	req := httptest.NewRequest(http.MethodPost, "/feedback", body)
	req.Header.Set("Content-Type", ct)
	w := do(t, srv, req)
	if w.Code != http.StatusOK {
		t.Fatalf("create status: got %d (%s)", w.Code, w.Body)
	}
	var created struct {
		Status string `json:"status"`
		ID     string `json:"id"`
	}
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.Status != "success" || created.ID == "" {
		t.Fatalf("created = %+v", created)
	}

	w = do(t, srv, httptest.NewRequest(http.MethodGet, "/feedback/"+created.ID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("get status: got %d", w.Code)
	}
	var rec feedback.Record
	json.NewDecoder(w.Body).Decode(&rec)
	if rec.Label != "Iron Sword_101" {
		t.Errorf("label = %q", rec.Label)
	}

	w = do(t, srv, httptest.NewRequest(http.MethodGet, "/feedback?skip=0&limit=10", nil))
	var list struct {
		Records []feedback.Record `json:"records"`
	}
	json.NewDecoder(w.Body).Decode(&list)
	if len(list.Records) != 1 {
		t.Errorf("records = %d", len(list.Records))
	}

	if w := do(t, srv, httptest.NewRequest(http.MethodGet, "/feedback/nope", nil)); w.Code != http.StatusNotFound {
		t.Errorf("missing record status: got %d", w.Code)
	}
	if w := do(t, srv, httptest.NewRequest(http.MethodGet, "/feedback?limit=-1", nil)); w.Code != http.StatusBadRequest {
		t.Errorf("negative limit status: got %d", w.Code)
	}
}

func TestFeedback_EmptyLabel(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{ready: true}, true)
	body, ct := multipartBody(t, "image", "image/png", []byte("png"), map[string]string{"label": "  "})
	req := httptest.NewRequest(http.MethodPost, "/feedback", body)
	req.Header.Set("Content-Type", ct)
	if w := do(t, srv, req); w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestFeedback_NotConfigured(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{ready: true}, false)
	if w := do(t, srv, httptest.NewRequest(http.MethodGet, "/feedback", nil)); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestGearEndpoints(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{ready: true}, false)

	w := do(t, srv, httptest.NewRequest(http.MethodGet, "/gears/search?q=sword", nil))
	var search struct {
		Results []metadata.Match `json:"results"`
	}
	json.NewDecoder(w.Body).Decode(&search)
	if len(search.Results) != 2 {
		t.Errorf("search results = %+v", search.Results)
	}

	w = do(t, srv, httptest.NewRequest(http.MethodGet, "/gears/autocomplete?q=iron&limit=1", nil))
	var ac struct {
		Suggestions []string `json:"suggestions"`
	}
	json.NewDecoder(w.Body).Decode(&ac)
	if len(ac.Suggestions) != 1 || ac.Suggestions[0] != "Iron Sword" {
		t.Errorf("suggestions = %v", ac.Suggestions)
	}

	w = do(t, srv, httptest.NewRequest(http.MethodGet, "/gears/Steel%20Sword_102/siblings", nil))
	var sib struct {
		Siblings []metadata.Sibling `json:"same_model_gears"`
	}
	json.NewDecoder(w.Body).Decode(&sib)
	if len(sib.Siblings) != 1 || sib.Siblings[0].ID != "101" {
		t.Errorf("siblings = %+v", sib.Siblings)
	}
}

func TestHandleStatusAndMetrics(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{ready: true}, true)
	w := do(t, srv, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out map[string]any
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"service", "catalog", "feedback_records", "config", "disk", "disk_usage_bytes"} {
		if _, ok := out[key]; !ok {
			t.Errorf("status missing %q: %v", key, out)
		}
	}
	disk, _ := out["disk"].(map[string]any)
	for _, key := range []string{"gallery_cache_bytes", "feedback_db_bytes", "feedback_image_bytes", "feedback_images"} {
		if _, ok := disk[key]; !ok {
			t.Errorf("disk breakdown missing %q: %v", key, disk)
		}
	}

	w = do(t, srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "revelation_") {
		t.Errorf("metrics: status %d", w.Code)
	}
}
