package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/voxcache/voxcache/internal/cache"
	"github.com/voxcache/voxcache/internal/metrics"
	"github.com/voxcache/voxcache/internal/synth"
	"github.com/voxcache/voxcache/internal/tts"
	"github.com/voxcache/voxcache/internal/tts/engines/mock"
)

type fakeResolver struct {
	mu   sync.Mutex
	res  *synth.Result
	err  error
	reqs []synth.Request
}

func (f *fakeResolver) Resolve(_ context.Context, req synth.Request) (*synth.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return f.res, f.err
}

type fakeRecords []cache.VoiceRecord

func (f fakeRecords) Records() []cache.VoiceRecord { return f }

func quietLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

func TestTransform(t *testing.T) {
	wav := mock.WAV(64)
	tests := []struct {
		name       string
		query      string
		res        *synth.Result
		err        error
		wantStatus int
		wantSource string
	}{
		{
			name:       "cached audio",
			query:      "text=hello&effects=whispered",
			res:        &synth.Result{Audio: wav, Source: synth.SourceCache},
			wantStatus: http.StatusOK,
			wantSource: "cache",
		},
		{
			name:       "fallback audio",
			query:      "text=hello",
			res:        &synth.Result{Audio: wav, Source: synth.SourceFallback},
			wantStatus: http.StatusOK,
			wantSource: "fallback",
		},
		{
			name:       "missing text",
			query:      "effects=whispered",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "blank text",
			query:      "text=%20%20",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown effect",
			query:      "text=hello&effects=shouted",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "fallback failed",
			query:      "text=hello",
			err:        tts.NewError(tts.ErrorCodeFallbackFailed, "pico2wave failed", nil),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &fakeResolver{res: tt.res, err: tt.err}
			h := NewRouter(resolver, fakeRecords(nil), nil, quietLogger())

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transform?"+tt.query, nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if _, err := uuid.Parse(rec.Header().Get(HeaderRequestID)); err != nil {
				t.Errorf("request id %q is not a uuid", rec.Header().Get(HeaderRequestID))
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if ct := rec.Header().Get("Content-Type"); ct != "audio/wav" {
				t.Errorf("Content-Type = %s", ct)
			}
			if src := rec.Header().Get(HeaderSource); src != tt.wantSource {
				t.Errorf("%s = %s, want %s", HeaderSource, src, tt.wantSource)
			}
			if rec.Body.Len() != len(wav) {
				t.Errorf("body = %d bytes, want %d", rec.Body.Len(), len(wav))
			}
		})
	}
}

func TestTransform_TextErrorMessages(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"missing", "", "text cannot be empty"},
		{"invalid utf-8", "text=%ff%fe", "not valid UTF-8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &fakeResolver{}
			h := NewRouter(resolver, fakeRecords(nil), nil, quietLogger())

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transform?"+tt.query, nil))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			var body struct {
				Error string `json:"error"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(body.Error, tt.want) {
				t.Errorf("error = %q, want it to mention %q", body.Error, tt.want)
			}
			if len(resolver.reqs) != 0 {
				t.Error("invalid text must not reach the resolver")
			}
		})
	}
}

func TestTransform_ParsesEffects(t *testing.T) {
	resolver := &fakeResolver{res: &synth.Result{Audio: mock.WAV(8), Source: synth.SourceCloud}}
	h := NewRouter(resolver, fakeRecords(nil), nil, quietLogger())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transform?text=hi&effects=Auto-Breaths,%20whispered,,whispered", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	got := resolver.reqs[0]
	want := tts.NewEffectSet(tts.EffectWhispered, tts.EffectAutoBreaths)
	if got.Text != "hi" || !got.Effects.Equal(want) {
		t.Errorf("request = %+v, want text hi with %s", got, want)
	}
}

func TestTransform_MethodNotAllowed(t *testing.T) {
	h := NewRouter(&fakeResolver{}, fakeRecords(nil), nil, quietLogger())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/transform?text=hi", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestRecords(t *testing.T) {
	records := fakeRecords{
		{Name: "amazonPolly_Joanna_1", Provider: "amazonPolly", VoiceID: "Joanna", Text: "hi", UsageCount: 3},
	}
	h := NewRouter(&fakeResolver{}, records, nil, quietLogger())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/records", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		Count   int `json:"count"`
		Records []struct {
			Name       string `json:"name"`
			VoiceID    string `json:"voiceId"`
			UsageCount int64  `json:"usageCount"`
		} `json:"records"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 1 || body.Records[0].VoiceID != "Joanna" || body.Records[0].UsageCount != 3 {
		t.Errorf("body = %+v", body)
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	m := metrics.New()
	m.Request(metrics.SourceCache)
	h := NewRouter(&fakeResolver{}, fakeRecords(nil), m.Handler(), quietLogger())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "voxcache_requests_total") {
		t.Error("metrics endpoint missing voxcache counters")
	}
}

func TestRecovery(t *testing.T) {
	h := NewRouter(panicResolver{}, fakeRecords(nil), nil, quietLogger())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transform?text=boom", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

type panicResolver struct{}

func (panicResolver) Resolve(context.Context, synth.Request) (*synth.Result, error) {
	panic("resolver exploded")
}

// TestTransform_EndToEnd runs the real orchestrator behind the router.
func TestTransform_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	layout := cache.Layout{Dir: dir}
	fp, err := cache.NewFilePersister(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer fp.Close()
	store, err := cache.Open(context.Background(), fp)
	if err != nil {
		t.Fatal(err)
	}
	provider := mock.NewProvider("Joanna")
	o, err := synth.New(provider, mock.NewSynthesizer(), mock.NewConverter(), store, layout)
	if err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(NewRouter(o, store, nil, quietLogger()))
	defer srv.Close()

	for i, want := range []string{"cloud", "cache", "cache"} {
		resp, err := http.Get(srv.URL + "/transform?text=hello&effects=whispered,auto-breaths")
		if err != nil {
			t.Fatal(err)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || resp.Header.Get(HeaderSource) != want {
			t.Errorf("request %d: %d %s, want 200 %s", i, resp.StatusCode, resp.Header.Get(HeaderSource), want)
		}
	}
	if provider.Calls() != 1 {
		t.Errorf("provider calls = %d, want 1", provider.Calls())
	}
	if recs := store.Records(); len(recs) != 1 || recs[0].UsageCount != 2 {
		t.Errorf("records = %+v", recs)
	}
}

func TestServer_RunAndShutdown(t *testing.T) {
	srv := NewServer(ServerConfig{Addr: "127.0.0.1:0"}, NewRouter(&fakeResolver{}, fakeRecords(nil), nil, quietLogger()), quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	var addr string
	select {
	case a := <-srv.Started():
		addr = a.String()
	case err := <-done:
		t.Fatalf("Run() = %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", addr))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() after shutdown = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
