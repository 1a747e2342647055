package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AaronLay10/SentientStory/internal/config"
	"github.com/AaronLay10/SentientStory/internal/orchestrator"
	"github.com/AaronLay10/SentientStory/internal/registry"
	"github.com/AaronLay10/SentientStory/internal/storage/postgres"
	"github.com/AaronLay10/SentientStory/internal/story"
)

type fakeJournal struct {
	rows      []postgres.EventRow
	err       error
	lastLimit int
}

func (f *fakeJournal) Query(limit int) ([]postgres.EventRow, error) {
	f.lastLimit = limit
	return f.rows, f.err
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	g, err := story.NewGraph(story.Meta{ID: "test", Title: "Test Story", HowToPlay: "Pick a door."}, "hall", []story.Scene{
		{ID: "hall", Text: "Two doors.", Choices: []story.Choice{
			{Label: "Left", Next: "exit"},
			{Label: "Right", Outcome: "Eliminated", Text: "Spikes."},
		}},
		{ID: "exit", Text: "Sunlight.", Outcome: "Victory"},
	})
	if err != nil {
		t.Fatalf("failed to build graph: %v", err)
	}
	if opts.Manager == nil {
		opts.Manager = orchestrator.NewManager(g, registry.New(2), 0)
	}
	opts.GameID = "test"
	return NewServer(opts)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(&v); err != nil {
		t.Fatalf("failed to decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, Options{}).Handler()

	w := do(t, h, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp := decode[HealthResponse](t, w); resp.Status != "ok" {
		t.Errorf("expected status ok, got %q", resp.Status)
	}
}

func TestStory(t *testing.T) {
	h := newTestServer(t, Options{}).Handler()

	resp := decode[StoryResponse](t, do(t, h, "GET", "/story", ""))
	if resp.Title != "Test Story" || resp.Entry != "hall" || resp.Scenes != 2 || resp.HowToPlay != "Pick a door." {
		t.Errorf("unexpected story response: %+v", resp)
	}
}

func TestPlayerUIServedAtRootOnly(t *testing.T) {
	h := newTestServer(t, Options{}).Handler()

	w := do(t, h, "GET", "/", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Header().Get("Content-Type"), "text/html") {
		t.Errorf("expected html page, got %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	if w := do(t, h, "GET", "/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown path, got %d", w.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	h := newTestServer(t, Options{}).Handler()

	w := do(t, h, "POST", "/sessions", `{"player":"Ana"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	v := decode[orchestrator.View](t, w)
	if v.Player != "Ana" || v.State != story.StateInSession || v.Scene.ID != "hall" {
		t.Fatalf("unexpected start view: %+v", v)
	}
	if len(v.Scene.Choices) != 2 || v.Scene.Choices[0].Index != 1 {
		t.Fatalf("expected two 1-based choices, got %+v", v.Scene.Choices)
	}

	w = do(t, h, "GET", "/sessions/"+v.SessionID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = do(t, h, "POST", "/sessions/"+v.SessionID+"/choose", `{"choice":1}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	v = decode[orchestrator.View](t, w)
	if !v.Ended() || v.Outcome.Result != "Victory" || !v.Committed {
		t.Fatalf("expected committed victory, got %+v", v)
	}

	// Choosing again is a state conflict.
	w = do(t, h, "POST", "/sessions/"+v.SessionID+"/choose", `{"choice":1}`)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
	if resp := decode[ErrorResponse](t, w); resp.OK || resp.Error == "" {
		t.Errorf("unexpected error body: %+v", resp)
	}

	reg := decode[RegistryResponse](t, do(t, h, "GET", "/registry", ""))
	if reg.Size != 1 || reg.Capacity != 2 || reg.Entries[0].Player != "Ana" || reg.Entries[0].Outcome != "Victory" {
		t.Errorf("unexpected registry: %+v", reg)
	}

	w = do(t, h, "DELETE", "/sessions/"+v.SessionID, "")
	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}
	if w := do(t, h, "GET", "/sessions/"+v.SessionID, ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", w.Code)
	}
}

func TestStartWithoutBodyIsAnonymous(t *testing.T) {
	h := newTestServer(t, Options{}).Handler()

	w := do(t, h, "POST", "/sessions", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if v := decode[orchestrator.View](t, w); v.Player != story.DefaultPlayer {
		t.Errorf("expected default player, got %q", v.Player)
	}
}

func TestInvalidChoiceIsScriptedLoss(t *testing.T) {
	h := newTestServer(t, Options{}).Handler()
	v := decode[orchestrator.View](t, do(t, h, "POST", "/sessions", `{"player":"Bruno"}`))

	w := do(t, h, "POST", "/sessions/"+v.SessionID+"/choose", `{"choice":7}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	v = decode[orchestrator.View](t, w)
	if v.Outcome == nil || v.Outcome.Result != story.OutcomeInvalidChoice {
		t.Errorf("expected invalid-choice outcome, got %+v", v.Outcome)
	}
}

func TestBadRequests(t *testing.T) {
	h := newTestServer(t, Options{}).Handler()
	v := decode[orchestrator.View](t, do(t, h, "POST", "/sessions", `{}`))

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"start with bad json", "POST", "/sessions", `{`, http.StatusBadRequest},
		{"choose with string", "POST", "/sessions/" + v.SessionID + "/choose", `{"choice":"one"}`, http.StatusBadRequest},
		{"choose unknown session", "POST", "/sessions/missing/choose", `{"choice":1}`, http.StatusNotFound},
		{"view unknown session", "GET", "/sessions/missing", "", http.StatusNotFound},
		{"delete unknown session", "DELETE", "/sessions/missing", "", http.StatusNotFound},
		{"wrong method", "PUT", "/sessions", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(t, h, tt.method, tt.path, tt.body); w.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestTooManySessions(t *testing.T) {
	s := newTestServer(t, Options{})
	s.manager.SetMaxSessions(1)
	h := s.Handler()

	if w := do(t, h, "POST", "/sessions", `{}`); w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if w := do(t, h, "POST", "/sessions", `{}`); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestOperatorRoutesRequireAuth(t *testing.T) {
	auth := NewAuth(config.Credentials{User: "admin", Pass: "secret"}, config.Credentials{User: "op", Pass: "pw"})
	h := newTestServer(t, Options{Auth: auth}).Handler()

	for _, path := range []string{"/operator", "/operator/sessions", "/events", "/events/history", "/ws/events"} {
		if w := do(t, h, "GET", path, ""); w.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, w.Code)
		}
	}

	req := httptest.NewRequest("GET", "/operator/sessions", nil)
	req.SetBasicAuth("op", "pw")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected operator access, got %d", w.Code)
	}

	// Player routes stay public.
	if w := do(t, h, "GET", "/registry", ""); w.Code != http.StatusOK {
		t.Errorf("expected public registry, got %d", w.Code)
	}
}

func TestOperatorSessions(t *testing.T) {
	h := newTestServer(t, Options{}).Handler()
	do(t, h, "POST", "/sessions", `{"player":"Ana"}`)
	time.Sleep(2 * time.Millisecond)
	do(t, h, "POST", "/sessions", `{"player":"Bruno"}`)

	list := decode[[]orchestrator.Summary](t, do(t, h, "GET", "/operator/sessions", ""))
	if len(list) != 2 || list[0].Player != "Ana" || list[1].Player != "Bruno" {
		t.Errorf("unexpected sessions: %+v", list)
	}
}

func TestOperatorEndSessionRequiresAdmin(t *testing.T) {
	auth := NewAuth(config.Credentials{User: "admin", Pass: "secret"}, config.Credentials{User: "op", Pass: "pw"})
	h := newTestServer(t, Options{Auth: auth}).Handler()
	v := decode[orchestrator.View](t, do(t, h, "POST", "/sessions", `{"player":"Ana"}`))

	send := func(user, pass string) int {
		req := httptest.NewRequest("DELETE", "/operator/sessions/"+v.SessionID, nil)
		if user != "" {
			req.SetBasicAuth(user, pass)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	if code := send("", ""); code != http.StatusUnauthorized {
		t.Errorf("anonymous: expected 401, got %d", code)
	}
	if code := send("op", "pw"); code != http.StatusForbidden {
		t.Errorf("operator: expected 403, got %d", code)
	}
	if code := send("admin", "secret"); code != http.StatusNoContent {
		t.Errorf("admin: expected 204, got %d", code)
	}
	if code := send("admin", "secret"); code != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", code)
	}
	if w := do(t, h, "GET", "/sessions/"+v.SessionID, ""); w.Code != http.StatusNotFound {
		t.Errorf("expected session gone, got %d", w.Code)
	}
}

func TestEventsHistory(t *testing.T) {
	t.Run("no journal", func(t *testing.T) {
		h := newTestServer(t, Options{}).Handler()
		if w := do(t, h, "GET", "/events/history", ""); w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", w.Code)
		}
	})

	t.Run("rows and limit", func(t *testing.T) {
		j := &fakeJournal{rows: []postgres.EventRow{{Event: "session.started", SessionID: "s1"}}}
		h := newTestServer(t, Options{Journal: j}).Handler()

		w := do(t, h, "GET", "/events/history?limit=5", "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		rows := decode[[]postgres.EventRow](t, w)
		if len(rows) != 1 || rows[0].Event != "session.started" {
			t.Errorf("unexpected rows: %+v", rows)
		}
		if j.lastLimit != 5 {
			t.Errorf("expected limit 5, got %d", j.lastLimit)
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		h := newTestServer(t, Options{Journal: &fakeJournal{}}).Handler()
		if w := do(t, h, "GET", "/events/history?limit=abc", ""); w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})

	t.Run("journal error", func(t *testing.T) {
		h := newTestServer(t, Options{Journal: &fakeJournal{err: errors.New("connection refused")}}).Handler()
		if w := do(t, h, "GET", "/events/history", ""); w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", w.Code)
		}
	})
}

func TestReadyEndpoint(t *testing.T) {
	s := newTestServer(t, Options{})
	h := s.Handler()

	w := do(t, h, "GET", "/ready", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with only the story loaded, got %d", w.Code)
	}
	resp := decode[ReadinessResponse](t, w)
	if resp.Checks["story"].Status != "ok" || resp.Checks["mqtt"].Status != "disabled" {
		t.Errorf("unexpected checks: %+v", resp.Checks)
	}

	s.Readiness().SetPostgres(func() bool { return false }, false)
	w = do(t, h, "GET", "/ready", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 with required postgres down, got %d", w.Code)
	}
	if resp := decode[ReadinessResponse](t, w); !strings.Contains(resp.NotReadyMsg, "postgres") {
		t.Errorf("expected postgres in message, got %q", resp.NotReadyMsg)
	}
}

func TestReadinessChecks(t *testing.T) {
	tests := []struct {
		name      string
		story     bool
		mqtt      *bool
		mqttOpt   bool
		wantReady bool
		wantMQTT  string
	}{
		{"story not loaded", false, nil, false, false, "disabled"},
		{"mqtt connected", true, boolPtr(true), false, true, "ok"},
		{"mqtt required and down", true, boolPtr(false), false, false, "not_ready"},
		{"mqtt optional and down", true, boolPtr(false), true, true, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Readiness{}
			r.SetStoryLoaded(tt.story)
			if tt.mqtt != nil {
				connected := *tt.mqtt
				r.SetMQTT(func() bool { return connected }, tt.mqttOpt)
			}

			resp := r.Check()
			if resp.Ready != tt.wantReady {
				t.Errorf("ready = %v, want %v", resp.Ready, tt.wantReady)
			}
			if got := resp.Checks["mqtt"].Status; got != tt.wantMQTT {
				t.Errorf("mqtt status = %q, want %q", got, tt.wantMQTT)
			}
			if resp.Ready && resp.NotReadyMsg != "" {
				t.Errorf("unexpected message %q", resp.NotReadyMsg)
			}
		})
	}
}

func boolPtr(b bool) *bool { return &b }

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, Options{}).Handler()
	do(t, h, "POST", "/sessions", `{"player":"Ana"}`)

	w := do(t, h, "GET", "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`story_sessions_active{game="test"`,
		`story_registry_capacity{game="test"`,
		"story_registry_dropped_total",
		"story_uptime_seconds",
		"story_ws_clients",
		`story_events_total{event="session.started"}`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
