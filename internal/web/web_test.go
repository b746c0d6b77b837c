package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"relcal/internal/agenda"
	"relcal/internal/config"
	"relcal/internal/engine"
	"relcal/internal/message"
	"relcal/internal/model"
	"relcal/internal/settings"
)

type fixture struct {
	store *settings.MemoryStore
	bus   *message.Bus
	srv   *httptest.Server
}

func newFixture(t *testing.T, cfg *config.Config, deps Deps) *fixture {
	t.Helper()
	f := &fixture{
		store: settings.NewMemoryStore(nil),
		bus:   message.NewBus(4),
	}
	if deps.Store == nil {
		deps.Store = f.store
	}
	if deps.Bus == nil {
		deps.Bus = f.bus
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	f.srv = httptest.NewServer(NewServer(cfg, deps).Handler())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := f.srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil, Deps{})
	resp := f.do(t, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestSettingsDefaults(t *testing.T) {
	f := newFixture(t, nil, Deps{})
	resp := f.do(t, http.MethodGet, "/api/settings", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	got := decode[map[string]bool](t, resp)
	if !got[settings.KeyEnabled] || !got[settings.KeyShowYears] {
		t.Errorf("defaults = %v, want both true", got)
	}
}

func TestSettingsPutSavesThenNotifies(t *testing.T) {
	f := newFixture(t, nil, Deps{})

	received := make(chan message.Message, 1)
	f.bus.Subscribe(func(m message.Message) { received <- m })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.bus.Run(ctx)

	resp := f.do(t, http.MethodPut, "/api/settings", `{"showYearsForLongPeriods": false}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	got := decode[map[string]bool](t, resp)
	if !got[settings.KeyEnabled] || got[settings.KeyShowYears] {
		t.Errorf("response = %v", got)
	}

	stored, _ := settings.Load(context.Background(), f.store)
	if stored.ShowYears {
		t.Error("store still has showYears = true")
	}

	select {
	case m := <-received:
		if m.Action != message.ActionUpdateSettings {
			t.Errorf("action = %q", m.Action)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no updateSettings message")
	}
}

func TestSettingsPutRejectsBadInput(t *testing.T) {
	f := newFixture(t, nil, Deps{})
	for _, body := range []string{
		`not json`,
		`{}`,
		`{"colour": true}`,
		`{"enableExtension": "no"}`,
	} {
		resp := f.do(t, http.MethodPut, "/api/settings", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", body, resp.StatusCode)
		}
	}
	resp := f.do(t, http.MethodDelete, "/api/settings", "")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("DELETE status = %d", resp.StatusCode)
	}
}

func TestSettingsStoreFailure(t *testing.T) {
	store := settings.NewMemoryStore(nil)
	store.Err = errors.New("disk gone")
	f := newFixture(t, nil, Deps{Store: store})
	resp := f.do(t, http.MethodGet, "/api/settings", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestMessage(t *testing.T) {
	f := newFixture(t, nil, Deps{})
	tests := []struct {
		body string
		want int
	}{
		{`{"action":"updateSettings"}`, http.StatusAccepted},
		{`{"action":"reboot"}`, http.StatusBadRequest},
		{`{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		resp := f.do(t, http.MethodPost, "/api/message", tt.body)
		if resp.StatusCode != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.body, resp.StatusCode, tt.want)
		}
	}
}

func TestStatus(t *testing.T) {
	var last *engine.Result
	f := newFixture(t, nil, Deps{Status: func() *engine.Result { return last }})

	resp := f.do(t, http.MethodGet, "/api/status", "")
	if got := decode[map[string]int](t, resp); got["passes"] != 0 {
		t.Errorf("before first pass = %v", got)
	}

	last = &engine.Result{ID: "p1"}
	last.Stats.Inserted = 3
	resp = f.do(t, http.MethodGet, "/api/status", "")
	got := decode[engine.Result](t, resp)
	if got.ID != "p1" || got.Stats.Inserted != 3 {
		t.Errorf("status = %+v", got)
	}
}

func TestAgendaCached(t *testing.T) {
	calls := 0
	f := newFixture(t, nil, Deps{Agenda: func(context.Context) ([]agenda.Item, error) {
		calls++
		return []agenda.Item{{
			Occurrence: model.Occurrence{FeedID: "home", UID: "u1", Summary: "Dentist"},
			Label:      "2d",
		}}, nil
	}})

	for i := 0; i < 2; i++ {
		resp := f.do(t, http.MethodGet, "/api/agenda", "")
		items := decode[[]agendaItemDTO](t, resp)
		if len(items) != 1 || items[0].Label != "2d" || items[0].Summary != "Dentist" {
			t.Fatalf("items = %+v", items)
		}
	}
	if calls != 1 {
		t.Errorf("agenda built %d times, want 1", calls)
	}
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "me", Password: "pw"}
	f := newFixture(t, cfg, Deps{})

	if resp := f.do(t, http.MethodGet, "/health", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("/health status = %d", resp.StatusCode)
	}
	if resp := f.do(t, http.MethodGet, "/api/settings", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, f.srv.URL+"/api/settings", nil)
	req.SetBasicAuth("me", "pw")
	resp, err := f.srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("authenticated status = %d", resp.StatusCode)
	}
}

func TestStaticAndUnknownAPI(t *testing.T) {
	f := newFixture(t, nil, Deps{})
	resp := f.do(t, http.MethodGet, "/", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("index status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q", ct)
	}
	if resp := f.do(t, http.MethodGet, "/api/nope", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("/api/nope status = %d", resp.StatusCode)
	}
}
