package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"brewline/internal/app"
	"brewline/internal/domain"
	"brewline/internal/engine"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	a, err := app.Open(context.Background(), t.TempDir(), nil, nil)
	if err != nil {
		t.Fatalf("open app: %v", err)
	}
	handler, err := New(Config{Engine: a.Engine, Repo: a.Repo, BasePath: "/v1"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			a.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func startSession(t *testing.T, srv *testServer) domain.BrewSession {
	t.Helper()
	client := srv.Client()
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/recipes", map[string]any{
		"id":         "pale",
		"name":       "Pale Ale",
		"batch_size": 20,
		"boil_time":  60,
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create recipe status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/sessions", map[string]any{"recipe_id": "pale"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("start session status %d: %s", res.StatusCode, string(data))
	}
	var s domain.BrewSession
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatalf("unmarshal session: %v", err)
	}
	return s
}

func TestBrewDayToTracker(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	s := startSession(t, srv)
	if len(s.Steps) != 10 || s.Status != domain.SessionBrewing {
		t.Fatalf("unexpected new session: %+v", s)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/sessions", map[string]any{"recipe_id": "pale"})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict for second session, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/sessions/"+s.ID+"/notes", map[string]any{"text": "mash pH 5.3"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("add note: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/sessions/"+s.ID+"/goto", map[string]any{"index": 9})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("goto: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/sessions/"+s.ID+"/next", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("next: %d %s", res.StatusCode, string(data))
	}
	var step StepResponse
	if err := json.Unmarshal(data, &step); err != nil {
		t.Fatalf("unmarshal step: %v", err)
	}
	if step.Completion == nil || step.Completion.Record == nil {
		t.Fatalf("expected hand-off record, got %s", string(data))
	}
	brewID := step.Completion.Record.ID
	if step.Completion.Record.RecipeName != "Pale Ale" || len(step.Completion.Record.QuickNotes) != 1 {
		t.Fatalf("unexpected record: %+v", step.Completion.Record)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/brews/"+brewID+"/fermentation", map[string]any{"original_gravity": 1.050})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("ferment: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/brews/"+brewID+"/conditioning", map[string]any{"final_gravity": 1.010})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("condition: %d %s", res.StatusCode, string(data))
	}
	var view engine.BrewView
	if err := json.Unmarshal(data, &view); err != nil {
		t.Fatalf("unmarshal view: %v", err)
	}
	if view.MeasuredABV == nil || *view.MeasuredABV != 5.3 {
		t.Fatalf("expected abv 5.3, got %v", view.MeasuredABV)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/brews", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list brews: %d %s", res.StatusCode, string(data))
	}
	var list BrewListResponse
	_ = json.Unmarshal(data, &list)
	if len(list.Active) != 1 || len(list.Archived) != 0 {
		t.Fatalf("unexpected brew list: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/events?entity_kind=brew&entity_id="+brewID, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events: %d %s", res.StatusCode, string(data))
	}
	var evts EventListResponse
	_ = json.Unmarshal(data, &evts)
	if len(evts.Items) != 3 {
		t.Fatalf("expected 3 brew events, got %d: %s", len(evts.Items), string(data))
	}
}

func TestTimerEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	s := startSession(t, srv)
	base := srv.URL + "/v1/sessions/" + s.ID + "/timer"

	res, data := doJSON(t, client, http.MethodPost, base+"/start", map[string]any{"seconds": 2700})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("start timer: %d %s", res.StatusCode, string(data))
	}
	var st engine.TimerState
	_ = json.Unmarshal(data, &st)
	if !st.Running || st.Remaining != 2700 {
		t.Fatalf("unexpected timer: %+v", st)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/pause", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("pause: %d %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &st)
	if st.Running || st.Remaining < 2699 {
		t.Fatalf("unexpected paused timer: %+v", st)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/resume", map[string]any{"seconds": 0})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("resume: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, base+"/tick", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("tick: %d %s", res.StatusCode, string(data))
	}
	var tick TickResponse
	_ = json.Unmarshal(data, &tick)
	if tick.StepElapsed == nil || !tick.StepElapsed.Steps[0].Completed {
		t.Fatalf("expected the step to complete: %s", string(data))
	}
	if tick.Timer == nil || tick.Timer.Running {
		t.Fatalf("expected a cleared timer: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/tick", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("second tick: %d %s", res.StatusCode, string(data))
	}
	tick = TickResponse{}
	_ = json.Unmarshal(data, &tick)
	if tick.StepElapsed != nil {
		t.Fatalf("step elapsed twice: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/start", map[string]any{"seconds": -3})
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected validation failure, got %d %s", res.StatusCode, string(data))
	}
}

func TestTaskEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	s := startSession(t, srv)
	base := srv.URL + "/v1/sessions/" + s.ID + "/tasks"

	res, data := doJSON(t, client, http.MethodPost, base, map[string]any{"text": "weigh grain"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add task: %d %s", res.StatusCode, string(data))
	}
	var got domain.BrewSession
	_ = json.Unmarshal(data, &got)
	tasks := got.Steps[0].Tasks
	if len(tasks) != 1 {
		t.Fatalf("expected one task, got %+v", tasks)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/"+tasks[0].ID+"/toggle", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("toggle: %d %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &got)
	if !got.Steps[0].Tasks[0].Completed {
		t.Fatalf("task not toggled: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodDelete, base+"/"+tasks[0].ID, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("remove: %d %s", res.StatusCode, string(data))
	}
	got = domain.BrewSession{}
	_ = json.Unmarshal(data, &got)
	if len(got.Steps[0].Tasks) != 0 {
		t.Fatalf("task not removed: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base, map[string]any{"text": "   "})
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected blank text to fail, got %d %s", res.StatusCode, string(data))
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/sessions/missing", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "not_found" {
		t.Fatalf("unexpected error code %q", envelope.Error.Code)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/sessions", map[string]any{"recipe_id": "nope"})
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected unknown recipe 404, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/brews", map[string]any{"recipe_name": "Stout"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("start brew: %d %s", res.StatusCode, string(data))
	}
	var view engine.BrewView
	_ = json.Unmarshal(data, &view)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/brews/"+view.ID+"/conditioning", map[string]any{"final_gravity": 1.012})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected invalid transition, got %d %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &envelope)
	if envelope.Error.Code != "invalid_transition" {
		t.Fatalf("unexpected error code %q", envelope.Error.Code)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/brews/"+view.ID+"/fermentation", map[string]any{"original_gravity": 52})
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected gravity validation, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/brews/"+view.ID, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("delete: %d %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/brews/"+view.ID, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected second delete 404, got %d", res.StatusCode)
	}
}

func TestHealthAndOpenAPI(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/openapi.json", nil)
	if res.StatusCode != http.StatusOK || !bytes.Contains(data, []byte("ApiError")) {
		t.Fatalf("openapi: %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/metrics", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("metrics: %d", res.StatusCode)
	}
}
