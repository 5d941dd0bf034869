package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/thicket/internal/config"
	"github.com/antoniostano/thicket/internal/contracts"
	"github.com/antoniostano/thicket/internal/journal"
	"github.com/antoniostano/thicket/internal/memory"
	"github.com/antoniostano/thicket/internal/observability"
	"github.com/antoniostano/thicket/internal/oracle"
	"github.com/antoniostano/thicket/internal/turn"
	"github.com/antoniostano/thicket/internal/world"
)

type fakeTurns struct {
	mu       sync.Mutex
	runs     []turn.RunRequest
	report   turn.RunReport
	executed chan struct{}
}

func (f *fakeTurns) ExecuteTurn(context.Context) (turn.Result, error) {
	select {
	case f.executed <- struct{}{}:
	default:
	}
	return turn.Result{}, nil
}

func (f *fakeTurns) CollectIntents(context.Context) []turn.Intent {
	return []turn.Intent{{Actor: "bear", Thought: "t", Action: "a"}}
}

func (f *fakeTurns) Run(ctx context.Context, req turn.RunRequest) turn.RunReport {
	f.mu.Lock()
	f.runs = append(f.runs, req)
	report := f.report
	f.mu.Unlock()
	if req.Endless {
		<-ctx.Done()
		return turn.RunReport{Status: "Endless mode stopped"}
	}
	return report
}

func (f *fakeTurns) Phase() turn.Phase { return turn.PhaseIdle }

func (f *fakeTurns) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

func (f *fakeTurns) lastRun() turn.RunRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[len(f.runs)-1]
}

type fakeHistory struct{}

func (fakeHistory) Recent(context.Context, int) ([]journal.Entry, error) {
	return []journal.Entry{{TurnID: "t1", Number: 1, Narrative: "quiet"}}, nil
}

func (fakeHistory) Get(_ context.Context, id string) (turn.Result, error) {
	if id != "t1" {
		return turn.Result{}, journal.ErrNotFound
	}
	return turn.Result{TurnID: "t1", Number: 1}, nil
}

type downOracle struct{ oracle.Oracle }

func (downOracle) Ping(context.Context) error { return errors.New("connection refused") }

type testEnv struct {
	srv    *Server
	ts     *httptest.Server
	turns  *fakeTurns
	ledger *contracts.Ledger
	hub    *Hub
}

func newTestEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()
	store, err := world.NewStore(
		[]world.Location{"forest_clearing"},
		[]world.Seed{{Name: "bear", Location: "forest_clearing", Activity: "resting"}},
	)
	if err != nil {
		t.Fatalf("world.NewStore() error = %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetrics("test_httpapi")
	turns := &fakeTurns{
		report:   turn.RunReport{TurnsExecuted: 1, Status: "Executed 1/1 turns"},
		executed: make(chan struct{}, 1),
	}
	deps := Deps{
		Store:    store,
		Ledger:   contracts.NewLedger(store, contracts.NewInMemoryTranscriptStore(), nil, logger),
		Memories: memory.NewInMemoryStore(),
		Turns:    turns,
		Oracle:   oracle.NewMockOracle(),
		Hub:      NewHub(metrics),
		Metrics:  metrics,
		Logger:   logger,
	}
	if mutate != nil {
		mutate(&deps)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv := New(ctx, config.Config{DefaultTurnDelay: time.Second}, deps)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &testEnv{srv: srv, ts: ts, turns: turns, ledger: deps.Ledger, hub: deps.Hub}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, e.ts.URL+path, bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer res.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(res.Body).Decode(&out)
	return res.StatusCode, out
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, nil)
	if status, body := env.do(t, http.MethodGet, "/healthz", ""); status != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("GET /healthz = %d %v", status, body)
	}
	if status, _ := env.do(t, http.MethodGet, "/readyz", ""); status != http.StatusOK {
		t.Fatalf("GET /readyz = %d, want 200", status)
	}
	if status, _ := env.do(t, http.MethodGet, "/metrics", ""); status != http.StatusOK {
		t.Fatalf("GET /metrics = %d, want 200", status)
	}

	down := newTestEnv(t, func(d *Deps) { d.Oracle = downOracle{} })
	status, body := down.do(t, http.MethodGet, "/readyz", "")
	if status != http.StatusServiceUnavailable || body["code"] != "oracle_unreachable" {
		t.Fatalf("GET /readyz with down oracle = %d %v", status, body)
	}
}

func TestUIRoutes(t *testing.T) {
	env := newTestEnv(t, nil)
	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	res, err := client.Get(env.ts.URL + "/")
	if err != nil {
		t.Fatalf("GET / error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusTemporaryRedirect || res.Header.Get("Location") != "/ui/" {
		t.Fatalf("GET / = %d %q", res.StatusCode, res.Header.Get("Location"))
	}

	page, err := http.Get(env.ts.URL + "/ui/")
	if err != nil {
		t.Fatalf("GET /ui/ error = %v", err)
	}
	defer page.Body.Close()
	b, _ := io.ReadAll(page.Body)
	if page.StatusCode != http.StatusOK || !strings.Contains(string(b), "/v1/turns/ws") {
		t.Fatalf("GET /ui/ = %d", page.StatusCode)
	}
}

func TestStateEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	status, body := env.do(t, http.MethodGet, "/v1/state", "")
	if status != http.StatusOK {
		t.Fatalf("GET /v1/state = %d", status)
	}
	npcs, _ := body["npcs"].(map[string]any)
	if _, ok := npcs["bear"]; !ok {
		t.Fatalf("state npcs = %v", body["npcs"])
	}
	if body["phase"] != "idle" {
		t.Fatalf("phase = %v", body["phase"])
	}
}

func TestContractEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	if status, body := env.do(t, http.MethodGet, "/v1/contracts/conv_nope", ""); status != http.StatusNotFound || body["code"] != "contract_not_found" {
		t.Fatalf("GET unknown contract = %d %v", status, body)
	}

	c, err := env.ledger.Create(context.Background(), []string{"bear"}, &contracts.Entry{Narrative: "bear hums"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	status, body := env.do(t, http.MethodGet, "/v1/contracts/"+c.ID, "")
	if status != http.StatusOK {
		t.Fatalf("GET contract = %d %v", status, body)
	}
	transcript, _ := body["transcript"].([]any)
	if len(transcript) != 1 {
		t.Fatalf("transcript = %v", body["transcript"])
	}
}

func TestMemoryEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	if status, _ := env.do(t, http.MethodGet, "/v1/actors/fox/memory", ""); status != http.StatusNotFound {
		t.Fatalf("GET unknown actor memory = %d, want 404", status)
	}
	status, body := env.do(t, http.MethodGet, "/v1/actors/bear/memory", "")
	if status != http.StatusOK {
		t.Fatalf("GET bear memory = %d", status)
	}
	if _, ok := body["self_memories"]; !ok {
		t.Fatalf("memory body = %v", body)
	}
}

func TestCollectEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	status, body := env.do(t, http.MethodPost, "/v1/turns/collect", "")
	intents, _ := body["intents"].([]any)
	if status != http.StatusOK || len(intents) != 1 {
		t.Fatalf("POST collect = %d %v", status, body)
	}
}

func TestExecuteEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.do(t, http.MethodPost, "/v1/turns/execute", "")
	if status != http.StatusOK || body["status"] != "Executed 1/1 turns" {
		t.Fatalf("POST execute = %d %v", status, body)
	}
	if run := env.turns.lastRun(); run.Repeat != nil || run.Delay != time.Second {
		t.Fatalf("default run = %+v", run)
	}

	status, _ = env.do(t, http.MethodPost, "/v1/turns/execute", `{"repeat": 3, "delay_ms": 0}`)
	if status != http.StatusOK {
		t.Fatalf("POST execute repeat = %d", status)
	}
	if run := env.turns.lastRun(); run.Repeat == nil || *run.Repeat != 3 || run.Delay != 0 {
		t.Fatalf("repeat run = %+v", run)
	}

	for _, bad := range []string{`{"repeat": 0}`, `{"delay_ms": -5}`, `{"repeat": "x"}`} {
		if status, _ := env.do(t, http.MethodPost, "/v1/turns/execute", bad); status != http.StatusBadRequest {
			t.Fatalf("POST execute %s = %d, want 400", bad, status)
		}
	}
}

func TestExecuteEndpointRejectsTruncatedBody(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, body := range []string{`{"repeat": 5, "endless": tr`, `{"repeat": 2`} {
		status, resp := env.do(t, http.MethodPost, "/v1/turns/execute", body)
		if status != http.StatusBadRequest || resp["code"] != "invalid_request" {
			t.Fatalf("POST execute %s = %d %v, want 400 invalid_request", body, status, resp)
		}
	}
	if n := env.turns.runCount(); n != 0 {
		t.Fatalf("runs = %d, want 0", n)
	}
}

func TestExecuteEndpointReportsFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.turns.report = turn.RunReport{
		Status: "Executed 0/1 turns (arbiter down)",
		Err:    &turn.Error{Kind: turn.KindArbiter, TurnID: "t1", Err: errors.New("down")},
	}
	status, body := env.do(t, http.MethodPost, "/v1/turns/execute", "")
	if status != http.StatusBadGateway || body["error_kind"] != "arbiter" {
		t.Fatalf("POST execute = %d %v", status, body)
	}
}

func TestEndlessRunLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	if status, _ := env.do(t, http.MethodPost, "/v1/turns/stop", ""); status != http.StatusNotFound {
		t.Fatalf("POST stop without run = %d, want 404", status)
	}
	if status, _ := env.do(t, http.MethodPost, "/v1/turns/execute", `{"endless": true}`); status != http.StatusAccepted {
		t.Fatalf("POST endless = %d, want 202", status)
	}
	if status, _ := env.do(t, http.MethodPost, "/v1/turns/execute", `{"endless": true}`); status != http.StatusConflict {
		t.Fatalf("second POST endless = %d, want 409", status)
	}
	if status, _ := env.do(t, http.MethodPost, "/v1/turns/stop", ""); status != http.StatusAccepted {
		t.Fatalf("POST stop = %d, want 202", status)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		status, _ := env.do(t, http.MethodPost, "/v1/turns/execute", `{"endless": true}`)
		if status == http.StatusAccepted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("endless run never released its slot")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	disabled := newTestEnv(t, nil)
	if status, body := disabled.do(t, http.MethodGet, "/v1/turns/history", ""); status != http.StatusServiceUnavailable || body["code"] != "journal_disabled" {
		t.Fatalf("GET history without journal = %d %v", status, body)
	}

	env := newTestEnv(t, func(d *Deps) { d.History = fakeHistory{} })
	status, body := env.do(t, http.MethodGet, "/v1/turns/history?limit=5", "")
	turns, _ := body["turns"].([]any)
	if status != http.StatusOK || len(turns) != 1 {
		t.Fatalf("GET history = %d %v", status, body)
	}
	if status, _ := env.do(t, http.MethodGet, "/v1/turns/history?limit=zero", ""); status != http.StatusBadRequest {
		t.Fatalf("GET history bad limit = %d, want 400", status)
	}
	if status, _ := env.do(t, http.MethodGet, "/v1/turns/t1", ""); status != http.StatusOK {
		t.Fatalf("GET turn t1 = %d", status)
	}
	if status, _ := env.do(t, http.MethodGet, "/v1/turns/t9", ""); status != http.StatusNotFound {
		t.Fatalf("GET turn t9 = %d, want 404", status)
	}
}

func TestPerfPhasesEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.srv.metrics.ObservePhase(string(turn.PhaseResolving), 40*time.Millisecond)
	status, body := env.do(t, http.MethodGet, "/v1/perf/phases", "")
	phases, _ := body["phases"].([]any)
	if status != http.StatusOK || len(phases) != 1 {
		t.Fatalf("GET perf = %d %v", status, body)
	}
}

func TestTurnsWebSocket(t *testing.T) {
	env := newTestEnv(t, nil)
	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/v1/turns/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteJSON(map[string]string{"type": "client_control", "action": "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if msg["type"] != "system_event" || msg["code"] != "pong" {
		t.Fatalf("pong = %v", msg)
	}

	env.hub.TurnStarted("t1", 7)
	msg = nil
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if msg["type"] != "turn_started" || msg["turn_id"] != "t1" {
		t.Fatalf("event = %v", msg)
	}

	if err := conn.WriteJSON(map[string]string{"type": "client_control", "action": "execute_turn"}); err != nil {
		t.Fatalf("write execute: %v", err)
	}
	select {
	case <-env.turns.executed:
	case <-time.After(5 * time.Second):
		t.Fatalf("execute_turn never reached the orchestrator")
	}

	if err := conn.WriteJSON(map[string]string{"type": "bogus"}); err != nil {
		t.Fatalf("write bogus: %v", err)
	}
	msg = nil
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read error event: %v", err)
	}
	if msg["type"] != "error_event" {
		t.Fatalf("error event = %v", msg)
	}
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t, nil)
	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/v1/turns/ws"
	header := http.Header{"Origin": []string{"https://evil.example"}}
	if _, _, err := websocket.DefaultDialer.Dial(wsURL, header); err == nil {
		t.Fatalf("Dial() from foreign origin succeeded")
	}
}
