package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/michaelbrown/pyrun/internal/analysis"
	"github.com/michaelbrown/pyrun/internal/capture"
	"github.com/michaelbrown/pyrun/internal/runner"
	"github.com/michaelbrown/pyrun/internal/sandbox"
	"github.com/michaelbrown/pyrun/internal/storage"
	"github.com/michaelbrown/pyrun/internal/storage/sqlite"
)

// scriptedExecutor prints the submitted code back as one text item and
// fails when the code is "raise".
type scriptedExecutor struct{}

func (scriptedExecutor) Run(ctx context.Context, code string) sandbox.Execution {
	sink := capture.NewSink()
	if code != "" {
		sink.Append(capture.Text(code))
	}
	if code == "raise" {
		return sandbox.Execution{Result: capture.Failure(sink, "boom"), Status: sandbox.StatusFailed}
	}
	return sandbox.Execution{Result: capture.Success(sink), Status: sandbox.StatusOK, Duration: time.Millisecond}
}

type stubLinter struct{}

func (stubLinter) Lint(ctx context.Context, code string) []analysis.Diagnostic {
	return analysis.ParseReport("<string>:3:undefined name 'x'", analysis.DefaultLineWidth)
}

type stubCompleter struct{ fail bool }

func (c stubCompleter) Complete(ctx context.Context, code string, cur analysis.Cursor) ([]analysis.Completion, error) {
	if c.fail {
		return []analysis.Completion{}, fmt.Errorf("%w: jedi missing", analysis.ErrProvider)
	}
	return []analysis.Completion{{Label: "print", Kind: "function"}, {Label: fmt.Sprint(cur.Line), Kind: "line"}}, nil
}

func testServer(t *testing.T, completer stubCompleter, opts Options) (*Server, storage.Store) {
	t.Helper()
	store, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	svc := runner.New(scriptedExecutor{}, stubLinter{}, completer, runner.WithStore(store))
	return New(svc, opts), store
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHome(t *testing.T) {
	s, _ := testServer(t, stubCompleter{}, Options{})
	rec := do(t, s, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != Greeting {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestRunCode(t *testing.T) {
	s, store := testServer(t, stubCompleter{}, Options{})

	for _, path := range []string{"/run_code", "/api/run"} {
		t.Run(path, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, path, `{"code":"raise"}`)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("content-type = %q", ct)
			}

			var res capture.Result
			if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if res.Error == nil || *res.Error != "boom" {
				t.Errorf("error = %v", res.Error)
			}
			if len(res.Outputs) != 1 || res.Outputs[0] != capture.Text("raise") {
				t.Errorf("outputs = %+v", res.Outputs)
			}

			id := rec.Header().Get("X-Run-ID")
			run, err := store.GetRun(context.Background(), id)
			if err != nil {
				t.Fatalf("run %q not recorded: %v", id, err)
			}
			if run.Status != storage.StatusFailed || run.Source != storage.SourceHTTP {
				t.Errorf("run = %+v", run)
			}
		})
	}
}

func TestRunCodeSuccessShape(t *testing.T) {
	s, _ := testServer(t, stubCompleter{}, Options{})
	rec := do(t, s, http.MethodPost, "/run_code", `{}`)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(raw["error"]) != "null" {
		t.Errorf("error = %s, want null", raw["error"])
	}
	if string(raw["outputs"]) != "[]" {
		t.Errorf("outputs = %s, want []", raw["outputs"])
	}
}

func TestRunCodeInvalidJSON(t *testing.T) {
	s, _ := testServer(t, stubCompleter{}, Options{})
	rec := do(t, s, http.MethodPost, "/run_code", `{`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestLintCode(t *testing.T) {
	s, _ := testServer(t, stubCompleter{}, Options{})

	for _, path := range []string{"/lint_code", "/api/lint"} {
		rec := do(t, s, http.MethodPost, path, `{"code":"print(x)"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", path, rec.Code)
		}
		want := `[{"message":"undefined name 'x'","severity":"error","from":{"line":2,"ch":0},"to":{"line":2,"ch":80}}]`
		if got := strings.TrimSpace(rec.Body.String()); got != want {
			t.Errorf("%s: body = %s\nwant %s", path, got, want)
		}
	}
}

func TestAutocomplete(t *testing.T) {
	s, _ := testServer(t, stubCompleter{}, Options{})
	rec := do(t, s, http.MethodPost, "/autocomplete", `{"code":"pr","cursor":{"line":4,"ch":2}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	want := `[{"text":"print","type":"function"},{"text":"4","type":"line"}]`
	if got := strings.TrimSpace(rec.Body.String()); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}

func TestAutocompleteProviderFault(t *testing.T) {
	s, _ := testServer(t, stubCompleter{fail: true}, Options{})
	for _, path := range []string{"/autocomplete", "/api/autocomplete"} {
		rec := do(t, s, http.MethodPost, path, `{"code":"pr","cursor":{"line":0,"ch":2}}`)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("%s: status = %d, want 500", path, rec.Code)
		}
		if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
			t.Errorf("%s: body = %s, want []", path, got)
		}
	}
}

func TestRunHistoryEndpoints(t *testing.T) {
	s, _ := testServer(t, stubCompleter{}, Options{})
	id := do(t, s, http.MethodPost, "/api/run", `{"code":"print(1)"}`).Header().Get("X-Run-ID")

	rec := do(t, s, http.MethodGet, "/api/runs", "")
	var runs []storage.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != id {
		t.Fatalf("runs = %+v", runs)
	}

	rec = do(t, s, http.MethodGet, "/api/runs?status=failed", "")
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("failed runs = %s, want []", got)
	}

	rec = do(t, s, http.MethodGet, "/api/runs/"+id[:8], "")
	if rec.Code != http.StatusOK {
		t.Errorf("get by prefix: status = %d", rec.Code)
	}

	rec = do(t, s, http.MethodDelete, "/api/runs/"+id, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete: status = %d", rec.Code)
	}

	rec = do(t, s, http.MethodGet, "/api/runs/"+id, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: status = %d, want 404", rec.Code)
	}
}

func TestHistoryDisabled(t *testing.T) {
	svc := runner.New(scriptedExecutor{}, stubLinter{}, stubCompleter{})
	s := New(svc, Options{})

	rec := do(t, s, http.MethodGet, "/api/runs", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := testServer(t, stubCompleter{}, Options{})
	rec := do(t, s, http.MethodGet, "/api/status", "")

	var st runner.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.History {
		t.Error("history should be reported on")
	}
}

func TestRateLimit(t *testing.T) {
	s, _ := testServer(t, stubCompleter{}, Options{RateLimit: 0.001, Burst: 2})

	codes := make([]int, 3)
	for i := range codes {
		codes[i] = do(t, s, http.MethodPost, "/lint_code", `{"code":""}`).Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 200 429]", codes)
	}

	// Reads are not limited.
	if rec := do(t, s, http.MethodGet, "/api/status", ""); rec.Code != http.StatusOK {
		t.Errorf("status endpoint limited: %d", rec.Code)
	}
}

func dialWS(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(s.router)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketRequestReply(t *testing.T) {
	s, _ := testServer(t, stubCompleter{}, Options{})
	conn := dialWS(t, s)

	requests := []wsIncoming{
		{ID: "1", Type: "run", Code: "raise"},
		{ID: "2", Type: "lint", Code: "print(x)"},
		{ID: "3", Type: "autocomplete", Code: "pr", Cursor: analysis.Cursor{Line: 1, Ch: 2}},
		{ID: "4", Type: "format"},
	}
	for _, req := range requests {
		if err := conn.WriteJSON(req); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	replies := make(map[string]wsOutgoing)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for range requests {
		var reply wsOutgoing
		if err := conn.ReadJSON(&reply); err != nil {
			t.Fatalf("read: %v", err)
		}
		if _, dup := replies[reply.ID]; dup {
			t.Fatalf("second reply for request %s", reply.ID)
		}
		replies[reply.ID] = reply
	}

	if r := replies["1"]; r.Type != "result" || r.Result == nil || r.Result.ErrorMessage() != "boom" || r.RunID == "" {
		t.Errorf("run reply = %+v", r)
	}
	if r := replies["2"]; r.Type != "diagnostics" || len(r.Diagnostics) != 1 || r.Diagnostics[0].From.Line != 2 {
		t.Errorf("lint reply = %+v", r)
	}
	if r := replies["3"]; r.Type != "completions" || len(r.Completions) != 2 {
		t.Errorf("completion reply = %+v", r)
	}
	if r := replies["4"]; r.Type != "error" || !strings.Contains(r.Error, "format") {
		t.Errorf("unknown type reply = %+v", r)
	}
}

func TestWebSocketInvalidMessage(t *testing.T) {
	s, _ := testServer(t, stubCompleter{}, Options{})
	conn := dialWS(t, s)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	var reply wsOutgoing
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read: %v", err)
	}
	if reply.Type != "error" {
		t.Errorf("reply = %+v", reply)
	}

	// The connection stays usable.
	conn.WriteJSON(wsIncoming{ID: "ok", Type: "lint"})
	if err := conn.ReadJSON(&reply); err != nil || reply.ID != "ok" {
		t.Errorf("follow-up reply = %+v, err %v", reply, err)
	}
}

func TestShutdownClosesWebSockets(t *testing.T) {
	s, _ := testServer(t, stubCompleter{}, Options{})
	conn := dialWS(t, s)

	deadline := time.Now().Add(2 * time.Second)
	for s.conns.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("read after shutdown: %v", err)
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.7:5555"
	if got := clientIP(r); got != "10.0.0.7" {
		t.Errorf("clientIP = %q", got)
	}
	r.RemoteAddr = "garbage"
	if got := clientIP(r); got != "garbage" {
		t.Errorf("clientIP = %q", got)
	}
}
