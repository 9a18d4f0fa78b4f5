package http

import (
	"bufio"
	"bytes"
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

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-presence/internal/domain"
	httpH "github.com/yungbote/neurobridge-presence/internal/http/handlers"
	"github.com/yungbote/neurobridge-presence/internal/observability"
	"github.com/yungbote/neurobridge-presence/internal/platform/logger"
	"github.com/yungbote/neurobridge-presence/internal/presence/api"
	"github.com/yungbote/neurobridge-presence/internal/presence/engine"
	"github.com/yungbote/neurobridge-presence/internal/presence/loop"
	"github.com/yungbote/neurobridge-presence/internal/realtime"
)

type fakeAPI struct {
	mu      sync.Mutex
	ids     int
	sent    []string
	typing  []string
	streams chan *io.PipeWriter
}

func (f *fakeAPI) CreateSession(ctx context.Context, req api.CreateSessionRequest) (api.CreateSessionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids++
	return api.CreateSessionResponse{SessionID: fmt.Sprintf("s-%d", f.ids)}, nil
}

func (f *fakeAPI) Heartbeat(ctx context.Context, sessionID string, req api.HeartbeatRequest) error {
	return nil
}

func (f *fakeAPI) DeleteSession(ctx context.Context, sessionID string) error { return nil }

func (f *fakeAPI) Beacon(sessionID string) bool { return true }

func (f *fakeAPI) Dial(ctx context.Context, sessionID string, lastEventID int64) (io.ReadCloser, error) {
	pr, pw := io.Pipe()
	f.streams <- pw
	return pr, nil
}

func (f *fakeAPI) FetchHistory(ctx context.Context, roomID string, offset, limit int) ([]domain.Message, error) {
	return nil, nil
}

func (f *fakeAPI) OpenRoom(ctx context.Context, req api.OpenRoomRequest) (api.OpenRoomResponse, error) {
	if len(req.Participants) == 1 && req.Participants[0] == "down" {
		return api.OpenRoomResponse{}, &api.HTTPError{StatusCode: http.StatusServiceUnavailable, Message: "maintenance"}
	}
	return api.OpenRoomResponse{RoomID: "room-" + strings.Join(req.Participants, "-")}, nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, roomID string, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, roomID+":"+text)
	return "client-1", nil
}

func (f *fakeAPI) SendTyping(ctx context.Context, roomID string, typing bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, fmt.Sprintf("%s:%t", roomID, typing))
	return nil
}

type harness struct {
	api     *fakeAPI
	engine  *engine.Engine
	metrics *observability.Metrics
	srv     *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.NewNop()

	ctx, cancel := context.WithCancel(context.Background())
	l := loop.New(log)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = l.Run(ctx)
	}()

	fa := &fakeAPI{streams: make(chan *io.PipeWriter, 8)}
	e, err := engine.New(engine.Config{Identity: "ada"}, engine.Deps{Sched: l, API: fa, Log: log})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	m := observability.NewMetrics()
	rt := httpH.NewRealtimeHandler(log, realtime.NewSSEHub(log), e, m)
	stopBridge, err := rt.Bridge(ctx)
	if err != nil {
		t.Fatalf("Bridge: %v", err)
	}

	router := NewRouter(RouterConfig{
		Log:             log,
		Metrics:         m,
		HealthHandler:   httpH.NewHealthHandler(m),
		SessionHandler:  httpH.NewSessionHandler(log, e),
		PresenceHandler: httpH.NewPresenceHandler(log, e),
		ChatHandler:     httpH.NewChatHandler(log, e),
		RealtimeHandler: rt,
	})
	srv := httptest.NewServer(router)

	t.Cleanup(func() {
		srv.CloseClientConnections()
		srv.Close()
		stopBridge()
		_ = e.Do(context.Background(), e.Close)
		cancel()
		<-loopDone
		for {
			select {
			case pw := <-fa.streams:
				_ = pw.Close()
			default:
				return
			}
		}
	})
	return &harness{api: fa, engine: e, metrics: m, srv: srv}
}

func (h *harness) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out
}

// startOnline starts the session and returns the server side of its event
// stream.
func (h *harness) startOnline(t *testing.T) *io.PipeWriter {
	t.Helper()
	if code, body := h.do(t, http.MethodPost, "/api/session/start", nil); code != http.StatusAccepted {
		t.Fatalf("start: %d %s", code, body)
	}
	var pw *io.PipeWriter
	select {
	case pw = <-h.api.streams:
	case <-time.After(2 * time.Second):
		t.Fatalf("event stream never dialed")
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, body := h.do(t, http.MethodGet, "/api/session", nil)
		var view httpH.SessionView
		if err := json.Unmarshal(body, &view); err != nil {
			t.Fatalf("decode session: %v", err)
		}
		if view.Online {
			return pw
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session never came online")
	return nil
}

func push(t *testing.T, pw *io.PipeWriter, id int, typ domain.EventType, payload string) {
	t.Helper()
	if _, err := fmt.Fprintf(pw, "event: %s\nid: %d\ndata: %s\n\n", typ, id, payload); err != nil {
		t.Fatalf("push: %v", err)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)
	if code, body := h.do(t, http.MethodGet, "/healthcheck", nil); code != http.StatusOK || string(body) != "ok" {
		t.Fatalf("health: %d %q", code, body)
	}
	code, body := h.do(t, http.MethodGet, "/metrics", nil)
	if code != http.StatusOK || !strings.Contains(string(body), `route="/healthcheck"`) {
		t.Fatalf("metrics: %d %s", code, body)
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t)
	h.startOnline(t)

	code, body := h.do(t, http.MethodPut, "/api/session/scenes", map[string]any{"scenes": []string{"b", "a"}})
	if code != http.StatusAccepted {
		t.Fatalf("scenes: %d %s", code, body)
	}
	var view httpH.SessionView
	_ = json.Unmarshal(body, &view)
	if strings.Join(view.InScenes, ",") != "a,b" {
		t.Fatalf("in scenes=%v", view.InScenes)
	}
	if view.HeartbeatsSent < 1 || view.LastActiveAt.IsZero() {
		t.Fatalf("scene change not reported: sent=%d lastActive=%v", view.HeartbeatsSent, view.LastActiveAt)
	}

	code, body = h.do(t, http.MethodPut, "/api/session/follow", map[string]any{"scene": "lobby"})
	_ = json.Unmarshal(body, &view)
	if code != http.StatusAccepted || strings.Join(view.FollowScenes, ",") != "lobby" {
		t.Fatalf("follow: %d %s", code, body)
	}

	code, body = h.do(t, http.MethodPut, "/api/session/visibility", map[string]any{"visible": false})
	_ = json.Unmarshal(body, &view)
	if code != http.StatusAccepted || view.TabVisible {
		t.Fatalf("visibility: %d %s", code, body)
	}

	code, body = h.do(t, http.MethodPost, "/api/session/stop", nil)
	var stopped httpH.SessionView
	_ = json.Unmarshal(body, &stopped)
	if code != http.StatusAccepted || stopped.Started || stopped.Online || stopped.SessionID != "" {
		t.Fatalf("stop: %d %s", code, body)
	}
}

func TestValidationErrorsUseEnvelope(t *testing.T) {
	h := newHarness(t)
	cases := []struct {
		method, path string
		body         any
	}{
		{http.MethodPut, "/api/session/visibility", map[string]any{}},
		{http.MethodPut, "/api/session/idle", map[string]any{}},
		{http.MethodPut, "/api/session/follow", map[string]any{"scene": " "}},
		{http.MethodPost, "/api/chat/rooms", map[string]any{"participants": []string{""}}},
		{http.MethodPost, "/api/chat/rooms/r1/messages", map[string]any{"text": "  "}},
		{http.MethodGet, "/api/events?channels=nope", nil},
	}
	for _, tc := range cases {
		code, body := h.do(t, tc.method, tc.path, tc.body)
		if code != http.StatusBadRequest {
			t.Fatalf("%s %s: status=%d body=%s", tc.method, tc.path, code, body)
		}
		var env struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if err := json.Unmarshal(body, &env); err != nil || env.Error.Code != "invalid_request" {
			t.Fatalf("%s %s: envelope=%s", tc.method, tc.path, body)
		}
	}
}

func TestChatOverHTTP(t *testing.T) {
	h := newHarness(t)
	pw := h.startOnline(t)

	code, body := h.do(t, http.MethodPost, "/api/chat/rooms", map[string]any{"participants": []string{"bob"}})
	if code != http.StatusOK {
		t.Fatalf("create room: %d %s", code, body)
	}
	var cv httpH.ChatView
	_ = json.Unmarshal(body, &cv)
	if cv.Conversation.RoomID != "room-bob" || !cv.Conversation.Open {
		t.Fatalf("conversation=%+v", cv.Conversation)
	}

	code, body = h.do(t, http.MethodPost, "/api/chat/rooms/room-bob/messages", map[string]any{"text": "hi"})
	if code != http.StatusAccepted || !strings.Contains(string(body), "client-1") {
		t.Fatalf("send: %d %s", code, body)
	}
	h.api.mu.Lock()
	sent := strings.Join(h.api.sent, ",")
	h.api.mu.Unlock()
	if sent != "room-bob:hi" {
		t.Fatalf("sent=%s", sent)
	}

	if code, body = h.do(t, http.MethodPut, "/api/chat/rooms/room-bob/typing", map[string]any{"typing": true}); code != http.StatusAccepted {
		t.Fatalf("typing: %d %s", code, body)
	}

	push(t, pw, 1, domain.EventMessage, `{"id":"m1","roomId":"room-bob","sender":"ada","timestamp":1700000000000,"text":"hi"}`)
	eventually(t, "echoed line", func() bool {
		_, body := h.do(t, http.MethodGet, "/api/chat/rooms/room-bob", nil)
		var cv httpH.ChatView
		_ = json.Unmarshal(body, &cv)
		return len(cv.Conversation.Stanzas) == 1 && cv.Conversation.Stanzas[0].Lines[0] == "hi"
	})

	code, body = h.do(t, http.MethodPost, "/api/chat/rooms", map[string]any{"participants": []string{"down"}})
	if code != http.StatusBadGateway {
		t.Fatalf("upstream failure: %d %s", code, body)
	}
}

func TestEventsStreamRebroadcastsPresence(t *testing.T) {
	h := newHarness(t)
	pw := h.startOnline(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, h.srv.URL+"/api/events?channels=session,presence", nil)
	resp, err := h.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	defer resp.Body.Close()

	frames := make(chan [2]string, 16)
	go func() {
		defer close(frames)
		sc := bufio.NewScanner(resp.Body)
		var ev string
		for sc.Scan() {
			line := sc.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				ev = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				frames <- [2]string{ev, strings.TrimPrefix(line, "data: ")}
			}
		}
	}()

	next := func() [2]string {
		select {
		case f, ok := <-frames:
			if !ok {
				t.Fatalf("stream ended")
			}
			return f
		case <-ctx.Done():
			t.Fatalf("timed out reading events")
		}
		return [2]string{}
	}

	if f := next(); f[0] != "session" || !strings.Contains(f[1], `"online":true`) {
		t.Fatalf("first frame=%v", f)
	}

	eventually(t, "subscriber", func() bool {
		_, body := h.do(t, http.MethodGet, "/api/events/status", nil)
		return strings.Contains(string(body), `"presence":1`)
	})

	now := time.Now().UnixMilli()
	push(t, pw, 2, domain.EventPresentUsers,
		fmt.Sprintf(`{"users":[{"handle":"ada","lastActive":%d},{"handle":"bob","lastActive":%d,"location":"course-1"}]}`, now, now))

	for {
		f := next()
		if f[0] != "presence" {
			continue
		}
		var pv httpH.PresenceView
		if err := json.Unmarshal([]byte(f[1]), &pv); err != nil {
			t.Fatalf("decode presence: %v", err)
		}
		if len(pv.Users) != 1 || pv.Users[0].Handle != "bob" {
			t.Fatalf("users=%+v", pv.Users)
		}
		if got := pv.Index.AtLocation["course-1"]; len(got) != 1 || got[0] != "bob" {
			t.Fatalf("index=%+v", pv.Index)
		}
		return
	}
}

func TestPresenceUserStatus(t *testing.T) {
	h := newHarness(t)
	pw := h.startOnline(t)

	now := time.Now().UnixMilli()
	push(t, pw, 1, domain.EventProfiles, `{"profiles":[{"handle":"bob","fullName":"Bob Stone"}]}`)
	push(t, pw, 2, domain.EventPresentUsers, fmt.Sprintf(`{"users":[{"handle":"bob","lastActive":%d,"location":"course-1"}]}`, now))

	var view httpH.UserStatusView
	eventually(t, "bob present", func() bool {
		code, body := h.do(t, http.MethodGet, "/api/presence/users/bob", nil)
		if code != http.StatusOK {
			return false
		}
		_ = json.Unmarshal(body, &view)
		return true
	})
	if view.Handle != "bob" || view.Status != "Active" || view.Profile == nil || view.Profile.FullName != "Bob Stone" {
		t.Fatalf("user=%+v", view)
	}

	code, body := h.do(t, http.MethodGet, "/api/presence/users/zed", nil)
	if code != http.StatusNotFound || !strings.Contains(string(body), "not_present") {
		t.Fatalf("absent user: %d %s", code, body)
	}
}
