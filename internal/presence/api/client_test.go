package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newTestClient(t *testing.T, rt roundTripperFunc) *Client {
	t.Helper()
	c, err := New(Options{
		BaseURL:    "http://presence.test/",
		Token:      "tok",
		HTTPClient: &http.Client{Transport: rt},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestCreateSession(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodPost || req.URL.Path != "/presence/sessions" {
			t.Fatalf("unexpected %s %s", req.Method, req.URL.Path)
		}
		if got := req.Header.Get("Authorization"); got != "Bearer tok" {
			t.Fatalf("authorization=%q", got)
		}
		if req.Header.Get("X-Request-Id") == "" {
			t.Fatalf("missing request id")
		}
		var in map[string]any
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if in["visible"] != true {
			t.Fatalf("visible=%v", in["visible"])
		}
		if _, ok := in["inScenes"]; !ok {
			t.Fatalf("inScenes missing: %v", in)
		}
		if _, ok := in["followScenes"]; ok {
			t.Fatalf("followScenes should be omitted: %v", in)
		}
		return jsonResponse(http.StatusOK, `{"sessionId":"s-1"}`), nil
	})

	scenes := []string{}
	resp, err := c.CreateSession(context.Background(), CreateSessionRequest{SessionSnapshot{Visible: true, InScenes: &scenes}})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if resp.SessionID != "s-1" {
		t.Fatalf("sessionId=%q", resp.SessionID)
	}
}

func TestCreateSessionEmptyID(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{}`), nil
	})
	if _, err := c.CreateSession(context.Background(), CreateSessionRequest{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestHeartbeatHeadersAndInvalidSession(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodPut || req.URL.Path != "/presence/sessions/s-1" {
			t.Fatalf("unexpected %s %s", req.Method, req.URL.Path)
		}
		if req.Header.Get(NoSessionExtensionHeader) != "1" {
			t.Fatalf("missing no-extension header")
		}
		var in HeartbeatRequest
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if in.LastEventID != 42 {
			t.Fatalf("lastEventId=%d", in.LastEventID)
		}
		return jsonResponse(http.StatusNotFound, `{"error":{"message":"no such session","code":"not_found"}}`), nil
	})

	err := c.Heartbeat(context.Background(), "s-1", HeartbeatRequest{LastEventID: 42})
	if !IsSessionInvalid(err) {
		t.Fatalf("expected session invalid, got %v", err)
	}
	var herr *HTTPError
	if !errors.As(err, &herr) || herr.Code != "not_found" || herr.Message != "no such session" {
		t.Fatalf("unexpected error: %#v", err)
	}
}

func TestIsSessionInvalid(t *testing.T) {
	if IsSessionInvalid(errors.New("boom")) {
		t.Fatalf("plain error is not invalid")
	}
	if IsSessionInvalid(&HTTPError{StatusCode: http.StatusInternalServerError}) {
		t.Fatalf("500 is not invalid")
	}
	if !IsSessionInvalid(&HTTPError{StatusCode: http.StatusForbidden}) {
		t.Fatalf("403 is invalid")
	}
}

func TestFetchHistoryRetriesServerErrors(t *testing.T) {
	var calls int32
	c, err := New(Options{
		BaseURL:    "http://presence.test",
		MaxRetries: 2,
		HTTPClient: &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if req.URL.EscapedPath() != "/chat/rooms/r%201/messages" {
				t.Fatalf("path=%s", req.URL.EscapedPath())
			}
			if req.URL.Query().Get("offset") != "10" || req.URL.Query().Get("limit") != "50" {
				t.Fatalf("query=%s", req.URL.RawQuery)
			}
			if atomic.AddInt32(&calls, 1) == 1 {
				return jsonResponse(http.StatusBadGateway, `upstream`), nil
			}
			return jsonResponse(http.StatusOK, `{"messages":[{"id":"m1","roomId":"r 1","sender":"a","timestamp":1000,"text":"hi"}]}`), nil
		})},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	msgs, err := c.FetchHistory(context.Background(), "r 1", 10, 50)
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("calls=%d", calls)
	}
	if len(msgs) != 1 || msgs[0].ID != "m1" || !msgs[0].IsLine() {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
}

func TestFetchHistoryStopsAfterMaxRetries(t *testing.T) {
	prev := retryInitialInterval
	retryInitialInterval = time.Millisecond
	t.Cleanup(func() { retryInitialInterval = prev })

	var calls int32
	status := http.StatusServiceUnavailable
	c, err := New(Options{
		BaseURL:    "http://presence.test",
		MaxRetries: 2,
		HTTPClient: &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			atomic.AddInt32(&calls, 1)
			return jsonResponse(status, `{"message":"busy"}`), nil
		})},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = c.FetchHistory(context.Background(), "r1", 0, 10)
	var herr *HTTPError
	if !errors.As(err, &herr) || herr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 HTTPError, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls=%d, want 3", got)
	}

	// Client errors are final.
	atomic.StoreInt32(&calls, 0)
	status = http.StatusNotFound
	if _, err := c.FetchHistory(context.Background(), "r1", 0, 10); !errors.As(err, &herr) || herr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 HTTPError, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls=%d, want 1", got)
	}
}

func TestRetryWaitHonorsContext(t *testing.T) {
	prev := retryInitialInterval
	retryInitialInterval = time.Hour
	t.Cleanup(func() { retryInitialInterval = prev })

	ctx, cancel := context.WithCancel(context.Background())
	c, err := New(Options{
		BaseURL:    "http://presence.test",
		MaxRetries: 3,
		HTTPClient: &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			cancel()
			return jsonResponse(http.StatusBadGateway, `upstream`), nil
		})},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.FetchHistory(ctx, "r1", 0, 10)
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("retry wait ignored cancellation")
	}
}

func TestSendMessageUsesClientID(t *testing.T) {
	var seen string
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		var in sendMessageRequest
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if in.Text != "hello" {
			t.Fatalf("text=%q", in.Text)
		}
		seen = in.ClientID
		return jsonResponse(http.StatusNoContent, ``), nil
	})

	id, err := c.SendMessage(context.Background(), "r1", "hello")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if id == "" || id != seen {
		t.Fatalf("client id mismatch: %q vs %q", id, seen)
	}
}

func TestOpenEventStream(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/presence/sessions/s-1/events" {
			t.Fatalf("path=%s", req.URL.Path)
		}
		if got := req.Header.Get("Last-Event-ID"); got != "7" {
			t.Fatalf("Last-Event-ID=%q", got)
		}
		if got := req.Header.Get("Accept"); got != "text/event-stream" {
			t.Fatalf("Accept=%q", got)
		}
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewBufferString("data: {}\n\n"))}, nil
	})

	body, err := c.OpenEventStream(context.Background(), "s-1", 7)
	if err != nil {
		t.Fatalf("OpenEventStream: %v", err)
	}
	defer body.Close()
	raw, _ := io.ReadAll(body)
	if string(raw) != "data: {}\n\n" {
		t.Fatalf("body=%q", raw)
	}
}

func TestOpenEventStreamError(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusForbidden, `{"error":{"message":"gone"}}`), nil
	})
	if _, err := c.OpenEventStream(context.Background(), "s-1", 0); !IsSessionInvalid(err) {
		t.Fatalf("expected invalid session, got %v", err)
	}
}

func TestBeaconDisabled(t *testing.T) {
	c, err := New(Options{BaseURL: "http://x", DisableBeacon: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Beacon("s-1") {
		t.Fatalf("beacon should be refused when disabled")
	}
}

func TestBeaconDeletesAndDrains(t *testing.T) {
	var deletes atomic.Int32
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodDelete || req.URL.Path != "/presence/sessions/s-9" {
			t.Errorf("unexpected %s %s", req.Method, req.URL.Path)
		}
		deletes.Add(1)
		return jsonResponse(http.StatusNoContent, ""), nil
	})
	if !c.Beacon("s-9") {
		t.Fatalf("beacon refused")
	}
	if err := c.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if deletes.Load() != 1 {
		t.Fatalf("deletes=%d", deletes.Load())
	}
}
