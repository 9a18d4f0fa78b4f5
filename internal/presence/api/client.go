package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	domainchat "github.com/yungbote/neurobridge-presence/internal/domain/chat"
	"github.com/yungbote/neurobridge-presence/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-presence/internal/platform/logger"
)

// NoSessionExtensionHeader marks a request that must not count as user
// activity for the server-side authentication session.
const NoSessionExtensionHeader = "X-No-Session-Extension"

const tracerName = "github.com/yungbote/neurobridge-presence/internal/presence/api"

type Options struct {
	BaseURL string
	Token   string

	Timeout       time.Duration
	BeaconTimeout time.Duration
	// DisableBeacon forces the synchronous delete fallback on unload.
	DisableBeacon bool
	MaxRetries    int

	HTTPClient *http.Client
	Log        *logger.Logger
}

type Client struct {
	baseURL string
	token   string

	timeout       time.Duration
	beaconTimeout time.Duration
	beacons       bool
	maxRetries    int

	httpClient *http.Client
	log        *logger.Logger
	tracer     trace.Tracer

	inflight sync.WaitGroup
}

func New(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("baseURL required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid baseURL: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	beaconTimeout := opts.BeaconTimeout
	if beaconTimeout <= 0 {
		beaconTimeout = 2 * time.Second
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	log := opts.Log
	if log == nil {
		log = logger.NewNop()
	}

	return &Client{
		baseURL:       baseURL,
		token:         strings.TrimSpace(opts.Token),
		timeout:       timeout,
		beaconTimeout: beaconTimeout,
		beacons:       !opts.DisableBeacon,
		maxRetries:    maxRetries,
		httpClient:    hc,
		log:           log.With("component", "PresenceAPI"),
		tracer:        otel.Tracer(tracerName),
	}, nil
}

func (c *Client) BaseURL() string { return c.baseURL }

// ---------------- presence sessions ----------------

func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (CreateSessionResponse, error) {
	var resp CreateSessionResponse
	if err := c.do(ctx, call{op: "session.create", method: http.MethodPost, path: "/presence/sessions", body: req, out: &resp}); err != nil {
		return CreateSessionResponse{}, err
	}
	if strings.TrimSpace(resp.SessionID) == "" {
		return CreateSessionResponse{}, errors.New("create session: empty sessionId")
	}
	return resp, nil
}

// Heartbeat never extends the server-side auth session and is never retried
// here; the next scheduled tick is the retry.
func (c *Client) Heartbeat(ctx context.Context, sessionID string, req HeartbeatRequest) error {
	return c.do(ctx, call{
		op:          "session.heartbeat",
		method:      http.MethodPut,
		path:        sessionPath(sessionID),
		body:        req,
		noExtension: true,
	})
}

func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, call{op: "session.delete", method: http.MethodDelete, path: sessionPath(sessionID), noExtension: true})
}

// Beacon queues a best-effort delete without waiting for it. It returns false
// when beacons are disabled and the caller must fall back to DeleteSession.
func (c *Client) Beacon(sessionID string) bool {
	if !c.beacons {
		return false
	}
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.beaconTimeout)
		defer cancel()
		if err := c.DeleteSession(ctx, sessionID); err != nil {
			c.log.Debug("session beacon failed", "error", err)
		}
	}()
	return true
}

// Drain waits for outstanding beacons or until ctx is done. A process that
// exits right after unload calls it so the deletes get out.
func (c *Client) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OpenEventStream opens the SSE push channel of a session. The caller owns
// the returned body.
func (c *Client) OpenEventStream(ctx context.Context, sessionID string, lastEventID int64) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+sessionPath(sessionID)+"/events", nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, "", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set(NoSessionExtensionHeader, "1")
	if lastEventID > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatInt(lastEventID, 10))
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()
		return nil, parseHTTPError(resp.StatusCode, raw)
	}
	return resp.Body, nil
}

// Dial adapts OpenEventStream to the stream transport's dialer.
func (c *Client) Dial(ctx context.Context, sessionID string, lastEventID int64) (io.ReadCloser, error) {
	return c.OpenEventStream(ctx, sessionID, lastEventID)
}

// ---------------- chat ----------------

func (c *Client) OpenRoom(ctx context.Context, req OpenRoomRequest) (OpenRoomResponse, error) {
	var resp OpenRoomResponse
	if err := c.do(ctx, call{op: "chat.open_room", method: http.MethodPost, path: "/chat/rooms", body: req, out: &resp}); err != nil {
		return OpenRoomResponse{}, err
	}
	return resp, nil
}

// SendMessage posts a chat line and returns the client id used to dedupe it.
func (c *Client) SendMessage(ctx context.Context, roomID string, text string) (string, error) {
	clientID := uuid.NewString()
	err := c.do(ctx, call{
		op:     "chat.send_message",
		method: http.MethodPost,
		path:   roomPath(roomID) + "/messages",
		body:   sendMessageRequest{ClientID: clientID, Text: text},
	})
	if err != nil {
		return "", err
	}
	return clientID, nil
}

func (c *Client) SendTyping(ctx context.Context, roomID string, typing bool) error {
	return c.do(ctx, call{
		op:          "chat.send_typing",
		method:      http.MethodPut,
		path:        roomPath(roomID) + "/typing",
		body:        typingRequest{Typing: typing},
		noExtension: true,
	})
}

func (c *Client) FetchHistory(ctx context.Context, roomID string, offset, limit int) ([]domainchat.Message, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(max(offset, 0)))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var raw json.RawMessage
	err := c.do(ctx, call{
		op:        "chat.fetch_history",
		method:    http.MethodGet,
		path:      roomPath(roomID) + "/messages?" + q.Encode(),
		out:       &raw,
		retryable: true,
	})
	if err != nil {
		return nil, err
	}
	return domainchat.DecodeHistory(raw)
}

// ---------------- HTTP helpers ----------------

type call struct {
	op          string
	method      string
	path        string
	body        any
	out         any
	noExtension bool
	retryable   bool
}

func sessionPath(sessionID string) string {
	return "/presence/sessions/" + url.PathEscape(strings.TrimSpace(sessionID))
}

func roomPath(roomID string) string {
	return "/chat/rooms/" + url.PathEscape(strings.TrimSpace(roomID))
}

func (c *Client) setHeaders(req *http.Request, contentType string, accept string) {
	if strings.TrimSpace(contentType) != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if strings.TrimSpace(accept) != "" {
		req.Header.Set("Accept", accept)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("X-Request-Id", ctxutil.RequestID(req.Context()))
}

func (c *Client) do(ctx context.Context, cl call) error {
	ctx, span := c.tracer.Start(ctx, "presence.api "+cl.op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", cl.method),
		attribute.String("presence.op", cl.op),
	)

	err := c.doJSON(ctx, cl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var herr *HTTPError
		if errors.As(err, &herr) {
			span.SetAttributes(attribute.Int("http.response.status_code", herr.StatusCode))
		}
	}
	return err
}

// retryInitialInterval is the first wait between retried requests; it doubles
// per attempt.
var retryInitialInterval = 250 * time.Millisecond

func (c *Client) doJSON(ctx context.Context, cl call) error {
	var buf bytes.Buffer
	if cl.body != nil {
		if err := json.NewEncoder(&buf).Encode(cl.body); err != nil {
			return err
		}
	}

	ctx2, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	attempts := 1
	if cl.retryable {
		attempts += c.maxRetries
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryInitialInterval
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.Reset()

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if ctx2.Err() != nil {
			return ctx2.Err()
		}

		var body io.Reader
		if cl.body != nil {
			body = bytes.NewReader(buf.Bytes())
		}
		req, err := http.NewRequestWithContext(ctx2, cl.method, c.baseURL+cl.path, body)
		if err != nil {
			return err
		}
		contentType := ""
		if cl.body != nil {
			contentType = "application/json"
		}
		c.setHeaders(req, contentType, "application/json")
		if cl.noExtension {
			req.Header.Set(NoSessionExtensionHeader, "1")
		}
		otel.GetTextMapPropagator().Inject(ctx2, propagation.HeaderCarrier(req.Header))

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			_ = resp.Body.Close()
			if readErr != nil {
				return readErr
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				lastErr = parseHTTPError(resp.StatusCode, raw)
				if resp.StatusCode < 500 {
					return lastErr
				}
			} else {
				if cl.out == nil || len(bytes.TrimSpace(raw)) == 0 {
					return nil
				}
				return json.Unmarshal(raw, cl.out)
			}
		}

		if attempt < attempts-1 {
			wait := time.NewTimer(bo.NextBackOff())
			select {
			case <-ctx2.Done():
				wait.Stop()
				return ctx2.Err()
			case <-wait.C:
			}
		}
	}

	if lastErr == nil {
		lastErr = errors.New("request failed")
	}
	return lastErr
}
