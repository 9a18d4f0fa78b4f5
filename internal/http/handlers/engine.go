package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-presence/internal/http/response"
	"github.com/yungbote/neurobridge-presence/internal/platform/apierr"
	"github.com/yungbote/neurobridge-presence/internal/presence/api"
	"github.com/yungbote/neurobridge-presence/internal/presence/chat"
	"github.com/yungbote/neurobridge-presence/internal/presence/engine"
	"github.com/yungbote/neurobridge-presence/internal/presence/loop"
)

// onLoop runs fn on the engine loop for the duration of the request. It
// answers the request itself and returns false when fn could not run.
func onLoop(c *gin.Context, e *engine.Engine, fn func()) bool {
	if err := e.Do(c.Request.Context(), fn); err != nil {
		response.RespondErr(c, classify(err))
		return false
	}
	return true
}

// await starts an asynchronous engine command on the loop and waits for its
// completion callback.
func await[T any](ctx context.Context, e *engine.Engine, start func(done func(T, error))) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	var zero T
	if err := e.Do(ctx, func() {
		start(func(v T, err error) { ch <- result{v: v, err: err} })
	}); err != nil {
		return zero, err
	}
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func classify(err error) *apierr.Error {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return ae
	}
	var he *api.HTTPError
	switch {
	case errors.Is(err, chat.ErrNoRoom):
		return apierr.New(http.StatusConflict, "no_room", err)
	case errors.Is(err, loop.ErrClosed):
		return apierr.New(http.StatusServiceUnavailable, "engine_closed", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apierr.New(http.StatusGatewayTimeout, "timeout", err)
	case errors.As(err, &he):
		code := he.Code
		if code == "" {
			code = "upstream_error"
		}
		if he.StatusCode >= 400 && he.StatusCode < 500 {
			return apierr.New(he.StatusCode, code, err)
		}
		return apierr.New(http.StatusBadGateway, code, err)
	}
	return apierr.New(http.StatusInternalServerError, "internal", err)
}

func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.RespondErr(c, apierr.BadRequest(err))
		return false
	}
	return true
}
