package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/emeraldgrove/clinic-assistant/internal/domain"
	"github.com/emeraldgrove/clinic-assistant/internal/scope"
	"github.com/emeraldgrove/clinic-assistant/internal/service"
)

// Chat accepts a user message and streams the assistant response as
// Server-Sent Events, one {"content": ...} payload per chunk.
// POST /api/chat
func (h *Handler) Chat(c echo.Context) error {
	caller := CallerFrom(c)
	if caller == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "authentication required"})
	}

	var req domain.ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "sessionId and message are required"})
	}

	// The generation runs in its own goroutine and hands chunks over a
	// bounded channel; a full channel blocks the producer, throttling the
	// model read to the client's consumption rate.
	chunks := make(chan string, h.config.StreamBufferSize)
	g, ctx := errgroup.WithContext(c.Request().Context())
	g.Go(func() error {
		defer close(chunks)
		return h.service.Chat(ctx, req.SessionID, req.Message, caller, func(chunk string) error {
			select {
			case chunks <- chunk:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	})

	res := c.Response()
	started := false
	for chunk := range chunks {
		if !started {
			writeSSEHeaders(res)
			started = true
		}
		data, err := json.Marshal(domain.ChatChunk{Content: chunk})
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(res, "data: %s\n\n", data); err != nil {
			// Client is gone; the request context cancels the generation.
			break
		}
		res.Flush()
	}

	err := g.Wait()
	if err == nil {
		if !started {
			writeSSEHeaders(res)
		}
		return nil
	}
	if errors.Is(err, context.Canceled) {
		// Client disconnect is a clean abort, not an error.
		return nil
	}

	if !started {
		switch {
		case errors.Is(err, service.ErrValidation):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, service.ErrSessionBusy):
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		case errors.Is(err, service.ErrSessionNotFound):
			return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
		case errors.Is(err, scope.ErrIdentityResolution):
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "identity resolution failed"})
		default:
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "chat failed"})
		}
	}

	// Tokens already sent are not retracted; surface a terminal error
	// event and close the stream.
	data, _ := json.Marshal(domain.StreamErrorData{Code: "inference_failure", Message: err.Error()})
	fmt.Fprintf(res, "event: error\ndata: %s\n\n", data)
	res.Flush()
	return nil
}

func writeSSEHeaders(res *echo.Response) {
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
}
