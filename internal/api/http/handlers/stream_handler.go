package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fieldserve/visit-service/internal/auth"
	"github.com/fieldserve/visit-service/internal/observability"
	"github.com/fieldserve/visit-service/internal/stream"
	apperrors "github.com/fieldserve/visit-service/pkg/util"
)

// StreamHandler serves the live view over server-sent events. Browser
// EventSource clients authenticate with ?token= since they cannot set
// headers.
type StreamHandler struct {
	hub       *stream.Hub
	metrics   *observability.Metrics
	logger    *zap.Logger
	heartbeat time.Duration
}

// NewStreamHandler constructs handler.
func NewStreamHandler(hub *stream.Hub, metrics *observability.Metrics, logger *zap.Logger, heartbeat time.Duration) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &StreamHandler{hub: hub, metrics: metrics, logger: logger, heartbeat: heartbeat}
}

// Stream GET /stream. The first event is always the full snapshot; diffs
// follow in commit order until the client disconnects.
func (h *StreamHandler) Stream(c *fiber.Ctx) error {
	actor, ok := auth.AccountFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	sub, err := h.hub.Subscribe(c.UserContext(), actor)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	h.metrics.StreamOpened()
	logger := h.logger.With(zap.String("subscription_id", sub.ID), zap.String("account_id", actor.ID))

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer func() {
			sub.Close()
			h.metrics.StreamClosed()
			logger.Info("stream closed")
		}()

		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()

		for {
			select {
			case frame, open := <-sub.Frames():
				if !open {
					return
				}
				payload, err := json.Marshal(frame)
				if err != nil {
					logger.Warn("encode frame", zap.Error(err))
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", frame.Kind, payload)
				if err := w.Flush(); err != nil {
					return
				}
			case <-ticker.C:
				fmt.Fprint(w, ": heartbeat\n\n")
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	}))
	return nil
}
