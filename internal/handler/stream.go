package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"creditguild/internal/state"
)

const wsWriteTimeout = 10 * time.Second

// StreamHandler pushes state commit events to websocket clients so
// dashboards can re-read a resource as soon as it is fresh.
type StreamHandler struct {
	State          *state.Store
	Logger         *zap.Logger
	Buffer         int
	OriginPatterns []string
}

func (h *StreamHandler) Register(r *gin.Engine) {
	r.GET("/api/stream", h.stream)
}

// @Summary Stream of state commit events
// @Description Websocket. Optional comma separated market and resource filters.
// @Tags stream
// @Param market query string false "market ids, comma separated"
// @Param resource query string false "resources, comma separated"
// @Router /api/stream [get]
func (h *StreamHandler) stream(c *gin.Context) {
	if h.State == nil {
		Error(c, http.StatusServiceUnavailable, "state unavailable", nil)
		return
	}
	markets := toSet(c.Query("market"))
	resources := toSet(c.Query("resource"))

	// With no patterns only same-host browser origins are accepted.
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{OriginPatterns: h.OriginPatterns})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	events, cancel := h.State.Subscribe(intQuery(c, "buffer", h.Buffer))
	defer cancel()

	// Clients never send; CloseRead handles their close frame.
	ctx := conn.CloseRead(c.Request.Context())
	if err := writeEvents(ctx, conn, events, markets, resources); err != nil {
		if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
			if h.Logger != nil {
				h.Logger.Debug("stream write failed", zap.Error(err))
			}
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func writeEvents(ctx context.Context, conn *websocket.Conn, events <-chan state.Event, markets, resources map[string]struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !matches(markets, ev.Market) || !matches(resources, ev.Resource) {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func toSet(raw string) map[string]struct{} {
	items := cleanStrings(strings.Split(raw, ","))
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[strings.ToLower(item)] = struct{}{}
	}
	return set
}

func matches(set map[string]struct{}, value string) bool {
	if set == nil {
		return true
	}
	_, ok := set[strings.ToLower(value)]
	return ok
}
