package stream

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/Devansh-ops/delta-exchange-copy-trade/internal/events"
)

// Sink receives the normalized account events the router extracts.
type Sink interface {
	Handle(ev events.AccountEvent)
}

// Router classifies raw websocket frames and feeds fills and order updates
// to the decision sink. Everything else is observed and logged only.
type Router struct {
	sink Sink
	log  *zap.Logger

	// OnAuthenticated fires when the venue confirms the auth frame;
	// OnHealth fires on any liveness signal (heartbeat, auth success).
	OnAuthenticated func()
	OnHealth        func()
}

func NewRouter(sink Sink, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{sink: sink, log: log}
}

// Route dispatches one raw frame.
func (r *Router) Route(raw []byte) {
	var frame map[string]any
	if err := json.Unmarshal(raw, &frame); err != nil {
		r.log.Warn("undecodable frame", zap.Error(err), zap.ByteString("raw", truncate(raw, 256)))
		return
	}

	typ := strings.ToLower(stringField(frame, "type"))
	switch typ {
	case "success":
		msg := stringField(frame, "message")
		r.log.Info("ws success", zap.String("message", msg))
		if strings.EqualFold(msg, "authenticated") {
			r.health()
			if r.OnAuthenticated != nil {
				r.OnAuthenticated()
			}
		}
	case "heartbeat":
		r.health()
	case "user_trades", "usertrades", "v2/user_trades":
		for _, entry := range payloadEntries(frame) {
			r.sink.Handle(events.FromUserTrade(entry))
		}
	case "orders":
		for _, entry := range payloadEntries(frame) {
			r.sink.Handle(events.FromOrderUpdate(entry))
		}
	case "positions":
		// Observed for operator visibility only; positions never drive
		// replication.
		r.log.Debug("position update", zap.Any("frame", frame))
	case "error":
		r.log.Error("ws error frame", zap.Any("frame", frame))
	case "subscriptions":
		r.log.Info("subscriptions confirmed", zap.Any("frame", frame))
	default:
		r.log.Debug("unhandled frame", zap.String("type", typ))
	}
}

func (r *Router) health() {
	if r.OnHealth != nil {
		r.OnHealth()
	}
}

// payloadEntries pulls the event objects out of a channel frame. The venue
// wraps them inconsistently: under payload/data/trades/usertrades, as one
// object or a list, or inline on the frame itself.
func payloadEntries(frame map[string]any) []map[string]any {
	for _, key := range []string{"payload", "data", "trades", "usertrades"} {
		switch v := frame[key].(type) {
		case []any:
			out := make([]map[string]any, 0, len(v))
			for _, item := range v {
				if m, ok := item.(map[string]any); ok {
					out = append(out, m)
				}
			}
			return out
		case map[string]any:
			return []map[string]any{v}
		}
	}
	// Flat frame: the event fields sit beside "type".
	if _, ok := frame["symbol"]; ok {
		return []map[string]any{frame}
	}
	if _, ok := frame["product_symbol"]; ok {
		return []map[string]any{frame}
	}
	return nil
}

func stringField(frame map[string]any, key string) string {
	s, _ := frame[key].(string)
	return s
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
