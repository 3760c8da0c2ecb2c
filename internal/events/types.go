// Package events defines the normalized account event built from the
// heterogeneous frames the exchange pushes on its private channels.
package events

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Kind classifies an account event.
type Kind string

const (
	KindTradeFill   Kind = "trade_fill"
	KindOrderUpdate Kind = "order_update"
)

// Side is the normalized order side.
type Side string

const (
	SideBuy     Side = "buy"
	SideSell    Side = "sell"
	SideUnknown Side = ""
)

// AccountEvent is one normalized fill or order update. Numeric fields carry
// an ok flag because upstream payloads are duck-typed and optional.
type AccountEvent struct {
	Kind      Kind
	Symbol    string // upper-cased; empty when absent
	ProductID *int64
	Side      Side
	Price     string // decimal string; empty when absent

	FillID  string
	TradeID string
	OrderID string

	// ClientTag is client_order_id (or client_id) and Text the free-text
	// field; either may carry the bot's self-tag.
	ClientTag string
	Text      string

	// trade_fill: Size is the fill size.
	Size   int64
	SizeOK bool

	// order_update: CumFilled is the cumulative filled size.
	CumFilled int64
	CumOK     bool
	State     string // lower-cased order state
	Unfilled  *int64
}

// FromUserTrade normalizes one user_trades payload entry.
func FromUserTrade(ev map[string]any) AccountEvent {
	out := AccountEvent{
		Kind:      KindTradeFill,
		Symbol:    extractSymbol(ev),
		ProductID: extractProduct(ev),
		Side:      extractSide(ev),
		Price:     str(ev, "price"),
		FillID:    str(ev, "fill_id"),
		TradeID:   str(ev, "id", "trade_id"),
		ClientTag: str(ev, "client_order_id", "client_id", "text"),
		Text:      str(ev, "text"),
	}
	out.Size, out.SizeOK = intVal(ev, "size", "fill_size", "quantity", "filled_quantity")
	return out
}

// FromOrderUpdate normalizes one orders-channel payload entry.
func FromOrderUpdate(ev map[string]any) AccountEvent {
	out := AccountEvent{
		Kind:      KindOrderUpdate,
		Symbol:    extractSymbol(ev),
		ProductID: extractProduct(ev),
		Side:      extractSide(ev),
		Price:     str(ev, "average_fill_price", "price"),
		FillID:    str(ev, "fill_id"),
		OrderID:   str(ev, "id", "order_id"),
		ClientTag: str(ev, "client_order_id", "client_id", "text"),
		Text:      str(ev, "text"),
		State:     strings.ToLower(str(ev, "state")),
	}
	out.CumFilled, out.CumOK = intVal(ev, "filled_size", "total_filled", "cumulative_qty")
	if v, ok := intVal(ev, "unfilled_size"); ok {
		out.Unfilled = &v
	}
	return out
}

// Terminal reports whether the order reached a state after which no further
// fills can arrive.
func (e AccountEvent) Terminal() bool {
	if e.Kind != KindOrderUpdate {
		return false
	}
	if e.State == "closed" {
		return true
	}
	return e.Unfilled != nil && *e.Unfilled == 0
}

func extractSymbol(ev map[string]any) string {
	for _, k := range []string{"symbol", "product_symbol", "product_symbol_name"} {
		if s := asString(ev[k]); s != "" {
			return strings.ToUpper(s)
		}
	}
	return ""
}

func extractProduct(ev map[string]any) *int64 {
	for _, k := range []string{"product_id", "instrument_id"} {
		if v, ok := asInt(ev[k]); ok {
			return &v
		}
	}
	return nil
}

func extractSide(ev map[string]any) Side {
	s := asString(ev["side"])
	if s == "" {
		s = asString(ev["order_side"])
	}
	s = strings.ToLower(s)
	switch {
	case strings.HasPrefix(s, "b"):
		return SideBuy
	case strings.HasPrefix(s, "s"):
		return SideSell
	default:
		return SideUnknown
	}
}

// str returns the first non-empty string among the given keys.
func str(ev map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := asString(ev[k]); s != "" {
			return s
		}
	}
	return ""
}

// intVal returns the first parseable integer among the given keys.
func intVal(ev map[string]any, keys ...string) (int64, bool) {
	for _, k := range keys {
		if v, ok := ev[k]; ok && v != nil {
			if n, ok := asInt(v); ok {
				return n, true
			}
		}
	}
	return 0, false
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func asInt(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case int64:
		return t, true
	case int:
		return int64(t), true
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		if f, err := t.Float64(); err == nil {
			return int64(f), true
		}
		return 0, false
	case string:
		if t == "" {
			return 0, false
		}
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return int64(f), true
		}
		return 0, false
	default:
		return 0, false
	}
}
