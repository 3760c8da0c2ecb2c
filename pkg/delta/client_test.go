package delta

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
)

func marketConfig(apiBase string) Config {
	return Config{
		APIBase:       apiBase,
		APIKey:        "key",
		APISecret:     "secret",
		UserAgent:     "go-rest-client",
		OrderType:     "market_order",
		TimeInForce:   "ioc",
		SelfTagPrefix: "BOTMULT_",
		Retries:       3,
	}
}

func TestSubmitTopUpSignsRequest(t *testing.T) {
	var gotBody []byte
	var gotHeader http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
		w.Write([]byte(`{"result":{"state":"open"}}`))
	}))
	defer srv.Close()

	c := NewClient(marketConfig(srv.URL), zap.NewNop())
	res := c.SubmitTopUp(context.Background(), Order{Symbol: "BTCUSD", Side: "buy", Size: 10})
	if !res.OK() {
		t.Fatalf("status=%d, expected 200", res.Status)
	}

	if gotHeader.Get("api-key") != "key" {
		t.Fatalf("api-key header=%q", gotHeader.Get("api-key"))
	}
	if gotHeader.Get("User-Agent") != "go-rest-client" {
		t.Fatalf("User-Agent header=%q", gotHeader.Get("User-Agent"))
	}
	ts := gotHeader.Get("timestamp")
	if ts == "" {
		t.Fatal("timestamp header missing")
	}
	want := Sign("secret", "POST", ts, "/v2/orders", string(gotBody))
	if gotHeader.Get("signature") != want {
		t.Fatalf("signature=%q, expected %q", gotHeader.Get("signature"), want)
	}

	var payload map[string]any
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("payload not json: %v", err)
	}
	if payload["order_type"] != "market_order" || payload["size"] != float64(10) {
		t.Fatalf("payload=%v", payload)
	}
	tag, _ := payload["client_order_id"].(string)
	if len(tag) <= len("BOTMULT_") || tag[:len("BOTMULT_")] != "BOTMULT_" {
		t.Fatalf("client_order_id=%q missing self tag", tag)
	}
}

func TestSubmitTopUpRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(200)
		w.Write([]byte(`{"result":{"state":"open"}}`))
	}))
	defer srv.Close()

	c := NewClient(marketConfig(srv.URL), zap.NewNop())
	res := c.SubmitTopUp(context.Background(), Order{Symbol: "BTCUSD", Side: "buy", Size: 1})
	if !res.OK() {
		t.Fatalf("status=%d after retries, expected 200", res.Status)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls=%d, expected 3", got)
	}
}

func TestSubmitTopUpRetryBudgetExhausted(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := marketConfig(srv.URL)
	cfg.Retries = 2
	c := NewClient(cfg, zap.NewNop())
	res := c.SubmitTopUp(context.Background(), Order{Symbol: "BTCUSD", Side: "buy", Size: 1})
	if res.OK() {
		t.Fatal("exhausted retries still reported success")
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("calls=%d, expected retry budget 2", got)
	}
}

func TestSubmitTopUpClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_order"}`))
	}))
	defer srv.Close()

	c := NewClient(marketConfig(srv.URL), zap.NewNop())
	res := c.SubmitTopUp(context.Background(), Order{Symbol: "BTCUSD", Side: "buy", Size: 1})
	if res.Status != 400 {
		t.Fatalf("status=%d, expected 400", res.Status)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls=%d, 4xx must not be retried", got)
	}
}

func TestSubmitTopUpDryRunNeverTouchesNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("dry run issued an HTTP request")
	}))
	defer srv.Close()

	cfg := marketConfig(srv.URL)
	cfg.DryRun = true
	c := NewClient(cfg, zap.NewNop())
	res := c.SubmitTopUp(context.Background(), Order{Symbol: "BTCUSD", Side: "buy", Size: 10})
	if !res.OK() || !res.DryRun {
		t.Fatalf("dry run result=%+v", res)
	}
}

func TestSubmitTopUpNonPositiveSizeShortCircuits(t *testing.T) {
	c := NewClient(marketConfig("http://127.0.0.1:1"), zap.NewNop())
	res := c.SubmitTopUp(context.Background(), Order{Symbol: "BTCUSD", Side: "buy", Size: 0})
	if !res.OK() {
		t.Fatalf("status=%d, expected synthetic success", res.Status)
	}
}

func TestSubmitTopUpIOCFallbackToMarket(t *testing.T) {
	var bodies [][]byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		bodies = append(bodies, raw)
		w.WriteHeader(200)
		if len(bodies) == 1 {
			w.Write([]byte(`{"result":{"state":"cancelled","cancellation_reason":"order_size_not_available_in_orderbook"}}`))
			return
		}
		w.Write([]byte(`{"result":{"state":"open"}}`))
	}))
	defer srv.Close()

	cfg := marketConfig(srv.URL)
	cfg.OrderType = "limit_order"
	cfg.LimitIOCFallback = true
	c := NewClient(cfg, zap.NewNop())

	res := c.SubmitTopUp(context.Background(), Order{Symbol: "BTCUSD", Side: "buy", Size: 10, PriceHint: "65000"})
	if !res.OK() {
		t.Fatalf("status=%d, expected fallback success", res.Status)
	}
	if len(bodies) != 2 {
		t.Fatalf("requests=%d, expected limit attempt + market fallback", len(bodies))
	}

	var first, second map[string]any
	json.Unmarshal(bodies[0], &first)
	json.Unmarshal(bodies[1], &second)
	if first["order_type"] != "limit_order" || first["limit_price"] != "65000" {
		t.Fatalf("first payload=%v", first)
	}
	if second["order_type"] != "market_order" {
		t.Fatalf("fallback payload=%v", second)
	}
	if _, hasLimit := second["limit_price"]; hasLimit {
		t.Fatal("fallback carried the limit price")
	}
	if first["client_order_id"] == second["client_order_id"] {
		t.Fatal("fallback reused the client order id")
	}
}

func TestSubmitTopUpLimitWithoutPriceRejected(t *testing.T) {
	cfg := marketConfig("http://127.0.0.1:1")
	cfg.OrderType = "limit_order"
	c := NewClient(cfg, zap.NewNop())
	res := c.SubmitTopUp(context.Background(), Order{Symbol: "BTCUSD", Side: "buy", Size: 10})
	if res.Status != 400 {
		t.Fatalf("status=%d, expected 400 for missing limit price", res.Status)
	}
}

func TestAdjustLimit(t *testing.T) {
	tests := []struct {
		name string
		bps  float64
		side string
		in   string
		want string
	}{
		{name: "no slippage", bps: 0, side: "buy", in: "65000.5", want: "65000.5"},
		{name: "buy shifts up", bps: 100, side: "buy", in: "100", want: "101"},
		{name: "sell shifts down", bps: 100, side: "sell", in: "100", want: "99"},
		{name: "trims trailing zeros", bps: 0, side: "buy", in: "100.2500", want: "100.25"},
		{name: "trims bare point", bps: 0, side: "sell", in: "100.000", want: "100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := marketConfig("http://127.0.0.1:1")
			cfg.LimitSlippageBps = tt.bps
			c := NewClient(cfg, zap.NewNop())

			got, ok := c.adjustLimit(tt.side, tt.in)
			if !ok {
				t.Fatal("adjustLimit rejected a valid price")
			}
			if got != tt.want {
				t.Fatalf("adjustLimit(%q, %q)=%q, expected %q", tt.side, tt.in, got, tt.want)
			}
		})
	}

	c := NewClient(marketConfig("http://127.0.0.1:1"), zap.NewNop())
	if _, ok := c.adjustLimit("buy", ""); ok {
		t.Fatal("empty price accepted")
	}
	if _, ok := c.adjustLimit("buy", "not-a-number"); ok {
		t.Fatal("garbage price accepted")
	}
}
