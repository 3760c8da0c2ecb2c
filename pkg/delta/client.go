package delta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const ordersPath = "/v2/orders"

// Config holds Delta REST credentials and submission behavior.
type Config struct {
	APIBase   string
	APIKey    string
	APISecret string
	UserAgent string // required by Delta

	OrderType        string // market_order or limit_order
	TimeInForce      string // ioc, fok, gtc
	SelfTagPrefix    string // stamped into client_order_id to mark our orders
	DryRun           bool
	LimitSlippageBps float64
	LimitIOCFallback bool

	ConnTimeout time.Duration
	ReadTimeout time.Duration
	Retries     int
	RatePerSec  float64
	RateBurst   int
}

// Client submits signed top-up orders with bounded retry and rate limiting.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *zap.Logger
	rng        *rand.Rand
}

// NewClient builds a client with separate connect and read timeouts.
func NewClient(cfg Config, log *zap.Logger) *Client {
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.ConnTimeout <= 0 {
		cfg.ConnTimeout = 3 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	transport := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: cfg.ConnTimeout}).DialContext,
		TLSHandshakeTimeout: cfg.ConnTimeout,
	}
	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.ReadTimeout,
		},
		limiter: limiter,
		log:     log,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewClientOrderID returns a fresh self-tagged client order id.
func (c *Client) NewClientOrderID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	return c.cfg.SelfTagPrefix + suffix
}

// SubmitTopUp places a top-up order. In dry-run mode it logs the intent and
// returns a synthetic success without touching the network. With a limit+IOC
// order cancelled for missing book depth and fallback enabled, it resubmits
// as a market order under a fresh tag and returns that second result.
func (c *Client) SubmitTopUp(ctx context.Context, o Order) Result {
	if o.Size <= 0 {
		return Result{Status: 200, Body: []byte(`{"skipped":"non_positive_size"}`)}
	}

	if c.cfg.DryRun {
		c.log.Info("dry_run_order",
			zap.String("symbol", o.Symbol),
			zap.String("side", o.Side),
			zap.Int64("size", o.Size),
			zap.String("order_type", c.cfg.OrderType),
			zap.String("price", o.PriceHint),
		)
		return Result{Status: 200, Body: []byte(`{"dry_run":true}`), DryRun: true}
	}

	body := orderBody{
		Side:          strings.ToLower(o.Side),
		OrderType:     c.cfg.OrderType,
		TimeInForce:   strings.ToLower(c.cfg.TimeInForce),
		Size:          o.Size,
		ReduceOnly:    false,
		ClientOrderID: c.NewClientOrderID(),
		ProductID:     o.ProductID,
	}
	if c.cfg.OrderType == "limit_order" {
		adj, ok := c.adjustLimit(body.Side, o.PriceHint)
		if !ok {
			return Result{Status: 400, Body: []byte(`{"error":"missing_limit_price"}`)}
		}
		body.LimitPrice = adj
	}

	res := c.post(ctx, ordersPath, body)

	if c.shouldFallbackToMarket(res, body) {
		c.log.Info("limit_ioc_cancel_fallback",
			zap.String("symbol", o.Symbol),
			zap.String("side", o.Side),
			zap.Int64("size", o.Size),
			zap.String("limit_price", body.LimitPrice),
		)
		fallback := body
		fallback.OrderType = "market_order"
		fallback.ClientOrderID = c.NewClientOrderID()
		fallback.LimitPrice = ""
		return c.post(ctx, ordersPath, fallback)
	}

	return res
}

// shouldFallbackToMarket detects the one cancellation the venue reports when
// an IOC limit order found insufficient depth.
func (c *Client) shouldFallbackToMarket(res Result, body orderBody) bool {
	if !c.cfg.LimitIOCFallback || c.cfg.DryRun {
		return false
	}
	if res.Status != 200 || body.OrderType != "limit_order" || body.TimeInForce != "ioc" {
		return false
	}
	resp, ok := parseOrderResponse(res.Body)
	if !ok {
		return false
	}
	return resp.Result.State == "cancelled" &&
		resp.Result.CancellationReason == "order_size_not_available_in_orderbook"
}

// adjustLimit shifts the price by the configured slippage allowance, up for
// buys and down for sells, and formats with trimmed precision.
func (c *Client) adjustLimit(side, basePrice string) (string, bool) {
	if basePrice == "" {
		return "", false
	}
	p, err := decimal.NewFromString(basePrice)
	if err != nil {
		return "", false
	}
	if c.cfg.LimitSlippageBps > 0 {
		slip := decimal.NewFromFloat(c.cfg.LimitSlippageBps).Div(decimal.NewFromInt(10_000))
		if side == "buy" {
			p = p.Mul(decimal.NewFromInt(1).Add(slip))
		} else {
			p = p.Mul(decimal.NewFromInt(1).Sub(slip))
		}
	}
	s := p.Round(8).String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return s, true
}

// post sends a signed JSON POST, retrying on 429/5xx and transport failure
// with capped exponential backoff plus jitter.
func (c *Client) post(ctx context.Context, path string, payload orderBody) Result {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Result{Status: 0, Body: []byte(err.Error())}
	}

	url := strings.TrimRight(c.cfg.APIBase, "/") + path
	for attempt := 1; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return Result{Status: 0, Body: []byte(err.Error())}
			}
		}

		status, body, err := c.doPost(ctx, url, path, raw)
		if err == nil && status != 429 && (status < 500 || status >= 600) {
			return Result{Status: status, Body: body}
		}
		if attempt >= c.cfg.Retries {
			if err != nil {
				return Result{Status: 0, Body: []byte(err.Error())}
			}
			return Result{Status: status, Body: body}
		}

		sleep := retryBackoff(attempt, c.rng)
		if err != nil {
			c.log.Info("rest_exc_retry",
				zap.Int("attempt", attempt),
				zap.Duration("sleep", sleep),
				zap.Error(err),
			)
		} else {
			c.log.Info("rest_retry",
				zap.Int("status", status),
				zap.Int("attempt", attempt),
				zap.Duration("sleep", sleep),
			)
		}

		select {
		case <-ctx.Done():
			return Result{Status: 0, Body: []byte(ctx.Err().Error())}
		case <-time.After(sleep):
		}
	}
}

func (c *Client) doPost(ctx context.Context, url, path string, raw []byte) (int, []byte, error) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("api-key", c.cfg.APIKey)
	req.Header.Set("timestamp", ts)
	req.Header.Set("signature", Sign(c.cfg.APISecret, http.MethodPost, ts, path, string(raw)))
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return res.StatusCode, body, nil
}

// retryBackoff doubles from 500ms up to 4s, plus up to 25% jitter.
func retryBackoff(attempt int, rng *rand.Rand) time.Duration {
	base := 500 * time.Millisecond << (attempt - 1)
	if base > 4*time.Second {
		base = 4 * time.Second
	}
	return time.Duration(float64(base) * (1 + rng.Float64()*0.25))
}
