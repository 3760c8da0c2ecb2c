package delta

import "encoding/json"

// Order captures a top-up order intent to be sent to the exchange.
type Order struct {
	Symbol    string
	ProductID *int64
	Side      string // "buy" or "sell"
	Size      int64  // contracts
	PriceHint string // advisory; only used for limit orders
}

// Result is the outcome of a submission attempt. Transport-level failure is
// mapped to Status 0 with the error text as Body.
type Result struct {
	Status int
	Body   []byte
	DryRun bool
}

// OK reports whether the venue accepted the order.
func (r Result) OK() bool {
	return r.Status == 200
}

// orderBody is the POST /v2/orders request payload.
type orderBody struct {
	Side          string `json:"side"`
	OrderType     string `json:"order_type"`
	TimeInForce   string `json:"time_in_force"`
	Size          int64  `json:"size"`
	ReduceOnly    bool   `json:"reduce_only"`
	ClientOrderID string `json:"client_order_id"`
	ProductID     *int64 `json:"product_id,omitempty"`
	LimitPrice    string `json:"limit_price,omitempty"`
}

// orderResponse covers the fields the fallback logic inspects.
type orderResponse struct {
	Result struct {
		State              string `json:"state"`
		CancellationReason string `json:"cancellation_reason"`
	} `json:"result"`
}

func parseOrderResponse(body []byte) (orderResponse, bool) {
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return orderResponse{}, false
	}
	return resp, true
}
