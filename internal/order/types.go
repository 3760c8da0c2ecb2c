package order

// TopUpJob is one admitted replication intent. It is created exactly once per
// admitted event, consumed exactly once by the worker, and never re-queued on
// failure.
type TopUpJob struct {
	AuditID   string // trade/order-derived id, or a generated fallback
	Symbol    string
	ProductID *int64
	Side      string // "buy" or "sell"
	Size      int64  // contracts, > 0 on creation
	Price     string // advisory hint for limit-order variants
}

// Fields renders the job as journal context.
func (j *TopUpJob) Fields() map[string]any {
	ctx := map[string]any{
		"audit_id": j.AuditID,
		"symbol":   j.Symbol,
		"side":     j.Side,
		"size":     j.Size,
	}
	if j.ProductID != nil {
		ctx["product_id"] = *j.ProductID
	}
	if j.Price != "" {
		ctx["price"] = j.Price
	}
	return ctx
}
