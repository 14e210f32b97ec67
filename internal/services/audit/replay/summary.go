package replay

import "github.com/louisbranch/paysignal/internal/services/audit/projection"

// Status is the outcome of one replayed entry.
type Status string

const (
	StatusWouldSend Status = "would_send"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// Result reports one entry. Event is populated for dry runs only. Synthetic
// marks entries written by a backfill rather than the payment system.
type Result struct {
	EventID       string            `json:"event_id" yaml:"event_id"`
	TransactionID string            `json:"payment_transaction_id" yaml:"payment_transaction_id"`
	EventType     string            `json:"event_type" yaml:"event_type"`
	Status        Status            `json:"status" yaml:"status"`
	Synthetic     bool              `json:"synthetic,omitempty" yaml:"synthetic,omitempty"`
	DeliveryID    string            `json:"delivery_id,omitempty" yaml:"delivery_id,omitempty"`
	Error         string            `json:"error,omitempty" yaml:"error,omitempty"`
	Event         *projection.Event `json:"event,omitempty" yaml:"event,omitempty"`
	Err           error             `json:"-" yaml:"-"`
}

func (r *Result) fail(err error) {
	r.Status = StatusFailed
	r.Err = err
	if err != nil {
		r.Error = err.Error()
	}
}

// Summary reports a replay run.
type Summary struct {
	RunID     string   `json:"run_id" yaml:"run_id"`
	DryRun    bool     `json:"dry_run" yaml:"dry_run"`
	Channel   string   `json:"channel" yaml:"channel"`
	Matched   int      `json:"matched" yaml:"matched"`
	Attempted int      `json:"attempted" yaml:"attempted"`
	Delivered int      `json:"delivered" yaml:"delivered"`
	Failed    int      `json:"failed" yaml:"failed"`
	Results   []Result `json:"results,omitempty" yaml:"results,omitempty"`
}
