package reconcile

import "time"

// ItemState tracks one gap through a backfill.
type ItemState string

const (
	ItemPending   ItemState = "pending"
	ItemInserted  ItemState = "inserted"
	ItemCommitted ItemState = "committed"
	ItemFailed    ItemState = "failed"
	// ItemSkipped means the transaction gained history between detection
	// and write.
	ItemSkipped ItemState = "skipped"
)

// Item is the outcome for one gap.
type Item struct {
	TransactionID string    `json:"transaction_id" yaml:"transaction_id"`
	EventID       string    `json:"event_id" yaml:"event_id"`
	State         ItemState `json:"state" yaml:"state"`
	Error         string    `json:"error,omitempty" yaml:"error,omitempty"`
	Err           error     `json:"-" yaml:"-"`
}

func (i *Item) fail(err error) {
	i.State = ItemFailed
	i.Err = err
	if err != nil {
		i.Error = err.Error()
	}
}

// PreviewItem describes a gap listed by a dry run.
type PreviewItem struct {
	TransactionID string    `json:"transaction_id" yaml:"transaction_id"`
	MerchantID    string    `json:"merchant_id" yaml:"merchant_id"`
	Amount        string    `json:"amount" yaml:"amount"`
	Currency      string    `json:"currency" yaml:"currency"`
	State         string    `json:"state" yaml:"state"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
}

// Summary reports a backfill run. Inserted counts committed entries only.
type Summary struct {
	RunID     string        `json:"run_id" yaml:"run_id"`
	DryRun    bool          `json:"dry_run" yaml:"dry_run"`
	BatchSize int           `json:"batch_size" yaml:"batch_size"`
	Gaps      int           `json:"gaps" yaml:"gaps"`
	Inserted  int           `json:"inserted" yaml:"inserted"`
	Failed    int           `json:"failed" yaml:"failed"`
	Skipped   int           `json:"skipped" yaml:"skipped"`
	Commits   int           `json:"commits" yaml:"commits"`
	Preview   []PreviewItem `json:"preview,omitempty" yaml:"preview,omitempty"`
	Items     []Item        `json:"items,omitempty" yaml:"items,omitempty"`
}

// FailedItems returns the items that could not be written.
func (s Summary) FailedItems() []Item {
	var out []Item
	for _, item := range s.Items {
		if item.State == ItemFailed {
			out = append(out, item)
		}
	}
	return out
}
