package auditfakes

import (
	"context"
	"sync"

	"github.com/louisbranch/paysignal/internal/services/audit/storage"
)

// Journal is an in-memory AttemptStore fake.
type Journal struct {
	mu        sync.Mutex
	Attempts  []storage.DeliveryAttempt
	RecordErr error
}

func (j *Journal) RecordAttempt(_ context.Context, attempt storage.DeliveryAttempt) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.RecordErr != nil {
		return j.RecordErr
	}
	attempt.ID = int64(len(j.Attempts) + 1)
	j.Attempts = append(j.Attempts, attempt)
	return nil
}

func (j *Journal) ListAttempts(_ context.Context, limit int) ([]storage.DeliveryAttempt, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]storage.DeliveryAttempt, 0, len(j.Attempts))
	for i := len(j.Attempts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, j.Attempts[i])
	}
	return out, nil
}

var _ storage.AttemptStore = (*Journal)(nil)
