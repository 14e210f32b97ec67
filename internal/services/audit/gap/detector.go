// Package gap finds payment transactions that have no audit history.
package gap

import (
	"context"
	"fmt"

	apperrors "github.com/louisbranch/paysignal/internal/platform/errors"
	"github.com/louisbranch/paysignal/internal/platform/metrics"
	"github.com/louisbranch/paysignal/internal/platform/timerange"
	"github.com/louisbranch/paysignal/internal/services/audit/domain"
	"github.com/louisbranch/paysignal/internal/services/audit/storage"
)

// Detector reports gaps within a creation-time range.
type Detector struct {
	finder  storage.GapFinder
	metrics *metrics.Recorder
}

// NewDetector builds a detector over finder. recorder may be nil.
func NewDetector(finder storage.GapFinder, recorder *metrics.Recorder) *Detector {
	return &Detector{finder: finder, metrics: recorder}
}

// Detect returns every transaction created in r that has no audit entry,
// ordered by creation time then ID. Both bounds are required.
func (d *Detector) Detect(ctx context.Context, r timerange.Range) ([]domain.Transaction, error) {
	if d == nil || d.finder == nil {
		return nil, fmt.Errorf("gap finder is not configured")
	}
	if !r.Bounded() {
		return nil, apperrors.New(apperrors.CodeInvalidTimeRange, "start and end dates are required")
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	gaps, err := d.finder.FindGaps(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("detect gaps in %s: %w", r, err)
	}
	d.metrics.GapsDetected(len(gaps))
	return gaps, nil
}
