package snapshot

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/eyeexam/internal/domain/examination"
)

// Source hands out snapshots, preferring the consolidated endpoint when one
// is configured and aggregating per kind otherwise.
type Source struct {
	agg          *Aggregator
	consolidated *Consolidated
	logger       zerolog.Logger
}

// NewSource builds a Source. consolidated may be nil.
func NewSource(agg *Aggregator, consolidated *Consolidated, logger zerolog.Logger) *Source {
	return &Source{agg: agg, consolidated: consolidated, logger: logger}
}

func (s *Source) Snapshot(ctx context.Context, visitID uuid.UUID) (*examination.Snapshot, error) {
	if s.consolidated != nil {
		snap, err := s.consolidated.Fetch(ctx, visitID)
		if err == nil {
			return snap, partialFrom(snap)
		}
		s.logger.Warn().Err(err).Str("visit_id", visitID.String()).Msg("consolidated fetch failed, aggregating per kind")
	}
	return s.agg.BuildSnapshot(ctx, visitID)
}

// partialFrom rebuilds the error for a snapshot that reports missing kinds.
func partialFrom(snap *examination.Snapshot) error {
	if len(snap.Missing) == 0 {
		return nil
	}
	var partial examination.PartialAggregationError
	for _, kind := range snap.Missing {
		partial.Add(kind, nil)
	}
	return &partial
}
