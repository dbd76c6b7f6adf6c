// Package snapshot assembles the examination snapshot of a visit, either by
// aggregating the latest record of every sub-record kind or by reading the
// consolidated examination-data endpoint.
package snapshot

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/eyeexam/internal/domain/examination"
	"github.com/ehr/eyeexam/internal/domain/subrecord"
	"github.com/ehr/eyeexam/internal/platform/db"
)

// DefaultConcurrency bounds how many kinds are fetched at once.
const DefaultConcurrency = 4

// latestWindow is how many records of page 1 are considered when picking the
// newest one.
const latestWindow = 10

type Aggregator struct {
	resources []subrecord.Resource
	logger    zerolog.Logger
	tracer    trace.Tracer
	limit     int
}

type Option func(*Aggregator)

// WithConcurrency overrides DefaultConcurrency.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.limit = n
		}
	}
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(a *Aggregator) { a.tracer = t }
}

func NewAggregator(resources []subrecord.Resource, logger zerolog.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		resources: resources,
		logger:    logger,
		tracer:    otel.Tracer("github.com/ehr/eyeexam/snapshot"),
		limit:     DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BuildSnapshot merges the newest record of every kind into a fresh snapshot.
// When some kinds fail the snapshot is still returned, together with a
// *examination.PartialAggregationError naming them.
func (a *Aggregator) BuildSnapshot(ctx context.Context, visitID uuid.UUID) (*examination.Snapshot, error) {
	ctx, span := a.tracer.Start(ctx, "snapshot.Build",
		trace.WithAttributes(attribute.String("visit_id", visitID.String())))
	defer span.End()

	var (
		mu      sync.Mutex
		partial examination.PartialAggregationError
		latest  = make([]*subrecord.Record, len(a.resources))
	)
	var g errgroup.Group
	g.SetLimit(a.limitFor(ctx))
	for i, res := range a.resources {
		i, res := i, res
		g.Go(func() error {
			rec, err := a.fetch(ctx, res, visitID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				partial.Add(res.Kind().Name, err)
				return nil
			}
			latest[i] = rec
			return nil
		})
	}
	g.Wait()

	snap := examination.NewSnapshot(visitID)
	for i, rec := range latest {
		if rec == nil {
			continue
		}
		kind := a.resources[i].Kind()
		snap.Merge(kind.Flat(rec.Payload))
		snap.Sources[kind.Name] = rec.ID
	}
	span.SetAttributes(attribute.Int("sources", len(snap.Sources)))

	if len(partial.Kinds) == 0 {
		return snap, nil
	}
	snap.MarkMissing(partial.Kinds...)
	span.SetStatus(codes.Error, partial.Error())
	a.logger.Warn().
		Str("visit_id", visitID.String()).
		Strs("missing_kinds", partial.Kinds).
		Msg("snapshot built from partial data")
	return snap, &partial
}

// limitFor serializes the fetches when the request pinned a single
// connection, which cannot run overlapping queries.
func (a *Aggregator) limitFor(ctx context.Context) int {
	if db.ConnFromContext(ctx) != nil || db.TxFromContext(ctx) != nil {
		return 1
	}
	return a.limit
}

func (a *Aggregator) fetch(ctx context.Context, res subrecord.Resource, visitID uuid.UUID) (*subrecord.Record, error) {
	kind := res.Kind().Name
	ctx, span := a.tracer.Start(ctx, "snapshot.fetch", trace.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("visit_id", visitID.String()),
	))
	defer span.End()

	page, err := res.List(ctx, visitID, subrecord.ListQuery{Page: 1, PerPage: latestWindow})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("total", page.Total))
	return subrecord.Latest(page.Items), nil
}
