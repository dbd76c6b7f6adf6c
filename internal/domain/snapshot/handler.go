package snapshot

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/eyeexam/internal/domain/examination"
)

// Builder produces the snapshot of one visit. *Aggregator and *Source both
// satisfy it.
type Builder interface {
	Snapshot(ctx context.Context, visitID uuid.UUID) (*examination.Snapshot, error)
}

// Snapshot lets an Aggregator be used as a Builder.
func (a *Aggregator) Snapshot(ctx context.Context, visitID uuid.UUID) (*examination.Snapshot, error) {
	return a.BuildSnapshot(ctx, visitID)
}

type Handler struct {
	builder Builder
}

func NewHandler(builder Builder) *Handler {
	return &Handler{builder: builder}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET(ConsolidatedPath, h.ExaminationData)
}

// ExaminationData answers 200 even for partial snapshots; missing_kinds in
// the body names what could not be read.
func (h *Handler) ExaminationData(c echo.Context) error {
	raw := c.QueryParam("consultation_id")
	if raw == "" {
		raw = c.QueryParam("visit_id")
	}
	visitID, err := uuid.Parse(raw)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "consultation_id must be a valid UUID")
	}
	snap, err := Fetch(c.Request().Context(), h.builder, visitID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, snap)
}

// Fetch returns a renderable snapshot. Partial aggregation is not an error
// here: the snapshot records its missing kinds.
func Fetch(ctx context.Context, b Builder, visitID uuid.UUID) (*examination.Snapshot, error) {
	snap, err := b.Snapshot(ctx, visitID)
	var partial *examination.PartialAggregationError
	if err != nil && !(errors.As(err, &partial) && snap != nil) {
		return nil, err
	}
	return snap, nil
}
