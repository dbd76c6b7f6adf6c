package report

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/eyeexam/internal/domain/examination"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// SnapshotSource produces the snapshot of one visit.
type SnapshotSource interface {
	Snapshot(ctx context.Context, visitID uuid.UUID) (*examination.Snapshot, error)
}

// Handler serves the three renderings of a visit's examination.
type Handler struct {
	source SnapshotSource
	logger zerolog.Logger
}

func NewHandler(source SnapshotSource, logger zerolog.Logger) *Handler {
	return &Handler{source: source, logger: logger}
}

// RegisterRoutes registers:
//
//	GET /visits/:visit_id/report           - section views as JSON
//	GET /visits/:visit_id/report/print     - printable HTML
//	GET /visits/:visit_id/report/workbook  - XLSX export
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/visits/:visit_id/report", h.Interactive)
	g.GET("/visits/:visit_id/report/print", h.Printable)
	g.GET("/visits/:visit_id/report/workbook", h.Workbook)
}

type interactiveResponse struct {
	VisitID      uuid.UUID     `json:"visit_id"`
	GeneratedAt  time.Time     `json:"generated_at"`
	MissingKinds []string      `json:"missing_kinds"`
	Sections     []SectionView `json:"sections"`
}

func (h *Handler) Interactive(c echo.Context) error {
	snap, err := h.snapshot(c)
	if err != nil {
		return err
	}
	missing := snap.Missing
	if missing == nil {
		missing = []string{}
	}
	return c.JSON(http.StatusOK, interactiveResponse{
		VisitID:      snap.VisitID,
		GeneratedAt:  snap.GeneratedAt,
		MissingKinds: missing,
		Sections:     RenderInteractive(snap),
	})
}

func (h *Handler) Printable(c echo.Context) error {
	snap, err := h.snapshot(c)
	if err != nil {
		return err
	}
	doc, err := RenderPrintable(snap)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.HTML(http.StatusOK, doc)
}

func (h *Handler) Workbook(c echo.Context) error {
	snap, err := h.snapshot(c)
	if err != nil {
		return err
	}
	b, err := RenderWorkbook(snap)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=examination-%s.xlsx", snap.VisitID))
	return c.Blob(http.StatusOK, xlsxMIME, b)
}

// snapshot loads the visit's snapshot. Partial snapshots render; the missing
// kinds are part of every output.
func (h *Handler) snapshot(c echo.Context) (*examination.Snapshot, error) {
	visitID, err := uuid.Parse(c.Param("visit_id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "visit_id must be a valid UUID")
	}
	snap, err := h.source.Snapshot(c.Request().Context(), visitID)
	var partial *examination.PartialAggregationError
	switch {
	case err == nil:
	case errors.As(err, &partial) && snap != nil:
		h.logger.Warn().Str("visit_id", visitID.String()).Strs("missing_kinds", partial.Kinds).Msg("rendering partial report")
	default:
		h.logger.Error().Err(err).Str("visit_id", visitID.String()).Msg("snapshot failed")
		return nil, echo.NewHTTPError(http.StatusBadGateway, "examination data unavailable")
	}
	return snap, nil
}
