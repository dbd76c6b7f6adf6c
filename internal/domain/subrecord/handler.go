package subrecord

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/eyeexam/internal/domain/examination"
	"github.com/ehr/eyeexam/internal/platform/lock"
	"github.com/ehr/eyeexam/pkg/pagination"
)

// CreatorHeader names the caller on created records.
const CreatorHeader = "X-Created-By"

var validate = validator.New()

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	path := h.svc.Kind().Path
	api.GET(path, h.List)
	api.POST(path, h.Create)
	api.GET(path+"/:id", h.Get)
	api.PUT(path+"/:id", h.Update)
	api.PATCH(path+"/:id", h.Update)
	api.DELETE(path+"/:id", h.Delete)

	if len(h.svc.Kind().EyeFields) > 0 {
		api.GET(path+"/:id/form", h.GetForm)
		api.PUT(path+"/:id/form", h.SaveForm)
	}
}

type listQuery struct {
	VisitID string `validate:"required,uuid"`
	Page    int    `validate:"gte=0"`
	PerPage int    `validate:"gte=0"`
	Search  string `validate:"max=200"`
}

func (h *Handler) List(c echo.Context) error {
	q := listQuery{
		VisitID: c.QueryParam("visit_id"),
		Search:  c.QueryParam("search"),
	}
	q.Page, _ = strconv.Atoi(c.QueryParam("page"))
	q.PerPage, _ = strconv.Atoi(c.QueryParam("per_page"))
	if err := validate.Struct(q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	visitID := uuid.MustParse(q.VisitID)

	page, err := h.svc.List(c.Request().Context(), visitID, ListQuery{Page: q.Page, PerPage: q.PerPage, Search: q.Search})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(page.Items, pagination.New(page.Page, page.PerPage), page.Total))
}

func (h *Handler) Create(c echo.Context) error {
	body, err := decodePayload(c)
	if err != nil {
		return err
	}
	visitID, err := visitFrom(c, body)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if ref := c.Request().Header.Get(CreatorHeader); ref != "" {
		ctx = WithCreator(ctx, ref)
	} else if ref, ok := body["created_by"].(string); ok && ref != "" {
		ctx = WithCreator(ctx, ref)
	}
	rec, err := h.svc.Create(ctx, visitID, body)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := recordID(c)
	if err != nil {
		return err
	}
	visitID, err := visitFrom(c, nil)
	if err != nil {
		return err
	}
	rec, err := h.svc.Get(c.Request().Context(), visitID, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := recordID(c)
	if err != nil {
		return err
	}
	body, err := decodePayload(c)
	if err != nil {
		return err
	}
	visitID, err := visitFrom(c, body)
	if err != nil {
		return err
	}
	rec, err := h.svc.Update(c.Request().Context(), visitID, id, body)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := recordID(c)
	if err != nil {
		return err
	}
	visitID, err := visitFrom(c, nil)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), visitID, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetForm(c echo.Context) error {
	id, err := recordID(c)
	if err != nil {
		return err
	}
	visitID, err := visitFrom(c, nil)
	if err != nil {
		return err
	}
	form, err := h.svc.Form(c.Request().Context(), visitID, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, form)
}

func (h *Handler) SaveForm(c echo.Context) error {
	id, err := recordID(c)
	if err != nil {
		return err
	}
	body, err := decodePayload(c)
	if err != nil {
		return err
	}
	visitID, err := visitFrom(c, body)
	if err != nil {
		return err
	}
	keys := h.svc.Kind().EyeFields
	form := make(examination.FlatRecord, len(keys)*4)
	for _, k := range examination.FlatKeys(keys) {
		form[k] = asString(body[k])
	}
	rec, err := h.svc.SaveForm(c.Request().Context(), visitID, id, form)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func decodePayload(c echo.Context) (Payload, error) {
	var body Payload
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	if body == nil {
		body = Payload{}
	}
	return body, nil
}

func recordID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// visitFrom reads visit_id from the query string, falling back to the body.
func visitFrom(c echo.Context, body Payload) (uuid.UUID, error) {
	raw := c.QueryParam("visit_id")
	if raw == "" {
		raw, _ = body["visit_id"].(string)
	}
	if raw == "" {
		raw, _ = body["consultation_id"].(string)
	}
	if err := validate.Var(raw, "required,uuid"); err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "visit_id must be a UUID")
	}
	id := uuid.MustParse(raw)
	if id == uuid.Nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "visit_id must not be the nil UUID")
	}
	return id, nil
}

func httpError(err error) error {
	var ve *examination.ValidationError
	var nf *examination.NotFoundError
	var te *examination.TransportError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]interface{}{
			"message": ve.Error(),
			"fields":  ve.Fields,
		})
	case errors.As(err, &nf):
		return echo.NewHTTPError(http.StatusNotFound, nf.Error())
	case errors.Is(err, lock.ErrBusy):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.As(err, &te):
		return echo.NewHTTPError(http.StatusBadGateway, te.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
