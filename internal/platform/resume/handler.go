package resume

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var validate = validator.New()

type Handler struct {
	signer *Signer
}

func NewHandler(signer *Signer) *Handler {
	return &Handler{signer: signer}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/resume-tokens", h.Issue)
	api.GET("/resume-tokens/:token", h.Decode)
}

type issueRequest struct {
	PatientID string `json:"patient_id" validate:"required,max=64"`
	VisitID   string `json:"visit_id" validate:"required,uuid"`
}

type issueResponse struct {
	Token string `json:"token"`
	State
}

func (h *Handler) Issue(c echo.Context) error {
	var req issueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id and a valid visit_id are required")
	}
	visitID := uuid.MustParse(req.VisitID)
	if visitID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id and a valid visit_id are required")
	}
	token, state, err := h.signer.Issue(req.PatientID, visitID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, issueResponse{Token: token, State: *state})
}

func (h *Handler) Decode(c echo.Context) error {
	state, err := h.signer.Parse(c.Param("token"))
	if errors.Is(err, ErrInvalidToken) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired resume token")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, state)
}
