package cart

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var validate = validator.New()

// Handler prices a selection for a visit. Nothing is stored; the client owns
// the cart and posts it at checkout.
type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/visits/:visit_id/orders/lab-tests", h.CheckoutLabTests)
	api.POST("/visits/:visit_id/orders/pharmacy", h.CheckoutPharmacy)
}

type selection[T Item] struct {
	Item     T   `json:"item"`
	Quantity int `json:"quantity"`
}

type checkoutRequest[T Item] struct {
	Lines []selection[T] `json:"lines" validate:"required,min=1,max=200,dive"`
}

func (h *Handler) CheckoutLabTests(c echo.Context) error {
	return checkout[LabTest](c)
}

func (h *Handler) CheckoutPharmacy(c echo.Context) error {
	return checkout[PharmacyItem](c)
}

func checkout[T Item](c echo.Context) error {
	visitID, err := uuid.Parse(c.Param("visit_id"))
	if err != nil || visitID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "visit_id must be a UUID")
	}
	var req checkoutRequest[T]
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "at least one line is required")
	}

	cart := New[T]()
	for _, l := range req.Lines {
		if l.Item.ItemID() == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "every item needs an id")
		}
		// repeated ids add up
		if !cart.Contains(l.Item.ItemID()) {
			cart.Toggle(l.Item)
			cart.SetQuantity(l.Item.ItemID(), l.Quantity)
			continue
		}
		for _, cur := range cart.Lines() {
			if cur.Item.ItemID() == l.Item.ItemID() {
				cart.SetQuantity(cur.Item.ItemID(), cur.Quantity+max(l.Quantity, 1))
			}
		}
	}

	order, err := Checkout(visitID, cart)
	if errors.Is(err, ErrEmptyCart) || errors.Is(err, ErrNoVisit) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, order)
}
