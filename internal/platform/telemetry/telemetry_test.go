package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/trace"
)

func TestMiddleware_ContinuesCallerTrace(t *testing.T) {
	Setup()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/complaints", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got trace.SpanContext
	h := Middleware("exam-server")(func(c echo.Context) error {
		got = trace.SpanContextFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.TraceID().String() != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("expected caller trace id, got %s", got.TraceID())
	}
}

func TestMiddleware_PropagatesHandlerError(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	h := Middleware("exam-server")(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadGateway, "upstream")
	})
	err := h(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadGateway {
		t.Errorf("expected 502 passed through, got %v", err)
	}
}
