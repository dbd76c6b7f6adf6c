package cart

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func checkoutContext(e *echo.Echo, visit, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("visit_id")
	c.SetParamValues(visit)
	return c, rec
}

func TestHandler_CheckoutLabTests(t *testing.T) {
	e := echo.New()
	visit := uuid.New()
	body := `{"lines":[
		{"item":{"id":"cbc","code":"CBC","name":"Complete blood count","price":"12.50"},"quantity":2},
		{"item":{"id":"hba1c","name":"HbA1c","price":"1,000"},"quantity":0},
		{"item":{"id":"cbc","code":"CBC","name":"Complete blood count","price":"12.50"},"quantity":1}
	]}`
	c, rec := checkoutContext(e, visit.String(), body)
	if err := NewHandler().CheckoutLabTests(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	var order Order
	if err := json.Unmarshal(rec.Body.Bytes(), &order); err != nil {
		t.Fatal(err)
	}
	if order.VisitID != visit || len(order.Lines) != 2 {
		t.Fatalf("unexpected order: %+v", order)
	}
	if order.Lines[0].Quantity != 3 || order.Lines[0].Description != "Complete blood count (CBC)" {
		t.Errorf("first line = %+v", order.Lines[0])
	}
	if order.Lines[1].Quantity != 1 {
		t.Errorf("zero quantity should clamp to 1, got %d", order.Lines[1].Quantity)
	}
	if !order.Total.Equal(dec("1037.50")) {
		t.Errorf("total = %s, want 1037.50", order.Total)
	}
}

func TestHandler_CheckoutPharmacy(t *testing.T) {
	e := echo.New()
	body := `{"lines":[{"item":{"id":"tim","name":"Timolol","strength":"0.5%","form":"drops","price":"8"},"quantity":1}]}`
	c, rec := checkoutContext(e, uuid.NewString(), body)
	if err := NewHandler().CheckoutPharmacy(c); err != nil {
		t.Fatal(err)
	}
	var order Order
	if err := json.Unmarshal(rec.Body.Bytes(), &order); err != nil {
		t.Fatal(err)
	}
	if len(order.Lines) != 1 || order.Lines[0].Description != "Timolol 0.5% drops" || !order.Total.Equal(dec("8")) {
		t.Errorf("unexpected order: %+v", order)
	}
}

func TestHandler_CheckoutRejects(t *testing.T) {
	e := echo.New()
	line := `{"lines":[{"item":{"id":"cbc","name":"CBC","price":"1"},"quantity":1}]}`
	tests := []struct {
		name  string
		visit string
		body  string
	}{
		{"bad visit", "abc", line},
		{"nil visit", uuid.Nil.String(), line},
		{"no lines", uuid.NewString(), `{"lines":[]}`},
		{"missing id", uuid.NewString(), `{"lines":[{"item":{"name":"CBC"},"quantity":1}]}`},
		{"not json", uuid.NewString(), `nope`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := checkoutContext(e, tt.visit, tt.body)
			err := NewHandler().CheckoutLabTests(c)
			if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %v", err)
			}
		})
	}
}
