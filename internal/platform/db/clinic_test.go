package db

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestExtractClinicID_FromHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ClinicHeader, "eye_center")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if cid := extractClinicID(c, "default"); cid != "eye_center" {
		t.Errorf("expected eye_center, got %s", cid)
	}
}

func TestExtractClinicID_FromQuery(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?clinic_id=north", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if cid := extractClinicID(c, "default"); cid != "north" {
		t.Errorf("expected north, got %s", cid)
	}
}

func TestExtractClinicID_HeaderPriorityOverQuery(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?clinic_id=query_clinic", nil)
	req.Header.Set(ClinicHeader, "header_clinic")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if cid := extractClinicID(c, "default"); cid != "header_clinic" {
		t.Errorf("expected header_clinic, got %s", cid)
	}
}

func TestExtractClinicID_Default(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if cid := extractClinicID(c, "default"); cid != "default" {
		t.Errorf("expected default, got %s", cid)
	}
}

func TestClinicIDPattern(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"abc", true},
		{"ABC", true},
		{"clinic_1", true},
		{"A1B2C3", true},
		{"a-b", false},
		{"a.b", false},
		{"a b", false},
		{"a/b", false},
		{"", false},
		{"'; DROP TABLE", false},
		{"clinic@1", false},
	}
	for _, tt := range tests {
		if got := clinicIDPattern.MatchString(tt.input); got != tt.valid {
			t.Errorf("clinicIDPattern.MatchString(%q) = %v, want %v", tt.input, got, tt.valid)
		}
	}
}

func TestSchemaName(t *testing.T) {
	if got := SchemaName("north"); got != "clinic_north" {
		t.Errorf("expected clinic_north, got %s", got)
	}
}

func TestClinicFromContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), ClinicIDKey, "north")
	if cid := ClinicFromContext(ctx); cid != "north" {
		t.Errorf("expected north, got %s", cid)
	}
	if cid := ClinicFromContext(context.Background()); cid != "" {
		t.Errorf("expected empty string, got %s", cid)
	}
	wrong := context.WithValue(context.Background(), ClinicIDKey, 12345)
	if cid := ClinicFromContext(wrong); cid != "" {
		t.Errorf("expected empty string for wrong type, got %q", cid)
	}
}

func TestConnFromContext(t *testing.T) {
	if conn := ConnFromContext(context.Background()); conn != nil {
		t.Error("expected nil conn from empty context")
	}
	ctx := context.WithValue(context.Background(), DBConnKey, "not-a-conn")
	if conn := ConnFromContext(ctx); conn != nil {
		t.Error("expected nil when context value is wrong type")
	}
}

func TestTxFromContext(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Error("expected nil tx from empty context")
	}
	ctx := context.WithValue(context.Background(), DBTxKey, "not-a-tx")
	if tx := TxFromContext(ctx); tx != nil {
		t.Error("expected nil when context value is wrong type")
	}
}

func TestWithTx_NoConnection(t *testing.T) {
	_, _, err := WithTx(context.Background())
	if err == nil {
		t.Fatal("expected error when no connection in context")
	}
	if err.Error() != "no database connection in context" {
		t.Errorf("unexpected error message: %s", err.Error())
	}
}

func TestCreateClinicSchema_InvalidIDs(t *testing.T) {
	for _, id := range []string{"invalid-id!", "clinic.with.dot", "cli nic", "drop;table"} {
		if err := CreateClinicSchema(context.Background(), nil, id, ""); err == nil {
			t.Errorf("expected error for invalid clinic ID %q", id)
		}
	}
}
