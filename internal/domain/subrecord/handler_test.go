package subrecord

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func newTestHandler(kind *Kind) (*Handler, *echo.Echo) {
	svc, _ := newTestService(kind)
	return NewHandler(svc), echo.New()
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func statusOf(err error) int {
	if he, ok := err.(*echo.HTTPError); ok {
		return he.Code
	}
	return 0
}

func TestHandler_Create(t *testing.T) {
	h, e := newTestHandler(Complaint)
	visit := uuid.New()

	req := jsonRequest(http.MethodPost, "/api/v1/complaints",
		`{"visit_id":"`+visit.String()+`","chief_complaint":"<p>Glare at night</p>"}`)
	req.Header.Set(CreatorHeader, "nurse.ade")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["chief_complaint"] != "<p>Glare at night</p>" || body["visit_id"] != visit.String() {
		t.Errorf("unexpected body: %v", body)
	}
	if body["created_by"] != "nurse.ade" {
		t.Errorf("expected creator from header, got %v", body["created_by"])
	}
}

func TestHandler_Create_ValidationIs422(t *testing.T) {
	h, e := newTestHandler(VisualAcuity)
	p := fullAcuity()
	delete(p, "near_os_bcva")
	p["visit_id"] = uuid.New().String()
	b, _ := json.Marshal(p)

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/visual-acuities", string(b)), rec)

	err := h.Create(c)
	if statusOf(err) != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %v", err)
	}
	msg, _ := err.(*echo.HTTPError).Message.(map[string]interface{})
	fields, _ := msg["fields"].([]string)
	if len(fields) != 1 || fields[0] != "near_os_bcva" {
		t.Errorf("expected fields [near_os_bcva], got %v", msg["fields"])
	}
}

func TestHandler_Create_BadVisit(t *testing.T) {
	h, e := newTestHandler(Complaint)
	for _, body := range []string{`{"chief_complaint":"x"}`, `{"visit_id":"abc","chief_complaint":"x"}`, `{"visit_id":"00000000-0000-0000-0000-000000000000","chief_complaint":"x"}`, `not json`} {
		rec := httptest.NewRecorder()
		c := e.NewContext(jsonRequest(http.MethodPost, "/", body), rec)
		if err := h.Create(c); statusOf(err) != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %v", body, err)
		}
	}
}

func TestHandler_List(t *testing.T) {
	h, e := newTestHandler(Complaint)
	visit := uuid.New()
	for _, text := range []string{"a", "b", "c"} {
		h.svc.Create(context.Background(), visit, Payload{"chief_complaint": text})
	}

	req := httptest.NewRequest(http.MethodGet, "/?visit_id="+visit.String()+"&page=1&per_page=2", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Data       []map[string]interface{} `json:"data"`
		Pagination map[string]int           `json:"pagination"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data) != 2 || body.Pagination["total"] != 3 || body.Pagination["last_page"] != 2 {
		t.Errorf("unexpected list response: %s", rec.Body.String())
	}
}

func TestHandler_List_RequiresVisit(t *testing.T) {
	h, e := newTestHandler(Complaint)
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	if err := h.List(c); statusOf(err) != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_Get_NotFound(t *testing.T) {
	h, e := newTestHandler(Complaint)
	req := httptest.NewRequest(http.MethodGet, "/?visit_id="+uuid.New().String(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	if err := h.Get(c); statusOf(err) != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_UpdateAndDelete(t *testing.T) {
	h, e := newTestHandler(Complaint)
	visit := uuid.New()
	created, _ := h.svc.Create(context.Background(), visit, Payload{"chief_complaint": "Redness"})

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPatch, "/?visit_id="+visit.String(), `{"complaint_duration":"1 week"}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(created.ID.String())
	if err := h.Update(c); err != nil {
		t.Fatalf("update: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"complaint_duration":"1 week"`) {
		t.Errorf("unexpected update body: %s", rec.Body.String())
	}

	for i, want := range []int{http.StatusNoContent, http.StatusNotFound} {
		rec = httptest.NewRecorder()
		c = e.NewContext(httptest.NewRequest(http.MethodDelete, "/?visit_id="+visit.String(), nil), rec)
		c.SetParamNames("id")
		c.SetParamValues(created.ID.String())
		err := h.Delete(c)
		if i == 0 && (err != nil || rec.Code != want) {
			t.Errorf("first delete: err=%v code=%d", err, rec.Code)
		}
		if i == 1 && statusOf(err) != want {
			t.Errorf("second delete: expected %d, got %v", want, err)
		}
	}
}

func TestHandler_Busy409(t *testing.T) {
	svc := NewService(Complaint, newMockRepo(), busyLocker{}, zerolog.Nop())
	h, e := NewHandler(svc), echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/", `{"visit_id":"`+uuid.New().String()+`","chief_complaint":"x"}`), rec)
	if err := h.Create(c); statusOf(err) != http.StatusConflict {
		t.Errorf("expected 409, got %v", err)
	}
}

func TestHandler_Form(t *testing.T) {
	h, e := newTestHandler(PosteriorSegment)
	visit := uuid.New()
	created, err := h.svc.Create(context.Background(), visit, Payload{
		"optic_disc": map[string]any{"od": map[string]any{"value": "Healthy"}, "os": map[string]any{"value": "Pale"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?visit_id="+visit.String(), nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(created.ID.String())
	if err := h.GetForm(c); err != nil {
		t.Fatalf("get form: %v", err)
	}
	var form map[string]string
	json.Unmarshal(rec.Body.Bytes(), &form)
	if form["optic_disc_os"] != "Pale" || form["macula_od"] != "" {
		t.Errorf("unexpected form: %v", form)
	}

	form["macula_od"] = "Other"
	form["macula_od_other"] = "Drusen"
	b, _ := json.Marshal(form)
	rec = httptest.NewRecorder()
	c = e.NewContext(jsonRequest(http.MethodPut, "/?visit_id="+visit.String(), string(b)), rec)
	c.SetParamNames("id")
	c.SetParamValues(created.ID.String())
	if err := h.SaveForm(c); err != nil {
		t.Fatalf("save form: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"other":"Drusen"`) {
		t.Errorf("expected nested other text in response: %s", rec.Body.String())
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	e := echo.New()
	api := e.Group("/api/v1")
	for _, k := range Kinds() {
		svc, _ := newTestService(k)
		NewHandler(svc).RegisterRoutes(api)
	}

	have := map[string]bool{}
	for _, r := range e.Routes() {
		have[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /api/v1/complaints",
		"POST /api/v1/visual-acuities",
		"PATCH /api/v1/initial-impressions/:id",
		"DELETE /api/v1/ocular-motilities/:id",
		"GET /api/v1/adnexa-examinations/:id/form",
		"PUT /api/v1/posterior-segment-examinations/:id/form",
	} {
		if !have[want] {
			t.Errorf("route %s not registered", want)
		}
	}
	if have["GET /api/v1/complaints/:id/form"] {
		t.Error("flat kind should not expose a form route")
	}
}
