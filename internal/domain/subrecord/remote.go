package subrecord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ehr/eyeexam/internal/domain/examination"
	"github.com/ehr/eyeexam/internal/platform/lock"
	"github.com/ehr/eyeexam/pkg/pagination"
)

// Remote is a Resource served by another backend over HTTP.
type Remote struct {
	kind    *Kind
	baseURL string
	client  *http.Client
	header  http.Header
	unwrap  []unwrapFunc
}

type RemoteOption func(*Remote)

// WithHeader adds a header to every request, e.g. the clinic id.
func WithHeader(key, value string) RemoteOption {
	return func(r *Remote) { r.header.Set(key, value) }
}

// NewRemote builds a client for kind rooted at baseURL (".../api/v1"). The
// client's Timeout bounds every call.
func NewRemote(kind *Kind, baseURL string, client *http.Client, opts ...RemoteOption) *Remote {
	if client == nil {
		client = http.DefaultClient
	}
	r := &Remote{
		kind:    kind,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		header:  http.Header{},
	}
	// declared envelope first, the other shape as a fallback
	if kind.Envelope == EnvelopeNested {
		r.unwrap = []unwrapFunc{unwrapNested, unwrapFlat}
	} else {
		r.unwrap = []unwrapFunc{unwrapFlat, unwrapNested}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Remote) Kind() *Kind { return r.kind }

type wireEnvelope struct {
	Data       json.RawMessage  `json:"data"`
	Pagination *pagination.Meta `json:"pagination"`
}

type unwrapFunc func([]byte) ([]*Record, *pagination.Meta, error)

var errShape = errors.New("unexpected list envelope")

func unwrapFlat(b []byte) ([]*Record, *pagination.Meta, error) {
	var env wireEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, nil, err
	}
	if !isArray(env.Data) {
		return nil, nil, errShape
	}
	var items []*Record
	if err := json.Unmarshal(env.Data, &items); err != nil {
		return nil, nil, err
	}
	return items, env.Pagination, nil
}

func unwrapNested(b []byte) ([]*Record, *pagination.Meta, error) {
	var outer wireEnvelope
	if err := json.Unmarshal(b, &outer); err != nil {
		return nil, nil, err
	}
	if isArray(outer.Data) || len(outer.Data) == 0 {
		return nil, nil, errShape
	}
	return unwrapFlat(outer.Data)
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

func (r *Remote) List(ctx context.Context, visitID uuid.UUID, q ListQuery) (*Page, error) {
	p := pagination.New(q.Page, q.PerPage)
	v := url.Values{}
	v.Set("visit_id", visitID.String())
	v.Set("page", strconv.Itoa(p.Page))
	v.Set("per_page", strconv.Itoa(p.PerPage))
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	b, err := r.do(ctx, "list", http.MethodGet, r.kind.Path+"?"+v.Encode(), nil, "")
	if err != nil {
		return nil, err
	}

	var (
		items []*Record
		meta  *pagination.Meta
	)
	for _, fn := range r.unwrap {
		if items, meta, err = fn(b); err == nil {
			break
		}
	}
	if err != nil {
		return nil, &examination.TransportError{Op: r.kind.Name + " list", Err: fmt.Errorf("decode: %w", err)}
	}
	if items == nil {
		items = []*Record{}
	}
	if meta == nil {
		m := pagination.NewMeta(p, len(items))
		meta = &m
	}
	return &Page{Items: items, Page: meta.Page, PerPage: meta.PerPage, LastPage: meta.LastPage, Total: meta.Total}, nil
}

func (r *Remote) Create(ctx context.Context, visitID uuid.UUID, payload Payload) (*Record, error) {
	if err := r.kind.Validate(payload); err != nil {
		return nil, err
	}
	body := payload.Clone()
	body["visit_id"] = visitID.String()
	if ref := CreatorFromContext(ctx); ref != "" {
		body["created_by"] = ref
	}
	b, err := r.do(ctx, "create", http.MethodPost, r.kind.Path, body, "")
	if err != nil {
		return nil, err
	}
	return r.decodeRecord("create", b)
}

func (r *Remote) Update(ctx context.Context, visitID, id uuid.UUID, patch Payload) (*Record, error) {
	body := patch.Clone()
	body["visit_id"] = visitID.String()
	b, err := r.do(ctx, "update", http.MethodPatch, r.kind.Path+"/"+id.String(), body, id.String())
	if err != nil {
		return nil, err
	}
	return r.decodeRecord("update", b)
}

func (r *Remote) Delete(ctx context.Context, visitID, id uuid.UUID) error {
	path := r.kind.Path + "/" + id.String() + "?visit_id=" + url.QueryEscape(visitID.String())
	_, err := r.do(ctx, "delete", http.MethodDelete, path, nil, id.String())
	return err
}

// decodeRecord accepts a bare record or one wrapped in {data: {...}}.
func (r *Remote) decodeRecord(op string, b []byte) (*Record, error) {
	var env struct {
		Data json.RawMessage `json:"data"`
		ID   json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(b, &env); err == nil && len(env.ID) == 0 && len(env.Data) > 0 && !isArray(env.Data) {
		b = env.Data
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, &examination.TransportError{Op: r.kind.Name + " " + op, Err: fmt.Errorf("decode: %w", err)}
	}
	return &rec, nil
}

func (r *Remote) do(ctx context.Context, op, method, path string, body Payload, id string) ([]byte, error) {
	op = r.kind.Name + " " + op
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode body: %w", op, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	for k, vs := range r.header {
		req.Header[k] = vs
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &examination.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &examination.TransportError{Op: op, Status: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return b, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, &examination.NotFoundError{Kind: r.kind.Name, ID: id}
	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusBadRequest:
		if fields := errorFields(b); len(fields) > 0 {
			return nil, &examination.ValidationError{Kind: r.kind.Name, Fields: fields}
		}
	case resp.StatusCode == http.StatusConflict:
		return nil, fmt.Errorf("%s: %w", op, lock.ErrBusy)
	}
	return nil, &examination.TransportError{Op: op, Status: resp.StatusCode, Err: errors.New(upstreamMessage(b, resp.StatusCode))}
}

// errorFields digs the field list out of {fields: [...]} or
// {message: {fields: [...]}}.
func errorFields(b []byte) []string {
	var body struct {
		Fields  []string        `json:"fields"`
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(b, &body); err != nil {
		return nil
	}
	if len(body.Fields) > 0 {
		return body.Fields
	}
	var inner struct {
		Fields []string `json:"fields"`
	}
	if json.Unmarshal(body.Message, &inner) == nil {
		return inner.Fields
	}
	return nil
}

func upstreamMessage(b []byte, status int) string {
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(b, &body) == nil && body.Message != "" {
		return body.Message
	}
	return http.StatusText(status)
}
