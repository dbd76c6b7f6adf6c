package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/ehr/eyeexam/internal/domain/examination"
	"github.com/ehr/eyeexam/internal/domain/subrecord"
)

// ConsolidatedPath is the examination-data endpoint, relative to the API root.
const ConsolidatedPath = "/patients/examination-data"

// Consolidated reads a whole snapshot from one backend call.
type Consolidated struct {
	baseURL string
	client  *http.Client
	header  http.Header
}

func NewConsolidated(baseURL string, client *http.Client, header http.Header) *Consolidated {
	if client == nil {
		client = http.DefaultClient
	}
	if header == nil {
		header = http.Header{}
	}
	return &Consolidated{baseURL: strings.TrimRight(baseURL, "/"), client: client, header: header}
}

func (c *Consolidated) Fetch(ctx context.Context, visitID uuid.UUID) (*examination.Snapshot, error) {
	const op = "examination-data fetch"
	target := c.baseURL + ConsolidatedPath + "?" + url.Values{"consultation_id": {visitID.String()}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	for k, vs := range c.header {
		req.Header[k] = vs
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &examination.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &examination.TransportError{Op: op, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &examination.TransportError{Op: op, Status: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	snap, err := decodeConsolidated(b, visitID)
	if err != nil {
		return nil, &examination.TransportError{Op: op, Status: resp.StatusCode, Err: err}
	}
	return snap, nil
}

// decodeConsolidated accepts the snapshot shape ({values, missing_kinds}) or a
// bare map of stored payload keys, optionally wrapped in {data: ...}. The bare
// map goes through every kind's flat view, so nested eye pairs and composites
// land on their snapshot keys.
func decodeConsolidated(b []byte, visitID uuid.UUID) (*examination.Snapshot, error) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(b, &body); err != nil {
		return nil, fmt.Errorf("decode examination data: %w", err)
	}
	if inner, ok := body["data"]; ok && bytes.HasPrefix(bytes.TrimSpace(inner), []byte("{")) {
		b = inner
		body = nil
		if err := json.Unmarshal(b, &body); err != nil {
			return nil, fmt.Errorf("decode examination data: %w", err)
		}
	}

	if _, ok := body["values"]; ok {
		var snap examination.Snapshot
		if err := json.Unmarshal(b, &snap); err != nil {
			return nil, err
		}
		if snap.VisitID == uuid.Nil {
			snap.VisitID = visitID
		}
		return &snap, nil
	}

	var flat map[string]any
	if err := json.Unmarshal(b, &flat); err != nil {
		return nil, fmt.Errorf("decode examination data: %w", err)
	}
	snap := examination.NewSnapshot(visitID)
	snap.Merge(flat)
	for _, k := range subrecord.Kinds() {
		snap.Merge(k.Flat(flat))
	}
	return snap, nil
}
