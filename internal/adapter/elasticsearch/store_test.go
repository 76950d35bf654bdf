package elasticsearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/disaster-hotspot-etl/internal/domain"
)

func TestBoxQuery(t *testing.T) {
	q := boxQuery(domain.Box{MinLat: 1, MaxLat: 2, MinLon: 3, MaxLon: 4})

	data, err := json.Marshal(q)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"size": 10000,
		"query": {"bool": {"filter": [
			{"range": {"latitude": {"gte": 1, "lte": 2}}},
			{"range": {"longitude": {"gte": 3, "lte": 4}}}
		]}},
		"sort": [{"created_at": {"order": "asc"}}]
	}`, string(data))
}

func TestPendingQuery(t *testing.T) {
	tests := []struct {
		limit, wantSize int
	}{
		{25, 25},
		{0, maxPage},
		{-1, maxPage},
		{maxPage * 2, maxPage},
	}
	for _, tt := range tests {
		q := pendingQuery(tt.limit)
		assert.Equal(t, tt.wantSize, q["size"])
	}

	data, err := json.Marshal(pendingQuery(5))
	require.NoError(t, err)
	assert.Contains(t, string(data), `{"term":{"status":"pending"}}`)
	assert.Contains(t, string(data), `{"received_at":{"order":"asc"}}`)
}

func TestDecodeHits(t *testing.T) {
	body := `{"hits": {"hits": [
		{"_id": "a", "_source": {"id": "a", "latitude": 1}},
		{"_id": "b", "_source": {"id": "b", "latitude": 2}}
	]}}`

	var ids []string
	err := decodeHits(strings.NewReader(body), func(id string, raw json.RawMessage) error {
		ids = append(ids, id)
		var h domain.CompositeHotspot
		return json.Unmarshal(raw, &h)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

// fakeES answers like an Elasticsearch node. handle returns the status and body
// for each request.
func fakeES(t *testing.T, handle func(r *http.Request) (int, string)) *Store {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status, body := handle(r)
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	s, err := New(srv.URL, "hotspots", "candidates", nil)
	require.NoError(t, err)
	return s
}

func TestStore_Get(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := fakeES(t, func(r *http.Request) (int, string) {
		if strings.HasSuffix(r.URL.Path, "/missing") {
			return http.StatusNotFound, `{"found": false}`
		}
		return http.StatusOK, `{"found": true, "_source": {
			"id": "hs-1", "latitude": 14.6, "longitude": 121.0,
			"risk_level": "high", "contributing_reports": 3,
			"created_at": "2026-03-01T12:00:00Z"
		}}`
	})

	h, err := s.Get(context.Background(), "hs-1")
	require.NoError(t, err)
	assert.Equal(t, "hs-1", h.ID)
	assert.Equal(t, domain.RiskHigh, h.RiskLevel)
	assert.Equal(t, 3, h.ContributingReports)
	assert.Equal(t, created, h.CreatedAt)

	_, err = s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_FindInBox_MissingIndex(t *testing.T) {
	s := fakeES(t, func(*http.Request) (int, string) {
		return http.StatusNotFound, `{"error": {"type": "index_not_found_exception"}}`
	})

	found, err := s.FindInBox(context.Background(), domain.BoxAround(domain.Coordinate{}, 0.05))
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestStore_SaveCandidates_SkipsExisting(t *testing.T) {
	var opTypes []string
	s := fakeES(t, func(r *http.Request) (int, string) {
		opTypes = append(opTypes, r.URL.Query().Get("op_type"))
		if strings.HasSuffix(r.URL.Path, "/dup") {
			return http.StatusConflict, `{"error": {"type": "version_conflict_engine_exception"}}`
		}
		return http.StatusCreated, `{"result": "created"}`
	})

	err := s.SaveCandidates(context.Background(), []domain.Candidate{
		{ID: "dup", Kind: domain.PointHuman, Human: &domain.HumanSignal{}},
		{ID: "new", Kind: domain.PointHuman, Human: &domain.HumanSignal{}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"create", "create"}, opTypes)
}

func TestStore_ListPending(t *testing.T) {
	s := fakeES(t, func(r *http.Request) (int, string) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/candidates/_search"))
		return http.StatusOK, `{"hits": {"hits": [
			{"_id": "c1", "_source": {"id": "c1", "kind": "disaster", "location": "Lima", "status": "pending", "event_type": "flood"}},
			{"_id": "c2", "_source": {"kind": "human", "location": "Quito", "status": "pending", "panic_level": "high"}}
		]}}`
	})

	pending, err := s.ListPending(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "c1", pending[0].ID)
	assert.Equal(t, string(domain.SeverityHigh), pending[0].Disaster.Severity)
	assert.Equal(t, "c2", pending[1].ID, "document ID fills a missing candidate ID")
	assert.Equal(t, "high", pending[1].Human.PanicLevel)
}

func TestStore_ApplyTransitions_ReportsFailures(t *testing.T) {
	s := fakeES(t, func(r *http.Request) (int, string) {
		if strings.Contains(r.URL.Path, "/bad") {
			return http.StatusInternalServerError, `{"error": "boom"}`
		}
		return http.StatusOK, `{"result": "updated"}`
	})

	err := s.ApplyTransitions(context.Background(), []domain.StatusTransition{
		{CandidateID: "ok", Status: domain.StatusAggregated},
		{CandidateID: "bad", Status: domain.StatusAggregated},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.NotContains(t, err.Error(), "update candidate ok")
}
