// Package elasticsearch persists composite hotspots and hotspot candidates in
// Elasticsearch indices.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/couchcryptid/disaster-hotspot-etl/internal/domain"
)

// maxPage bounds a single search. It matches the default index.max_result_window.
const maxPage = 10000

// Store implements domain.HotspotStore and domain.CandidateStore.
type Store struct {
	es             *elasticsearch.Client
	hotspotIndex   string
	candidateIndex string
	log            *slog.Logger
}

// New instantiates the Elasticsearch client.
func New(addr, hotspotIndex, candidateIndex string, logger *slog.Logger) (*Store, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{addr}})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{es: es, hotspotIndex: hotspotIndex, candidateIndex: candidateIndex, log: logger}, nil
}

// Ping checks if Elasticsearch is available.
func (s *Store) Ping(ctx context.Context) error {
	res, err := s.es.Ping(s.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}
	return nil
}

// CheckReadiness reports whether Elasticsearch answers a ping.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.Ping(ctx)
}

// FindInBox returns hotspots whose centroid lies in box, oldest first.
func (s *Store) FindInBox(ctx context.Context, box domain.Box) ([]domain.CompositeHotspot, error) {
	var out []domain.CompositeHotspot
	if err := s.searchHotspots(ctx, boxQuery(box), &out); err != nil {
		return nil, fmt.Errorf("find hotspots in box: %w", err)
	}
	return out, nil
}

// Get returns the hotspot with id or domain.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (domain.CompositeHotspot, error) {
	req := esapi.GetRequest{Index: s.hotspotIndex, DocumentID: id}
	res, err := req.Do(ctx, s.es)
	if err != nil {
		return domain.CompositeHotspot{}, fmt.Errorf("get hotspot: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return domain.CompositeHotspot{}, domain.ErrNotFound
	}
	if res.IsError() {
		return domain.CompositeHotspot{}, fmt.Errorf("get hotspot failed: %s", readBody(res))
	}

	var doc struct {
		Source domain.CompositeHotspot `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return domain.CompositeHotspot{}, fmt.Errorf("decode hotspot: %w", err)
	}
	return doc.Source, nil
}

// Save indexes h under its ID. The refresh makes the write visible to the
// next FindInBox.
func (s *Store) Save(ctx context.Context, h domain.CompositeHotspot) error {
	payload, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshal hotspot: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      s.hotspotIndex,
		DocumentID: h.ID,
		Body:       bytes.NewReader(payload),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, s.es)
	if err != nil {
		return fmt.Errorf("index hotspot: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index hotspot failed: %s", readBody(res))
	}
	return nil
}

// SaveCandidates creates one document per candidate. A candidate whose ID is
// already indexed is left untouched.
func (s *Store) SaveCandidates(ctx context.Context, candidates []domain.Candidate) error {
	for _, c := range candidates {
		payload, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal candidate: %w", err)
		}

		req := esapi.IndexRequest{
			Index:      s.candidateIndex,
			DocumentID: c.ID,
			Body:       bytes.NewReader(payload),
			Refresh:    "true",
		}
		if c.ID != "" {
			req.OpType = "create"
		}
		res, err := req.Do(ctx, s.es)
		if err != nil {
			return fmt.Errorf("index candidate: %w", err)
		}
		if res.StatusCode == http.StatusConflict {
			s.log.Debug("candidate already stored", "id", c.ID)
			res.Body.Close()
			continue
		}
		if res.IsError() {
			msg := readBody(res)
			res.Body.Close()
			return fmt.Errorf("index candidate failed: %s", msg)
		}
		res.Body.Close()
	}
	return nil
}

// ListPending returns up to limit pending candidates by arrival time.
func (s *Store) ListPending(ctx context.Context, limit int) ([]domain.Candidate, error) {
	var out []domain.Candidate
	if err := s.searchWithIDs(ctx, s.candidateIndex, pendingQuery(limit), func(id string, raw json.RawMessage) error {
		var c domain.Candidate
		if err := json.Unmarshal(raw, &c); err != nil {
			return err
		}
		if c.ID == "" {
			c.ID = id
		}
		out = append(out, c)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("list pending candidates: %w", err)
	}
	return out, nil
}

// ApplyTransitions updates the status field of each listed candidate.
func (s *Store) ApplyTransitions(ctx context.Context, transitions []domain.StatusTransition) error {
	var errs []error
	for _, t := range transitions {
		payload, err := json.Marshal(map[string]any{"doc": map[string]any{"status": t.Status}})
		if err != nil {
			return fmt.Errorf("marshal transition: %w", err)
		}
		req := esapi.UpdateRequest{
			Index:      s.candidateIndex,
			DocumentID: t.CandidateID,
			Body:       bytes.NewReader(payload),
			Refresh:    "true",
		}
		res, err := req.Do(ctx, s.es)
		if err != nil {
			errs = append(errs, fmt.Errorf("update candidate %s: %w", t.CandidateID, err))
			continue
		}
		if res.IsError() && res.StatusCode != http.StatusNotFound {
			errs = append(errs, fmt.Errorf("update candidate %s failed: %s", t.CandidateID, readBody(res)))
		}
		res.Body.Close()
	}
	return errors.Join(errs...)
}

func (s *Store) searchHotspots(ctx context.Context, body map[string]any, out *[]domain.CompositeHotspot) error {
	return s.searchWithIDs(ctx, s.hotspotIndex, body, func(_ string, raw json.RawMessage) error {
		var h domain.CompositeHotspot
		if err := json.Unmarshal(raw, &h); err != nil {
			return err
		}
		*out = append(*out, h)
		return nil
	})
}

func (s *Store) searchWithIDs(ctx context.Context, index string, body map[string]any, each func(id string, source json.RawMessage) error) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal search body: %w", err)
	}

	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(index),
		s.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		// The index is created lazily on first write.
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("search failed: %s", readBody(res))
	}
	return decodeHits(res.Body, each)
}

// decodeHits walks the hits of a search response.
func decodeHits(r io.Reader, each func(id string, source json.RawMessage) error) error {
	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string          `json:"_id"`
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(r).Decode(&parsed); err != nil {
		return fmt.Errorf("decode search response: %w", err)
	}
	for _, hit := range parsed.Hits.Hits {
		if err := each(hit.ID, hit.Source); err != nil {
			return fmt.Errorf("decode hit %s: %w", hit.ID, err)
		}
	}
	return nil
}

// boxQuery filters hotspots by centroid range, oldest first.
func boxQuery(box domain.Box) map[string]any {
	return map[string]any{
		"size": maxPage,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []map[string]any{
					{"range": map[string]any{"latitude": map[string]any{"gte": box.MinLat, "lte": box.MaxLat}}},
					{"range": map[string]any{"longitude": map[string]any{"gte": box.MinLon, "lte": box.MaxLon}}},
				},
			},
		},
		"sort": []map[string]any{
			{"created_at": map[string]any{"order": "asc"}},
		},
	}
}

// pendingQuery selects pending candidates in arrival order.
func pendingQuery(limit int) map[string]any {
	size := limit
	if size <= 0 || size > maxPage {
		size = maxPage
	}
	return map[string]any{
		"size": size,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []map[string]any{
					{"term": map[string]any{"status": domain.StatusPending}},
				},
			},
		},
		"sort": []map[string]any{
			{"received_at": map[string]any{"order": "asc"}},
		},
	}
}

func readBody(res *esapi.Response) string {
	data, _ := io.ReadAll(res.Body)
	return strings.TrimSpace(string(data))
}
