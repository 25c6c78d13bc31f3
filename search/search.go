// Package search maintains a full-text index over item records so
// operators can find items without knowing which state folder they
// reached. The index is a local convenience cache: the vault stays
// authoritative and the index is rebuilt from it at any time.
package search

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/vinayprograms/tandem/item"
	"github.com/vinayprograms/tandem/vault"
)

// Document is the indexed projection of one item record.
type Document struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Domain    string    `json:"domain"`
	State     string    `json:"state"`
	Origin    string    `json:"origin"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Hit is one search result.
type Hit struct {
	ID    string
	State string
	Kind  string
	Score float64
}

// Index wraps a bleve index over the vault's item records.
type Index struct {
	mu    sync.RWMutex
	index bleve.Index
}

// Open opens or creates the index at path.
func Open(path string) (*Index, error) {
	var idx bleve.Index
	var err error
	if _, serr := os.Stat(path); os.IsNotExist(serr) {
		idx, err = bleve.New(path, buildIndexMapping())
	} else {
		idx, err = bleve.Open(path)
	}
	if err != nil {
		return nil, fmt.Errorf("opening search index: %w", err)
	}
	return &Index{index: idx}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	doc := bleve.NewDocumentMapping()

	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	keyword := bleve.NewKeywordFieldMapping()
	date := bleve.NewDateTimeFieldMapping()

	doc.AddFieldMappingsAt("subject", text)
	doc.AddFieldMappingsAt("body", text)
	doc.AddFieldMappingsAt("kind", keyword)
	doc.AddFieldMappingsAt("domain", keyword)
	doc.AddFieldMappingsAt("state", keyword)
	doc.AddFieldMappingsAt("origin", keyword)
	doc.AddFieldMappingsAt("created_at", date)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = standard.Name
	return m
}

// Add indexes one item at its current state.
func (x *Index) Add(it *item.Item) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.index.Index(it.ID, toDocument(it))
}

// Reindex rebuilds the index from a vault scan: every current item is
// (re)indexed and documents for items no longer in the vault are
// removed. Returns the number of items indexed.
func (x *Index) Reindex(v *vault.Vault) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	entries, err := v.Scan()
	if err != nil {
		return 0, err
	}

	batch := x.index.NewBatch()
	current := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		it, err := v.Load(e.ID, e.Location)
		if err != nil {
			// The item moved mid-scan; the next rebuild catches it.
			continue
		}
		current[e.ID] = struct{}{}
		if err := batch.Index(e.ID, toDocument(it)); err != nil {
			return 0, err
		}
	}

	stale, err := x.allDocIDs()
	if err != nil {
		return 0, err
	}
	for _, id := range stale {
		if _, ok := current[id]; !ok {
			batch.Delete(id)
		}
	}

	if err := x.index.Batch(batch); err != nil {
		return 0, err
	}
	return len(current), nil
}

// Query runs a query-string search ("invoice", "state:claimed",
// "domain:business AND payment") and returns the best hits.
func (x *Index) Query(q string, limit int) ([]Hit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(q), limit, 0, false)
	req.Fields = []string{"state", "kind"}
	res, err := x.index.Search(req)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{ID: h.ID, Score: h.Score}
		if s, ok := h.Fields["state"].(string); ok {
			hit.State = s
		}
		if k, ok := h.Fields["kind"].(string); ok {
			hit.Kind = k
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Count returns the number of indexed documents.
func (x *Index) Count() (uint64, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.index.DocCount()
}

// Close releases the index.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.index.Close()
}

func (x *Index) allDocIDs() ([]string, error) {
	count, err := x.index.DocCount()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(count), 0, false)
	res, err := x.index.Search(req)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		ids = append(ids, h.ID)
	}
	return ids, nil
}

func toDocument(it *item.Item) Document {
	return Document{
		ID:        it.ID,
		Kind:      string(it.Kind),
		Domain:    string(it.Domain),
		State:     string(it.State),
		Origin:    it.Origin,
		Subject:   it.Field("subject"),
		Body:      it.Body,
		CreatedAt: it.CreatedAt,
	}
}
