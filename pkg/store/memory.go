package store

import (
	"context"
	"math"
	"sync"

	"github.com/xhad/recall/internal/models"
	"github.com/xhad/recall/internal/types"
)

type point struct {
	vector []float32
	doc    models.Document
}

// Memory is an in-process gateway using brute-force similarity. Collections
// live as long as the value.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]models.Collection
	points      map[string]map[string]point
	active      *models.Collection
	mismatch    error
}

func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]models.Collection),
		points:      make(map[string]map[string]point),
	}
}

func (m *Memory) EnsureCollection(ctx context.Context, c models.Collection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.collections[c.Name]
	if !ok {
		m.collections[c.Name] = c
		m.points[c.Name] = make(map[string]point)
		existing = c
	}
	m.active = &existing

	if existing.Dimension != c.Dimension {
		m.mismatch = mismatchError(c, existing.Dimension)
		return m.mismatch
	}
	m.mismatch = nil
	return nil
}

func (m *Memory) UpsertBatch(ctx context.Context, docs []models.Document, vectors [][]float32) (types.UpsertReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return types.UpsertReport{}, errNoCollection
	}
	if m.mismatch != nil {
		return types.UpsertReport{}, m.mismatch
	}

	accepted, failed, err := validate(*m.active, docs, vectors)
	report := types.UpsertReport{Failed: failed}
	if err != nil {
		return report, err
	}

	points := m.points[m.active.Name]
	for _, i := range accepted {
		v := make([]float32, len(vectors[i]))
		copy(v, vectors[i])
		points[docs[i].ID] = point{vector: v, doc: docs[i]}
		report.Stored = append(report.Stored, docs[i].ID)
	}
	return report, nil
}

func (m *Memory) Query(ctx context.Context, vector []float32, k int) ([]models.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.active == nil {
		return nil, errNoCollection
	}
	if len(vector) != m.active.Dimension {
		return nil, mismatchError(models.Collection{Name: m.active.Name, Dimension: len(vector)}, m.active.Dimension)
	}

	results := make([]models.SearchResult, 0, len(m.points[m.active.Name]))
	for id, p := range m.points[m.active.Name] {
		results = append(results, models.SearchResult{
			ID:       id,
			Score:    score(m.active.Metric, vector, p.vector),
			Document: p.doc,
		})
	}
	return rank(results, topK(k)), nil
}

// Len reports how many points the active collection holds.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return 0
	}
	return len(m.points[m.active.Name])
}

func (m *Memory) Close() error { return nil }

// score returns a similarity where larger is closer. Euclid is negated
// distance.
func score(metric models.Metric, a, b []float32) float64 {
	var dot, na, nb, dist float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
		dist += (x - y) * (x - y)
	}
	switch metric {
	case models.MetricDot:
		return dot
	case models.MetricEuclid:
		return -math.Sqrt(dist)
	default:
		if na == 0 || nb == 0 {
			return 0
		}
		return dot / (math.Sqrt(na) * math.Sqrt(nb))
	}
}
