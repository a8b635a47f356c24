package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/draftledger/draftledger/backend/go-services/internal/document"
)

type memoryRecord struct {
	doc      document.Document
	versions []*document.Version
	numbers  map[int]struct{}
}

// MemoryRepo is an in-memory repository used for local runs and unit tests.
// Values are copied on the way in and out so callers never share state with
// the store.
type MemoryRepo struct {
	mu    sync.RWMutex
	store map[string]*memoryRecord
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[string]*memoryRecord)}
}

func (m *MemoryRepo) CreateDocument(_ context.Context, doc *document.Document, initial *document.Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[doc.ID]; ok {
		return document.ErrAlreadyInitialized
	}
	d := *doc
	d.Versions = nil
	v := *initial
	m.store[doc.ID] = &memoryRecord{
		doc:      d,
		versions: []*document.Version{&v},
		numbers:  map[int]struct{}{v.VersionNumber: {}},
	}
	return nil
}

// live returns the record for id unless it is missing or deleted. Callers hold mu.
func (m *MemoryRepo) live(id string) (*memoryRecord, bool) {
	rec, ok := m.store[id]
	if !ok || rec.doc.DeletedAt != nil {
		return nil, false
	}
	return rec, true
}

func (m *MemoryRepo) GetDocument(_ context.Context, id string) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.live(id)
	if !ok {
		return nil, document.ErrNotFound
	}
	d := rec.doc
	return &d, nil
}

func (m *MemoryRepo) ListDocuments(_ context.Context, ownerID string, docType document.Type) ([]*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*document.Document, 0)
	for id := range m.store {
		rec, ok := m.live(id)
		if !ok || rec.doc.OwnerID != ownerID {
			continue
		}
		if docType != "" && rec.doc.Type != docType {
			continue
		}
		d := rec.doc
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (m *MemoryRepo) RenameDocument(_ context.Context, id, title string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.live(id)
	if !ok {
		return document.ErrNotFound
	}
	rec.doc.Title = title
	rec.doc.UpdatedAt = at
	return nil
}

func (m *MemoryRepo) DeleteDocument(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.live(id)
	if !ok {
		return document.ErrNotFound
	}
	rec.doc.DeletedAt = &at
	rec.doc.UpdatedAt = at
	return nil
}

func (m *MemoryRepo) LatestVersionNumber(_ context.Context, documentID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.live(documentID)
	if !ok {
		return 0, document.ErrNotFound
	}
	max := 0
	for n := range rec.numbers {
		if n > max {
			max = n
		}
	}
	return max, nil
}

func (m *MemoryRepo) AppendVersion(_ context.Context, v *document.Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.live(v.DocumentID)
	if !ok {
		return document.ErrNotFound
	}
	if _, taken := rec.numbers[v.VersionNumber]; taken {
		return document.ErrVersionConflict
	}
	cp := *v
	rec.versions = append(rec.versions, &cp)
	rec.numbers[cp.VersionNumber] = struct{}{}
	rec.doc.CurrentVersionID = cp.ID
	rec.doc.CurrentVersionNumber = cp.VersionNumber
	rec.doc.UpdatedAt = cp.CreatedAt
	return nil
}

func (m *MemoryRepo) GetVersion(_ context.Context, documentID string, number int) (*document.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.live(documentID)
	if !ok {
		return nil, document.ErrNotFound
	}
	for _, v := range rec.versions {
		if v.VersionNumber == number {
			cp := *v
			return &cp, nil
		}
	}
	return nil, document.ErrVersionNotFound
}

func (m *MemoryRepo) ListVersions(_ context.Context, documentID string) ([]*document.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.live(documentID)
	if !ok {
		return nil, document.ErrNotFound
	}
	out := make([]*document.Version, 0, len(rec.versions))
	for _, v := range rec.versions {
		cp := *v
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber < out[j].VersionNumber })
	return out, nil
}

func (m *MemoryRepo) Ping(context.Context) error { return nil }
