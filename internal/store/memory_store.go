package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"carmarket/pkg/domain"
)

// MemoryStore keeps listings in-process. It implements the same contract
// as GormStore and backs tests and ephemeral runs.
type MemoryStore struct {
	mu       sync.RWMutex
	listings map[string]domain.Listing
	order    []string // insertion order, used as the created_at tiebreaker
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{listings: make(map[string]domain.Listing)}
}

// CreateListing assigns id and timestamps, then stores the listing.
func (m *MemoryStore) CreateListing(l domain.Listing) (domain.Listing, error) {
	if err := checkRowInvariants(l); err != nil {
		return domain.Listing{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	l.ID = uuid.NewString()
	l.CreatedAt = now
	l.UpdatedAt = now
	if l.Status == "" {
		l.Status = domain.StatusActive
	}
	m.listings[l.ID] = cloneListing(l)
	m.order = append(m.order, l.ID)
	return l, nil
}

// GetListing returns a listing by id.
func (m *MemoryStore) GetListing(id string) (domain.Listing, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.listings[id]
	if !ok {
		return domain.Listing{}, false, nil
	}
	return cloneListing(l), true, nil
}

// UpdateListing applies the non-nil fields under the write lock so the
// mutation is all-or-nothing.
func (m *MemoryStore) UpdateListing(id string, upd ListingUpdate) (domain.Listing, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return domain.Listing{}, false, nil
	}
	model := listingToModel(l)
	applyUpdate(&model, upd)
	model.UpdatedAt = time.Now().UTC()
	updated := listingFromModel(model)
	if err := checkRowInvariants(updated); err != nil {
		return domain.Listing{}, true, err
	}
	m.listings[id] = cloneListing(updated)
	return updated, true, nil
}

// DeleteListing removes the listing; the bool reports whether it existed.
func (m *MemoryStore) DeleteListing(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.listings[id]; !ok {
		return false, nil
	}
	delete(m.listings, id)
	filtered := m.order[:0]
	for _, item := range m.order {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	m.order = filtered
	return true, nil
}

// QueryListings filters, sorts, and paginates in memory.
func (m *MemoryStore) QueryListings(q ListingQuery) ([]domain.Listing, int64, error) {
	m.mu.RLock()
	matched := make([]domain.Listing, 0, len(m.order))
	for _, id := range m.order {
		l, ok := m.listings[id]
		if ok && matchesQuery(l, q) {
			matched = append(matched, cloneListing(l))
		}
	}
	m.mu.RUnlock()

	sortListings(matched, q.SortBy, q.SortDir)
	total := int64(len(matched))

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return []domain.Listing{}, total, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}
	return matched, total, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }

func matchesQuery(l domain.Listing, q ListingQuery) bool {
	if q.Make != "" && l.Make != q.Make {
		return false
	}
	if q.Model != "" && l.Model != q.Model {
		return false
	}
	if q.Status != "" && l.Status != q.Status {
		return false
	}
	if q.Text != "" && !matchesText(l, q.Text) {
		return false
	}
	if q.MinPrice != nil && l.Price < *q.MinPrice {
		return false
	}
	if q.MaxPrice != nil && l.Price > *q.MaxPrice {
		return false
	}
	if q.MinYear != nil && l.Year < *q.MinYear {
		return false
	}
	if q.MaxYear != nil && l.Year > *q.MaxYear {
		return false
	}
	if q.MinMileage != nil && (l.Mileage == nil || *l.Mileage < *q.MinMileage) {
		return false
	}
	if q.MaxMileage != nil && (l.Mileage == nil || *l.Mileage > *q.MaxMileage) {
		return false
	}
	return true
}

func matchesText(l domain.Listing, text string) bool {
	needle := strings.ToLower(text)
	for _, field := range []string{l.Title, l.Make, l.Model, l.Location, l.Description} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func sortListings(listings []domain.Listing, by SortField, dir SortDir) {
	less := func(a, b domain.Listing) bool { return a.CreatedAt.Before(b.CreatedAt) }
	switch by {
	case SortPrice:
		less = func(a, b domain.Listing) bool { return a.Price < b.Price }
	case SortYear:
		less = func(a, b domain.Listing) bool { return a.Year < b.Year }
	case SortMileage:
		less = func(a, b domain.Listing) bool { return mileageOrZero(a) < mileageOrZero(b) }
	}
	desc := dir != SortAsc
	sort.SliceStable(listings, func(i, j int) bool {
		if desc {
			return less(listings[j], listings[i])
		}
		return less(listings[i], listings[j])
	})
}

func mileageOrZero(l domain.Listing) int {
	if l.Mileage == nil {
		return 0
	}
	return *l.Mileage
}

func cloneListing(l domain.Listing) domain.Listing {
	l.Mileage = copyIntPtr(l.Mileage)
	return l
}
