package store

import (
	"errors"

	"carmarket/pkg/domain"
)

// ErrInvalidListing is returned by implementations when a write would
// violate a row invariant. Semantic validation lives in the catalog
// engine; this is the store's defensive re-check.
var ErrInvalidListing = errors.New("invalid listing data")

// SortField names a column a query may be ordered by.
type SortField string

const (
	SortPrice     SortField = "price"
	SortYear      SortField = "year"
	SortMileage   SortField = "mileage"
	SortCreatedAt SortField = "created_at"
)

// SortDir is the ordering direction for a query.
type SortDir string

const (
	SortAsc  SortDir = "asc"
	SortDesc SortDir = "desc"
)

// ListingUpdate carries the mutable fields of a partial update.
// Nil fields are left unchanged; the whole update applies atomically.
type ListingUpdate struct {
	Make        *string
	Model       *string
	Year        *int
	Price       *float64
	Mileage     *int
	Title       *string
	Location    *string
	Description *string
	Status      *domain.ListingStatus
}

// ListingQuery describes a filtered, sorted, paginated listing lookup.
// Zero-valued filters are ignored.
type ListingQuery struct {
	Make       string
	Model      string
	Status     domain.ListingStatus
	Text       string // free-text match over title/make/model/location/description
	MinPrice   *float64
	MaxPrice   *float64
	MinYear    *int
	MaxYear    *int
	MinMileage *int
	MaxMileage *int
	SortBy     SortField
	SortDir    SortDir
	Limit      int
	Offset     int
}

// Store defines persistence operations for car listings. The store owns
// identity assignment and timestamps; callers never set them.
type Store interface {
	// CreateListing assigns ID and timestamps, persists the row, and
	// returns the stored listing.
	CreateListing(domain.Listing) (domain.Listing, error)
	// GetListing returns the listing and whether it exists.
	GetListing(id string) (domain.Listing, bool, error)
	// UpdateListing applies the non-nil fields and refreshes UpdatedAt.
	// The bool reports whether the id existed.
	UpdateListing(id string, upd ListingUpdate) (domain.Listing, bool, error)
	// DeleteListing removes the row. The bool reports whether it existed;
	// a second delete of the same id reports false.
	DeleteListing(id string) (bool, error)
	// QueryListings returns one page of matches plus the total match count.
	QueryListings(q ListingQuery) ([]domain.Listing, int64, error)
	// Close releases the underlying storage.
	Close() error
}
