package app

import (
	"fmt"
	"strings"
	"time"

	"carmarket/internal/store"
	"carmarket/pkg/domain"
)

const (
	minYear = 1900

	defaultPageSize = 20
	maxPageSize     = 100
)

// Config holds runtime configuration for the catalog engine.
type Config struct {
	// Store overrides the default SQLite store (used by tests).
	Store           store.Store
	DatabasePath    string
	DefaultPageSize int
	MaxPageSize     int
}

// App is the catalog engine: the sole gatekeeper of listing business
// rules between HTTP handling and persistence.
type App struct {
	store           store.Store
	defaultPageSize int
	maxPageSize     int
}

// New constructs the engine, opening the SQLite store when none is injected.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabasePath == "" {
			return nil, fmt.Errorf("database path required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("init sqlite store: %w", err)
		}
	}
	defSize := cfg.DefaultPageSize
	if defSize <= 0 {
		defSize = defaultPageSize
	}
	maxSize := cfg.MaxPageSize
	if maxSize <= 0 {
		maxSize = maxPageSize
	}
	return &App{
		store:           dataStore,
		defaultPageSize: defSize,
		maxPageSize:     maxSize,
	}, nil
}

// Close flushes and releases the underlying store.
func (a *App) Close() error {
	return a.store.Close()
}

// NewListing is the input for AddListing. Numeric fields are pointers so
// a missing field is distinguishable from a zero value.
type NewListing struct {
	Make        string
	Model       string
	Year        *int
	Price       *float64
	Mileage     *int
	Title       string
	Location    string
	Description string
}

// ListingPatch carries the fields of a partial update; nil means keep.
type ListingPatch struct {
	Make        *string
	Model       *string
	Year        *int
	Price       *float64
	Mileage     *int
	Title       *string
	Location    *string
	Description *string
}

// AddListing validates the input and persists a new active listing.
func (a *App) AddListing(in NewListing) (domain.Listing, error) {
	verr := &ValidationError{}
	in.Make = strings.TrimSpace(in.Make)
	in.Model = strings.TrimSpace(in.Model)
	if in.Make == "" {
		verr.add("make", "required, must be non-empty")
	}
	if in.Model == "" {
		verr.add("model", "required, must be non-empty")
	}
	if in.Year == nil {
		verr.add("year", "required")
	} else {
		validateYear(verr, *in.Year)
	}
	if in.Price == nil {
		verr.add("price", "required")
	} else if *in.Price < 0 {
		verr.add("price", "must be >= 0")
	}
	if in.Mileage != nil && *in.Mileage < 0 {
		verr.add("mileage", "must be >= 0")
	}
	if err := verr.orNil(); err != nil {
		return domain.Listing{}, err
	}

	created, err := a.store.CreateListing(domain.Listing{
		Make:        in.Make,
		Model:       in.Model,
		Year:        *in.Year,
		Price:       *in.Price,
		Mileage:     in.Mileage,
		Title:       strings.TrimSpace(in.Title),
		Location:    strings.TrimSpace(in.Location),
		Description: in.Description,
		Status:      domain.StatusActive,
	})
	if err != nil {
		return domain.Listing{}, fmt.Errorf("create listing: %w", err)
	}
	return created, nil
}

// GetListing returns one listing by id.
func (a *App) GetListing(id string) (domain.Listing, error) {
	listing, ok, err := a.store.GetListing(id)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("fetch listing: %w", err)
	}
	if !ok {
		return domain.Listing{}, ErrListingNotFound
	}
	return listing, nil
}

// UpdateListing validates only the supplied fields, then applies them
// atomically. Unsupplied fields keep their prior values.
func (a *App) UpdateListing(id string, in ListingPatch) (domain.Listing, error) {
	verr := &ValidationError{}
	if in.Make != nil {
		*in.Make = strings.TrimSpace(*in.Make)
		if *in.Make == "" {
			verr.add("make", "must be non-empty")
		}
	}
	if in.Model != nil {
		*in.Model = strings.TrimSpace(*in.Model)
		if *in.Model == "" {
			verr.add("model", "must be non-empty")
		}
	}
	if in.Year != nil {
		validateYear(verr, *in.Year)
	}
	if in.Price != nil && *in.Price < 0 {
		verr.add("price", "must be >= 0")
	}
	if in.Mileage != nil && *in.Mileage < 0 {
		verr.add("mileage", "must be >= 0")
	}
	if isEmptyPatch(in) {
		verr.add("body", "at least one updatable field required")
	}
	if err := verr.orNil(); err != nil {
		return domain.Listing{}, err
	}

	updated, ok, err := a.store.UpdateListing(id, store.ListingUpdate{
		Make:        in.Make,
		Model:       in.Model,
		Year:        in.Year,
		Price:       in.Price,
		Mileage:     in.Mileage,
		Title:       in.Title,
		Location:    in.Location,
		Description: in.Description,
	})
	if err != nil {
		return domain.Listing{}, fmt.Errorf("update listing: %w", err)
	}
	if !ok {
		return domain.Listing{}, ErrListingNotFound
	}
	return updated, nil
}

// RemoveListing deletes one listing; deleting an absent id fails.
func (a *App) RemoveListing(id string) error {
	ok, err := a.store.DeleteListing(id)
	if err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	if !ok {
		return ErrListingNotFound
	}
	return nil
}

// MarkSold transitions an active listing to sold.
func (a *App) MarkSold(id string) (domain.Listing, error) {
	listing, ok, err := a.store.GetListing(id)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("fetch listing: %w", err)
	}
	if !ok {
		return domain.Listing{}, ErrListingNotFound
	}
	if listing.Status == domain.StatusSold {
		return domain.Listing{}, ErrListingAlreadySold
	}
	sold := domain.StatusSold
	updated, ok, err := a.store.UpdateListing(id, store.ListingUpdate{Status: &sold})
	if err != nil {
		return domain.Listing{}, fmt.Errorf("mark sold: %w", err)
	}
	if !ok {
		return domain.Listing{}, ErrListingNotFound
	}
	return updated, nil
}

// SearchCriteria is the recognized set of search options. Zero values
// mean "not set"; anything else the handler receives is rejected before
// this point.
type SearchCriteria struct {
	Make       string
	Model      string
	Status     string
	Text       string
	MinPrice   *float64
	MaxPrice   *float64
	MinYear    *int
	MaxYear    *int
	MinMileage *int
	MaxMileage *int
	SortBy     string
	SortDir    string
	Page       int
	PageSize   int
}

// SearchResult is one page of matches plus pagination metadata.
type SearchResult struct {
	Items    []domain.Listing `json:"items"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"pageSize"`
}

// Search validates the criteria and runs the query.
func (a *App) Search(c SearchCriteria) (SearchResult, error) {
	verr := &ValidationError{}

	sortBy := store.SortCreatedAt
	switch c.SortBy {
	case "", "created_at":
	case "price":
		sortBy = store.SortPrice
	case "year":
		sortBy = store.SortYear
	case "mileage":
		sortBy = store.SortMileage
	default:
		verr.add("sort_by", "must be one of price, year, mileage, created_at")
	}

	sortDir := store.SortDesc
	switch c.SortDir {
	case "", "desc":
	case "asc":
		sortDir = store.SortAsc
	default:
		verr.add("sort_dir", "must be asc or desc")
	}

	status := domain.ListingStatus("")
	switch c.Status {
	case "":
	case string(domain.StatusActive):
		status = domain.StatusActive
	case string(domain.StatusSold):
		status = domain.StatusSold
	default:
		verr.add("status", "must be active or sold")
	}

	if c.Page < 0 {
		verr.add("page", "must be >= 0")
	}
	pageSize := c.PageSize
	if pageSize == 0 {
		pageSize = a.defaultPageSize
	}
	if pageSize < 0 {
		verr.add("page_size", "must be > 0")
	} else if pageSize > a.maxPageSize {
		verr.add("page_size", fmt.Sprintf("must be <= %d", a.maxPageSize))
	}
	if err := verr.orNil(); err != nil {
		return SearchResult{}, err
	}

	items, total, err := a.store.QueryListings(store.ListingQuery{
		Make:       c.Make,
		Model:      c.Model,
		Status:     status,
		Text:       c.Text,
		MinPrice:   c.MinPrice,
		MaxPrice:   c.MaxPrice,
		MinYear:    c.MinYear,
		MaxYear:    c.MaxYear,
		MinMileage: c.MinMileage,
		MaxMileage: c.MaxMileage,
		SortBy:     sortBy,
		SortDir:    sortDir,
		Limit:      pageSize,
		Offset:     c.Page * pageSize,
	})
	if err != nil {
		return SearchResult{}, fmt.Errorf("query listings: %w", err)
	}
	return SearchResult{
		Items:    items,
		Total:    total,
		Page:     c.Page,
		PageSize: pageSize,
	}, nil
}

func validateYear(verr *ValidationError, year int) {
	max := time.Now().Year() + 1
	if year < minYear || year > max {
		verr.add("year", fmt.Sprintf("must be between %d and %d", minYear, max))
	}
}

func isEmptyPatch(in ListingPatch) bool {
	return in.Make == nil && in.Model == nil && in.Year == nil &&
		in.Price == nil && in.Mileage == nil && in.Title == nil &&
		in.Location == nil && in.Description == nil
}
