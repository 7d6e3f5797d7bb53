package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"carmarket/pkg/domain"
)

// GormStore implements Store using GORM on a single SQLite file.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens (or creates) the database file and runs
// auto-migrations. The connection pool is capped at one connection so
// concurrent writers within the process are serialized; busy_timeout
// covers lockers from other worker processes sharing the file.
func NewGormStore(path string) (*GormStore, error) {
	if path == "" {
		return nil, errors.New("database path required")
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access db pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&ListingModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// CreateListing assigns id and timestamps, then persists the row.
func (s *GormStore) CreateListing(l domain.Listing) (domain.Listing, error) {
	if err := checkRowInvariants(l); err != nil {
		return domain.Listing{}, err
	}
	now := time.Now().UTC()
	l.ID = uuid.NewString()
	l.CreatedAt = now
	l.UpdatedAt = now
	if l.Status == "" {
		l.Status = domain.StatusActive
	}
	model := listingToModel(l)
	if err := s.db.Create(&model).Error; err != nil {
		return domain.Listing{}, fmt.Errorf("insert listing: %w", err)
	}
	return listingFromModel(model), nil
}

// GetListing returns a listing by id.
func (s *GormStore) GetListing(id string) (domain.Listing, bool, error) {
	var model ListingModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Listing{}, false, nil
		}
		return domain.Listing{}, false, fmt.Errorf("fetch listing: %w", err)
	}
	return listingFromModel(model), true, nil
}

// UpdateListing applies the non-nil fields inside one transaction so the
// mutation is all-or-nothing, and refreshes UpdatedAt.
func (s *GormStore) UpdateListing(id string, upd ListingUpdate) (domain.Listing, bool, error) {
	var model ListingModel
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			return err
		}
		applyUpdate(&model, upd)
		model.UpdatedAt = time.Now().UTC()
		if err := checkRowInvariants(listingFromModel(model)); err != nil {
			return err
		}
		return tx.Save(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Listing{}, false, nil
		}
		if errors.Is(err, ErrInvalidListing) {
			return domain.Listing{}, true, err
		}
		return domain.Listing{}, false, fmt.Errorf("update listing: %w", err)
	}
	return listingFromModel(model), true, nil
}

// DeleteListing removes the row; the bool reports whether it existed.
func (s *GormStore) DeleteListing(id string) (bool, error) {
	res := s.db.Delete(&ListingModel{}, "id = ?", id)
	if res.Error != nil {
		return false, fmt.Errorf("delete listing: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// QueryListings returns one page of matches plus the total match count.
func (s *GormStore) QueryListings(q ListingQuery) ([]domain.Listing, int64, error) {
	tx := s.applyFilters(s.db.Model(&ListingModel{}), q)

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count listings: %w", err)
	}

	tx = tx.Order(orderClause(q.SortBy, q.SortDir))
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}
	var models []ListingModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("query listings: %w", err)
	}
	res := make([]domain.Listing, 0, len(models))
	for _, m := range models {
		res = append(res, listingFromModel(m))
	}
	return res, total, nil
}

// Close releases the underlying connection.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) applyFilters(tx *gorm.DB, q ListingQuery) *gorm.DB {
	if q.Make != "" {
		tx = tx.Where("make = ?", q.Make)
	}
	if q.Model != "" {
		tx = tx.Where("model = ?", q.Model)
	}
	if q.Status != "" {
		tx = tx.Where("status = ?", string(q.Status))
	}
	if q.Text != "" {
		like := "%" + q.Text + "%"
		tx = tx.Where(
			"title LIKE ? OR make LIKE ? OR model LIKE ? OR location LIKE ? OR description LIKE ?",
			like, like, like, like, like,
		)
	}
	if q.MinPrice != nil {
		tx = tx.Where("price >= ?", *q.MinPrice)
	}
	if q.MaxPrice != nil {
		tx = tx.Where("price <= ?", *q.MaxPrice)
	}
	if q.MinYear != nil {
		tx = tx.Where("year >= ?", *q.MinYear)
	}
	if q.MaxYear != nil {
		tx = tx.Where("year <= ?", *q.MaxYear)
	}
	if q.MinMileage != nil {
		tx = tx.Where("mileage >= ?", *q.MinMileage)
	}
	if q.MaxMileage != nil {
		tx = tx.Where("mileage <= ?", *q.MaxMileage)
	}
	return tx
}

func orderClause(by SortField, dir SortDir) string {
	column := "created_at"
	switch by {
	case SortPrice:
		column = "price"
	case SortYear:
		column = "year"
	case SortMileage:
		column = "mileage"
	case SortCreatedAt:
		column = "created_at"
	}
	direction := "DESC"
	if dir == SortAsc {
		direction = "ASC"
	}
	// Secondary id ordering keeps pagination stable across equal keys.
	return fmt.Sprintf("%s %s, id ASC", column, direction)
}

func applyUpdate(m *ListingModel, upd ListingUpdate) {
	if upd.Make != nil {
		m.Make = *upd.Make
	}
	if upd.Model != nil {
		m.Model = *upd.Model
	}
	if upd.Year != nil {
		m.Year = *upd.Year
	}
	if upd.Price != nil {
		m.Price = *upd.Price
	}
	if upd.Mileage != nil {
		v := *upd.Mileage
		m.Mileage = &v
	}
	if upd.Title != nil {
		m.Title = *upd.Title
	}
	if upd.Location != nil {
		m.Location = *upd.Location
	}
	if upd.Description != nil {
		m.Description = *upd.Description
	}
	if upd.Status != nil {
		m.Status = string(*upd.Status)
	}
}

func checkRowInvariants(l domain.Listing) error {
	if l.Make == "" || l.Model == "" {
		return fmt.Errorf("%w: make and model required", ErrInvalidListing)
	}
	if l.Price < 0 {
		return fmt.Errorf("%w: negative price", ErrInvalidListing)
	}
	if l.Mileage != nil && *l.Mileage < 0 {
		return fmt.Errorf("%w: negative mileage", ErrInvalidListing)
	}
	return nil
}

func listingToModel(l domain.Listing) ListingModel {
	return ListingModel{
		ID:          l.ID,
		Make:        l.Make,
		Model:       l.Model,
		Year:        l.Year,
		Price:       l.Price,
		Mileage:     copyIntPtr(l.Mileage),
		Title:       l.Title,
		Location:    l.Location,
		Description: l.Description,
		Status:      string(l.Status),
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
	}
}

func listingFromModel(m ListingModel) domain.Listing {
	return domain.Listing{
		ID:          m.ID,
		Make:        m.Make,
		Model:       m.Model,
		Year:        m.Year,
		Price:       m.Price,
		Mileage:     copyIntPtr(m.Mileage),
		Title:       m.Title,
		Location:    m.Location,
		Description: m.Description,
		Status:      domain.ListingStatus(m.Status),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func copyIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
