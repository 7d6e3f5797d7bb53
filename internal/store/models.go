package store

import "time"

// ListingModel is the GORM row shape for a listing.
type ListingModel struct {
	ID          string  `gorm:"primaryKey"`
	Make        string  `gorm:"not null;index"`
	Model       string  `gorm:"not null;index"`
	Year        int     `gorm:"not null;index"`
	Price       float64 `gorm:"not null;index"`
	Mileage     *int
	Title       string
	Location    string
	Description string
	Status      string    `gorm:"not null;index"`
	CreatedAt   time.Time `gorm:"not null;index"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName keeps the table name stable across model renames.
func (ListingModel) TableName() string { return "listings" }
