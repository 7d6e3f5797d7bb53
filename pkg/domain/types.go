package domain

import "time"

type ListingStatus string

const (
	StatusActive ListingStatus = "active"
	StatusSold   ListingStatus = "sold"
)

// Listing is one vehicle-for-sale record in the catalog.
type Listing struct {
	ID          string        `json:"id"`
	Make        string        `json:"make"`
	Model       string        `json:"model"`
	Year        int           `json:"year"`
	Price       float64       `json:"price"`
	Mileage     *int          `json:"mileage,omitempty"` // nil means unknown
	Title       string        `json:"title,omitempty"`
	Location    string        `json:"location,omitempty"`
	Description string        `json:"description,omitempty"`
	Status      ListingStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}
