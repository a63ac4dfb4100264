package models

import "time"

type ListingStatus string

const (
	ListingActive  ListingStatus = "active"
	ListingPending ListingStatus = "pending"
	ListingSold    ListingStatus = "sold"
)

// Listing is the subset of a marketplace listing the payment flow reads.
type Listing struct {
	ID         string        `json:"id"`
	SellerID   string        `json:"sellerId"`
	AnimalType string        `json:"animalType"`
	Breed      string        `json:"breed"`
	Price      int64         `json:"price"`
	Status     ListingStatus `json:"status"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}
