package model

import (
	"time"

	"github.com/google/uuid"
)

// Product is a catalog entry. When HasSerial is set the stock is tracked
// per unit (see ProductUnit) rather than as an aggregate count.
type Product struct {
	ID           uuid.UUID `json:"id"`
	Brand        string    `json:"brand"`
	Model        string    `json:"model"`
	Category     string    `json:"category"`
	Barcode      *string   `json:"barcode,omitempty"`
	DefaultPrice float64   `json:"default_price"`
	MinPrice     float64   `json:"min_price"`
	MaxPrice     float64   `json:"max_price"`
	Stock        int       `json:"stock"`
	MinStock     int       `json:"min_stock"`
	HasSerial    bool      `json:"has_serial"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
