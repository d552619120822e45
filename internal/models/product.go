package models

import (
	"time"

	"github.com/google/uuid"
)

type Product struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	PriceCents   int       `json:"price_cents"`
	Stock        int       `json:"stock"`
	Category     string    `json:"category"`
	FoundationID uuid.UUID `json:"foundation_id"`
	DonationBps  int       `json:"donation_bps"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// DonationCents is the portion of one unit's price attributed to the
// product's foundation.
func (p *Product) DonationCents() int {
	if p == nil || p.FoundationID == uuid.Nil || p.DonationBps <= 0 {
		return 0
	}
	return p.PriceCents * p.DonationBps / 10_000
}
