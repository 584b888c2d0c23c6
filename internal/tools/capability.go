// ABOUTME: The closed, typed capability set exposed to agent turns
// ABOUTME: Request structs carry validation tags checked before any dispatch

package tools

import "time"

// Capability names the fixed set of external operations the agent may use.
// There is no dynamic registration: anything not listed here cannot be
// called.
type Capability string

const (
	CapDiscoverySearch Capability = "discovery-search"
	CapBusinessDetail  Capability = "business-detail"
	CapBookingOpenings Capability = "booking-openings"
	CapBookingHold     Capability = "booking-hold"
	CapBookingBook     Capability = "booking-book"
)

// SearchRequest asks the conversational search capability for suggestions.
type SearchRequest struct {
	Query    string `json:"query" validate:"required,min=1,max=2000"`
	Location string `json:"location,omitempty" validate:"max=200"`
	ChatID   string `json:"chat_id,omitempty"`
}

// Business is a single place returned by search or detail lookups.
type Business struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Categories []string `json:"categories,omitempty"`
	Price      string   `json:"price,omitempty"`
	Rating     float64  `json:"rating,omitempty"`
	Address    string   `json:"address,omitempty"`
	PhotoURL   string   `json:"photo_url,omitempty"`
	URL        string   `json:"url,omitempty"`
}

// SearchResponse carries the capability's natural-language answer plus any
// structured businesses it referenced. ChatID threads follow-up questions
// into the same provider-side conversation.
type SearchResponse struct {
	Text       string     `json:"text"`
	Businesses []Business `json:"businesses,omitempty"`
	ChatID     string     `json:"chat_id,omitempty"`
}

// DetailRequest fetches full detail (including photos) for one business.
type DetailRequest struct {
	BusinessID string `json:"business_id" validate:"required"`
}

// DetailResponse is the enriched record for a business.
type DetailResponse struct {
	Business Business `json:"business"`
	Photos   []string `json:"photos,omitempty"`
	Phone    string   `json:"phone,omitempty"`
	Hours    string   `json:"hours,omitempty"`
}

// OpeningsRequest queries available reservation slots.
type OpeningsRequest struct {
	BusinessID string `json:"business_id" validate:"required"`
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
	Time       string `json:"time" validate:"required,datetime=15:04"`
	Covers     int    `json:"covers" validate:"required,min=1,max=20"`
}

// Slot is one bookable opening.
type Slot struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// OpeningsResponse lists candidate slots. An empty list is a valid,
// successful response meaning nothing is available.
type OpeningsResponse struct {
	Slots []Slot `json:"slots"`
}

// HoldRequest places a short-lived hold on a specific slot.
type HoldRequest struct {
	BusinessID string `json:"business_id" validate:"required"`
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
	Time       string `json:"time" validate:"required,datetime=15:04"`
	Covers     int    `json:"covers" validate:"required,min=1,max=20"`
}

// HoldResponse identifies the hold and when the provider will release it.
type HoldResponse struct {
	HoldID    string    `json:"hold_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// BookRequest converts an active hold into a confirmed reservation.
type BookRequest struct {
	HoldID    string `json:"hold_id" validate:"required"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"required"`
}

// BookResponse carries the provider confirmation for a booked reservation.
type BookResponse struct {
	ReservationID    string `json:"reservation_id"`
	ConfirmationCode string `json:"confirmation_code"`
}
