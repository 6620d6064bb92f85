package models

import (
	"errors"
	"math"
	"time"
)

// PositionStatus is the lifecycle state of a tracked short-option position.
type PositionStatus string

const (
	StatusOpen     PositionStatus = "OPEN"
	StatusClosed   PositionStatus = "CLOSED"
	StatusAssigned PositionStatus = "ASSIGNED"
	StatusExpired  PositionStatus = "EXPIRED"
	StatusRolled   PositionStatus = "ROLLED"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s PositionStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusClosed, StatusAssigned, StatusExpired, StatusRolled:
		return true
	}
	return false
}

// Position is a short option position entered from a scanned opportunity.
// PremiumReceived and ClosePrice are per-contract prices, not notional;
// realized P&L is (premium - close) * 100 * quantity.
type Position struct {
	ID              string         `json:"id"`
	OpportunityID   string         `json:"opportunity_id,omitempty"`
	Underlying      string         `json:"underlying"`
	Type            OptionType     `json:"type"`
	Strike          float64        `json:"strike"`
	Expiry          time.Time      `json:"expiry"`
	Quantity        int            `json:"quantity"`
	PremiumReceived float64        `json:"premium_received"`
	OpenedAt        time.Time      `json:"opened_at"`
	Status          PositionStatus `json:"status"`
	ClosedAt        time.Time      `json:"closed_at,omitempty"`
	ClosePrice      float64        `json:"close_price,omitempty"`
	Notes           string         `json:"notes,omitempty"`
}

// DTE returns calendar days from now until expiry, rounded up, negative once
// past expiry.
func (p *Position) DTE(now time.Time) int {
	return int(math.Ceil(p.Expiry.Sub(now).Hours() / 24))
}

// Expired reports whether the expiry has passed.
func (p *Position) Expired(now time.Time) bool {
	return now.After(p.Expiry)
}

// RealizedPnL returns the closed profit in dollars. Only meaningful for
// terminal statuses; an open position reports zero.
func (p *Position) RealizedPnL() float64 {
	if p.Status == StatusOpen {
		return 0
	}
	return (p.PremiumReceived - p.ClosePrice) * 100 * float64(p.Quantity)
}

// Validate checks that all position fields are valid.
func (p *Position) Validate() error {
	if p.ID == "" {
		return errors.New("position id must not be empty")
	}
	if p.Underlying == "" {
		return errors.New("position underlying must not be empty")
	}
	if !p.Type.Valid() {
		return errors.New("position type must be CALL or PUT")
	}
	if p.Strike <= 0 || math.IsNaN(p.Strike) || math.IsInf(p.Strike, 0) {
		return errors.New("position strike must be finite and positive")
	}
	if p.Expiry.IsZero() {
		return errors.New("position expiry must not be zero")
	}
	if p.Quantity <= 0 {
		return errors.New("position quantity must be positive")
	}
	if p.PremiumReceived < 0 || math.IsNaN(p.PremiumReceived) || math.IsInf(p.PremiumReceived, 0) {
		return errors.New("position premium must be finite and non-negative")
	}
	if p.OpenedAt.IsZero() {
		return errors.New("position opened-at time must not be zero")
	}
	if !p.Status.Valid() {
		return errors.New("position status is unknown")
	}
	if p.Status != StatusOpen && p.ClosedAt.IsZero() {
		return errors.New("closed position must record a close time")
	}
	return nil
}
