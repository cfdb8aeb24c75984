package models

import (
	"strings"
	"time"
)

// Instrument represents a tracked commodity identified by a unique symbol.
// Instruments are never physically deleted; they are deactivated instead.
// LastUpdated is only advanced by a successful reconciliation, using the
// maximum observation timestamp actually written.
type Instrument struct {
	ID                    string     `json:"id" db:"id"`
	Symbol                string     `json:"symbol" db:"symbol"`
	Name                  string     `json:"name" db:"name"`
	Unit                  string     `json:"unit,omitempty" db:"unit"`
	Currency              string     `json:"currency" db:"currency"`
	Exchange              string     `json:"exchange,omitempty" db:"exchange"`
	ProviderID            string     `json:"provider_id" db:"provider_id"`
	ProviderName          string     `json:"provider_name,omitempty" db:"provider_name"`
	ExternalID            string     `json:"external_id" db:"external_id"`
	IsActive              bool       `json:"is_active" db:"is_active"`
	LastUpdated           *time.Time `json:"last_updated,omitempty" db:"last_updated"`
	UpdateFrequencyMinute int        `json:"update_frequency_minutes" db:"update_frequency_minutes"`
	CreatedAt             time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at" db:"updated_at"`
}

// NormalizeSymbol applies the case convention for instrument symbols.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// FetchIdentifier returns the identifier used against the external provider.
// Some instruments track a provider-specific series id distinct from the
// display symbol.
func (i *Instrument) FetchIdentifier() string {
	if i.ExternalID != "" {
		return i.ExternalID
	}
	return i.Symbol
}
