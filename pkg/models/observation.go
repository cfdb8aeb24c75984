package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// PriceObservation is one canonical OHLC(V) price record for an instrument
// at a specific timestamp. The (instrument, timestamp) pair is unique; a
// second write to the same key is a no-op unless the explicit correction
// path is used.
type PriceObservation struct {
	ID           int64            `json:"id" db:"id"`
	InstrumentID string           `json:"instrument_id" db:"instrument_id"`
	Timestamp    time.Time        `json:"timestamp" db:"ts"`
	Open         *decimal.Decimal `json:"open,omitempty" db:"open_price"`
	High         *decimal.Decimal `json:"high,omitempty" db:"high_price"`
	Low          *decimal.Decimal `json:"low,omitempty" db:"low_price"`
	Close        decimal.Decimal  `json:"close" db:"close_price"`
	Volume       *int64           `json:"volume,omitempty" db:"volume"`
	SourceData   JSONMap          `json:"source_data,omitempty" db:"source_data"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
}

// Change returns the absolute close-minus-open change, or nil when the open
// price is unknown.
func (p *PriceObservation) Change() *decimal.Decimal {
	if p.Open == nil {
		return nil
	}
	d := p.Close.Sub(*p.Open)
	return &d
}

// ChangePercent returns the percentage change from open to close, or nil
// when the open price is unknown or zero.
func (p *PriceObservation) ChangePercent() *decimal.Decimal {
	change := p.Change()
	if change == nil || p.Open.IsZero() {
		return nil
	}
	d := change.Div(*p.Open).Mul(decimal.NewFromInt(100))
	return &d
}

// Candidate is a normalized, not-yet-persisted observation awaiting
// deduplication. Close is mandatory for persistence; candidates missing it
// are dropped by the reconciler.
type Candidate struct {
	Timestamp  time.Time        `json:"timestamp"`
	Open       *decimal.Decimal `json:"open,omitempty"`
	High       *decimal.Decimal `json:"high,omitempty"`
	Low        *decimal.Decimal `json:"low,omitempty"`
	Close      *decimal.Decimal `json:"close,omitempty"`
	Volume     *int64           `json:"volume,omitempty"`
	SourceData JSONMap          `json:"source_data,omitempty"`
}

// JSONMap handles an opaque JSON object stored in a MySQL JSON column.
type JSONMap map[string]interface{}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return nil
		}
		bytes = []byte(str)
	}

	return json.Unmarshal(bytes, m)
}

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	return json.Marshal(m)
}
