// Package normalize maps raw provider payloads into canonical price
// observation candidates. Normalization is deliberately tolerant: malformed
// entries are skipped with a logged warning, and an unrecognized payload
// shape yields zero candidates rather than an error.
package normalize

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jose-zothner-meyer/commodity-tracker/internal/provider"
	"github.com/jose-zothner-meyer/commodity-tracker/pkg/models"
)

const dateLayout = "2006-01-02"

// Substrings that identify the time-series sub-structure inside an
// Alpha-Vantage-like payload.
var timeSeriesKeyHints = []string{"Time Series", "Daily", "Weekly", "Monthly"}

// Normalizer converts raw payloads into ordered candidate sequences.
type Normalizer struct {
	logger *logrus.Entry
}

// New creates a normalizer.
func New(log *logrus.Logger) *Normalizer {
	return &Normalizer{logger: log.WithField("component", "normalizer")}
}

// Normalize dispatches on the payload family tag and returns the candidates
// in ascending timestamp order. Unknown families yield zero candidates.
func (n *Normalizer) Normalize(family provider.Family, symbol string, raw map[string]interface{}) []models.Candidate {
	switch family {
	case provider.FamilyTimeSeries:
		return n.timeSeries(symbol, raw)
	case provider.FamilyObservations:
		return n.observations(symbol, raw)
	default:
		n.logger.WithFields(logrus.Fields{"symbol": symbol, "family": family}).Warn("No normalizer for payload family")
		return nil
	}
}

// EstimateFetched counts the primary records present in a raw payload. Used
// for the ledger's fetched counter; returns 0 for unrecognized shapes.
func (n *Normalizer) EstimateFetched(family provider.Family, raw map[string]interface{}) int {
	switch family {
	case provider.FamilyTimeSeries:
		if series, ok := findTimeSeries(raw); ok {
			return len(series)
		}
	case provider.FamilyObservations:
		if obs, ok := raw["observations"].([]interface{}); ok {
			return len(obs)
		}
	}
	return 0
}

// timeSeries normalizes a date-keyed object of nested price fields. Field
// names are matched by case-insensitive substring so that variations like
// "1. open" or "5. adjusted close" resolve without per-function mappings.
func (n *Normalizer) timeSeries(symbol string, raw map[string]interface{}) []models.Candidate {
	series, ok := findTimeSeries(raw)
	if !ok {
		n.logger.WithField("symbol", symbol).Warn("No valid time series data found in payload")
		return nil
	}

	dates := make([]string, 0, len(series))
	for dateStr := range series {
		dates = append(dates, dateStr)
	}
	sort.Strings(dates)

	candidates := make([]models.Candidate, 0, len(dates))
	for _, dateStr := range dates {
		point, ok := series[dateStr].(map[string]interface{})
		if !ok {
			n.logger.WithFields(logrus.Fields{"symbol": symbol, "date": dateStr}).Warn("Skipping non-object time series entry")
			continue
		}

		ts, err := parseDate(dateStr)
		if err != nil {
			n.logger.WithFields(logrus.Fields{"symbol": symbol, "date": dateStr}).Warn("Could not parse date string, skipping")
			continue
		}

		closePrice := toDecimal(fuzzyField(point, "close"))
		if closePrice == nil {
			n.logger.WithFields(logrus.Fields{"symbol": symbol, "date": dateStr}).Warn("Missing or invalid close price, skipping")
			continue
		}

		candidates = append(candidates, models.Candidate{
			Timestamp:  ts,
			Open:       toDecimal(fuzzyField(point, "open")),
			High:       toDecimal(fuzzyField(point, "high")),
			Low:        toDecimal(fuzzyField(point, "low")),
			Close:      closePrice,
			Volume:     toVolume(fuzzyField(point, "volume")),
			SourceData: models.JSONMap(point),
		})
	}

	return candidates
}

// observations normalizes a flat list of {date, value} pairs. The sentinel
// value "." (or an empty value) means "no data" and is skipped.
func (n *Normalizer) observations(symbol string, raw map[string]interface{}) []models.Candidate {
	list, ok := raw["observations"].([]interface{})
	if !ok {
		n.logger.WithField("symbol", symbol).Warn("No valid observations data found in payload")
		return nil
	}

	candidates := make([]models.Candidate, 0, len(list))
	for _, entry := range list {
		obs, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}

		value, _ := obs["value"].(string)
		if strings.TrimSpace(value) == "" || strings.TrimSpace(value) == "." {
			continue
		}

		dateStr, _ := obs["date"].(string)
		ts, err := parseDate(dateStr)
		if err != nil {
			n.logger.WithFields(logrus.Fields{"symbol": symbol, "date": dateStr}).Warn("Could not parse date string, skipping")
			continue
		}

		closePrice := toDecimal(value)
		if closePrice == nil {
			n.logger.WithFields(logrus.Fields{"symbol": symbol, "date": dateStr, "value": value}).Warn("Could not convert value to decimal, skipping")
			continue
		}

		candidates = append(candidates, models.Candidate{
			Timestamp:  ts,
			Close:      closePrice,
			SourceData: models.JSONMap(obs),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Timestamp.Before(candidates[j].Timestamp)
	})
	return candidates
}

// findTimeSeries locates the sub-object whose key naming indicates a time
// series.
func findTimeSeries(raw map[string]interface{}) (map[string]interface{}, bool) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		for _, hint := range timeSeriesKeyHints {
			if strings.Contains(key, hint) {
				if series, ok := raw[key].(map[string]interface{}); ok {
					return series, true
				}
			}
		}
	}
	return nil, false
}

// fuzzyField returns the value of the lexicographically first key containing
// the target as a case-insensitive substring. Alpha Vantage prefixes keys
// with ordinals ("1. open", "4. close", "5. adjusted close"), so the sort
// prefers the plain field over its adjusted variant.
func fuzzyField(point map[string]interface{}, target string) interface{} {
	var matches []string
	for key := range point {
		if strings.Contains(strings.ToLower(key), target) {
			matches = append(matches, key)
		}
	}
	if len(matches) == 0 {
		return nil
	}
	sort.Strings(matches)
	return point[matches[0]]
}

// toDecimal coerces a raw value into a decimal. Values that fail coercion
// are treated as absent, not zero.
func toDecimal(value interface{}) *decimal.Decimal {
	switch v := value.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil
		}
		d, err := decimal.NewFromString(trimmed)
		if err != nil {
			return nil
		}
		return &d
	case float64:
		d := decimal.NewFromFloat(v)
		return &d
	case int:
		d := decimal.NewFromInt(int64(v))
		return &d
	default:
		return nil
	}
}

// toVolume coerces a raw value into a whole-number volume. Fractional
// values are treated as absent.
func toVolume(value interface{}) *int64 {
	d := toDecimal(value)
	if d == nil || !d.IsInteger() {
		return nil
	}
	v := d.IntPart()
	if v < 0 {
		return nil
	}
	return &v
}

func parseDate(dateStr string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, dateStr, time.UTC)
}
