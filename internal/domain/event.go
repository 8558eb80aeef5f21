package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EffectType is the direction in which a market event moves prices.
type EffectType string

const (
	EffectBoost   EffectType = "BOOST"
	EffectDrop    EffectType = "DROP"
	EffectNeutral EffectType = "NEUTRAL"
)

// MarketEvent is a scripted shock to the prices of a set of tokens.
type MarketEvent struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	EffectType      EffectType      `json:"effect_type"`
	Magnitude       decimal.Decimal `json:"magnitude"`
	AffectedSymbols SymbolSet       `json:"affected_symbols"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         time.Time       `json:"end_time"`
	// Active is advisory. Whether an event applies is decided by its time
	// window alone.
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// IsEffective reports whether at lies inside [StartTime, EndTime].
func (e MarketEvent) IsEffective(at time.Time) bool {
	return !at.Before(e.StartTime) && !at.After(e.EndTime)
}

// Affects reports whether the event applies to sym.
func (e MarketEvent) Affects(sym Symbol) bool {
	return e.AffectedSymbols.Contains(sym)
}

// EventTemplate describes an event that the generator may instantiate.
type EventTemplate struct {
	Name        string
	Description string
	EffectType  EffectType
	Magnitude   decimal.Decimal
	Duration    time.Duration
	// Probability is the chance per generator run that the event fires.
	Probability float64
}

// DefaultEventTemplates returns the built-in event catalog.
func DefaultEventTemplates() []EventTemplate {
	return []EventTemplate{
		{
			Name:        "University rankings released",
			Description: "New national university rankings have been published",
			EffectType:  EffectBoost,
			Magnitude:   decimal.RequireFromString("0.15"),
			Duration:    time.Hour,
			Probability: 0.05,
		},
		{
			Name:        "ASUU strike news",
			Description: "Academic staff union announces possible strike action",
			EffectType:  EffectDrop,
			Magnitude:   decimal.RequireFromString("0.10"),
			Duration:    2 * time.Hour,
			Probability: 0.03,
		},
		{
			Name:        "Graduation ceremony",
			Description: "Convocation ceremonies are underway",
			EffectType:  EffectBoost,
			Magnitude:   decimal.RequireFromString("0.08"),
			Duration:    30 * time.Minute,
			Probability: 0.08,
		},
	}
}
