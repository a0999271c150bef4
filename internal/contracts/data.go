package contracts

import "time"

// PriceBar is one daily OHLCV row
type PriceBar struct {
	InstrumentID string    `json:"instrument_id"`
	TradeDate    time.Time `json:"trade_date"`
	Open         float64   `json:"open"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Close        float64   `json:"close"`
	AdjClose     float64   `json:"adjusted_close"`
	Volume       float64   `json:"volume"`
}

// InstrumentRef is an enumerated universe candidate
type InstrumentRef struct {
	InstrumentID string `json:"instrument_id"`
	IssuerID     string `json:"issuer_id"`
	MarketID     string `json:"market_id"`
	Sector       string `json:"sector"`
}

// WindowSpec identifies a trailing numeric window to embed
type WindowSpec struct {
	EntityType      string `json:"entity_type"`
	EntityID        string `json:"entity_id"`
	WindowDays      int    `json:"window_days"`
	MinRequiredDays int    `json:"min_required_days,omitempty"` // 0 = 87% of WindowDays
}

// FactorExposure is an instrument loading on a factor at a date
type FactorExposure struct {
	InstrumentID string  `json:"instrument_id"`
	FactorID     string  `json:"factor_id"`
	Exposure     float64 `json:"exposure"`
}

// CorrelationPanel is a configured estimation window
type CorrelationPanel struct {
	PanelID   string    `json:"panel_id"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// ScenarioPathRow is one step of a scenario path for an instrument
type ScenarioPathRow struct {
	ScenarioID   int     `json:"scenario_id"`
	HorizonIndex int     `json:"horizon_index"`
	InstrumentID string  `json:"instrument_id"`
	ReturnValue  float64 `json:"return_value"`
}

// DateOnly truncates t to a UTC calendar date, matching DATE columns
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
