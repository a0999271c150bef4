package s0_data

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
)

const MarketUSEquity = "US_EQ"

// fallbackHolidays is used when market_holidays has no rows for a market
var fallbackHolidays = map[string][]time.Time{
	MarketUSEquity: {
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC),
	},
}

// Calendar is a weekday calendar minus market holidays
type Calendar struct {
	market   string
	holidays map[time.Time]struct{}
}

// NewCalendar builds a calendar from an explicit holiday list
func NewCalendar(market string, holidays []time.Time) *Calendar {
	c := &Calendar{market: market, holidays: make(map[time.Time]struct{}, len(holidays))}
	for _, h := range holidays {
		c.holidays[contracts.DateOnly(h)] = struct{}{}
	}
	return c
}

// LoadCalendar reads holidays from market_holidays, falling back to the
// built-in set when the table is empty or unreachable.
func LoadCalendar(ctx context.Context, pool *pgxpool.Pool, market string, log zerolog.Logger) *Calendar {
	log = log.With().Str("component", "s0_data.calendar").Logger()

	holidays, err := loadHolidays(ctx, pool, market)
	if err != nil {
		log.Warn().Err(err).Str("market", market).Msg("holiday load failed, using fallback")
		return NewCalendar(market, fallbackHolidays[market])
	}
	if len(holidays) == 0 {
		log.Warn().Str("market", market).Msg("no holidays stored, using fallback")
		return NewCalendar(market, fallbackHolidays[market])
	}

	log.Info().Str("market", market).Int("holidays", len(holidays)).Msg("trading calendar loaded")
	return NewCalendar(market, holidays)
}

func loadHolidays(ctx context.Context, pool *pgxpool.Pool, market string) ([]time.Time, error) {
	rows, err := pool.Query(ctx, `SELECT holiday_date FROM market_holidays WHERE market_id = $1`, market)
	if err != nil {
		return nil, fmt.Errorf("query holidays: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan holiday: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Market returns the calendar's market id
func (c *Calendar) Market() string {
	return c.market
}

// IsTradingDay reports whether d is a weekday and not a holiday
func (c *Calendar) IsTradingDay(d time.Time) bool {
	d = contracts.DateOnly(d)
	if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	_, holiday := c.holidays[d]
	return !holiday
}

// TradingDaysBetween returns trading days in [from, to] in ascending order
func (c *Calendar) TradingDaysBetween(from, to time.Time) []time.Time {
	from, to = contracts.DateOnly(from), contracts.DateOnly(to)
	var days []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if c.IsTradingDay(d) {
			days = append(days, d)
		}
	}
	return days
}

// PreviousTradingDay returns the last trading day strictly before d
func (c *Calendar) PreviousTradingDay(d time.Time) time.Time {
	d = contracts.DateOnly(d).AddDate(0, 0, -1)
	for !c.IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// LatestTradingDayOnOrBefore returns d when it trades, else the previous trading day
func (c *Calendar) LatestTradingDayOnOrBefore(d time.Time) time.Time {
	d = contracts.DateOnly(d)
	if c.IsTradingDay(d) {
		return d
	}
	return c.PreviousTradingDay(d)
}
