package risk

import "time"

// IST is the UTC+05:30 fixed offset used for all market-hours decisions
// (spec §6: "Market hours (IST)").
var IST = time.FixedZone("IST", 5*60*60+30*60)

const (
	marketOpenHour    = 9
	marketOpenMinute  = 15
	marketCloseHour   = 15
	marketCloseMinute = 30
	cutoffHour        = 15
	cutoffMinute      = 20
)

// NSEHours implements MarketHours for NSE/BSE equities: 09:15-15:30 IST,
// Monday through Friday, with a 15:20 new-order cutoff.
type NSEHours struct{}

// IsOpen reports whether t falls within the trading session.
func (NSEHours) IsOpen(t time.Time) bool {
	t = t.In(IST)
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	open := clockMinutes(marketOpenHour, marketOpenMinute)
	close := clockMinutes(marketCloseHour, marketCloseMinute)
	now := clockMinutes(t.Hour(), t.Minute())
	return now >= open && now <= close
}

// WithinCutoff reports whether t is at least 10 minutes before close
// (spec §4.6: "at least 10 min before close").
func (NSEHours) WithinCutoff(t time.Time) bool {
	t = t.In(IST)
	cutoff := clockMinutes(cutoffHour, cutoffMinute)
	now := clockMinutes(t.Hour(), t.Minute())
	return now < cutoff
}

func clockMinutes(h, m int) int { return h*60 + m }
