package bars

import "time"

// Side is the aggressor side of a trade. Some sources don't report it.
type Side string

const (
	SideNone Side = ""
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Tick is a single trade event. Timestamps are expected to already be
// normalized to one reference timezone.
type Tick struct {
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side,omitempty"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Timestamp time.Time `json:"timestamp"`
}

// TimeBar is an OHLCV summary of the ticks in [Datetime, Datetime+interval).
type TimeBar struct {
	Datetime time.Time `json:"datetime"` // left edge of the bucket
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// VolumeBar is an OHLCV summary of consecutive ticks whose sizes add up to
// the target volume.
type VolumeBar struct {
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`

	// Partial is set on a trailing bar that was force-closed below the target volume.
	Partial bool `json:"partial,omitempty"`
}

// CarryOver is an unclosed volume bar handed from one chunk to the next.
// LastPrice and LastDate are the close candidates used if the bar ends up
// force-closed without any further ticks.
type CarryOver struct {
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Volume    float64   `json:"volume"`
	StartDate time.Time `json:"start_date"`
	LastPrice float64   `json:"last_price"`
	LastDate  time.Time `json:"last_date"`
}

// bar closes the carried state at its last seen tick. A carry-over built
// without LastDate closes at its open.
func (c CarryOver) bar() VolumeBar {
	closePrice, end := c.LastPrice, c.LastDate
	if end.IsZero() {
		closePrice, end = c.Open, c.StartDate
	}
	return VolumeBar{
		Open:      c.Open,
		High:      c.High,
		Low:       c.Low,
		Close:     closePrice,
		Volume:    c.Volume,
		StartDate: c.StartDate,
		EndDate:   end,
		Partial:   true,
	}
}
