package types

// Candidate is an ephemeral scanner hit; it is never persisted. Rank is
// assigned after sorting the surviving set by Notional descending (rank 1 is
// the most-traded instrument).
type Candidate struct {
	Instrument  string
	Price       float64
	ChangeRate  float64 // signed fraction over the scan window
	VolumeRatio float64 // latest interval volume vs trailing average
	Notional    float64 // quote-currency traded value
	Rank        int
}

// MarketContext is the macro snapshot attached to AI prompts. It never drives
// control flow in the core; it only enriches prompt construction.
type MarketContext struct {
	BTCPrice       float64
	ETHPrice       float64
	BTCRSI         float64
	Volatility     float64 // high/low range over the lookback, percent
	Sentiment      string  // BULLISH / NEUTRAL / BEARISH
	FearGreedValue int
	FearGreedLabel string
}

// TechnicalSnapshot is the per-candidate indicator view computed for prompts
// and persisted with recommendation records for offline auditing.
type TechnicalSnapshot struct {
	Instrument  string
	RSI         float64
	RSISignal   string // BUY / SELL / HOLD
	MACDTrend   string // BULLISH / BEARISH / NEUTRAL
	StochK      float64
	StochD      float64
	StochSignal string
	MATrend     string // BULLISH / BEARISH / SIDEWAYS
	VolumeRatio float64
	ChangeRate  float64
}
