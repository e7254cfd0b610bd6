package models

// Requests for the candles HTTP endpoints. Defined in domain for consistency
// and reuse.

type CandlesRequest struct {
	Venue  string `query:"venue" json:"venue" default:"kraken" validate:"oneof=kraken buda"`
	Symbol string `query:"symbol" json:"symbol" validate:"required,oneof=btc eth ltc bch"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	Limit  int    `query:"limit" json:"limit" default:"1000" validate:"gte=1,lte=50000"`
}

type LiveCandleRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,oneof=btc eth ltc bch"`
}

type RecentAlertsRequest struct {
	Limit int `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
}
