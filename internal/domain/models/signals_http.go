package models

// Requests for analysis HTTP endpoints. Defined in domain for consistency and reuse.
// Zero-valued periods and thresholds fall back to the configured analysis defaults.

type SegmentsRequest struct {
	Symbol    string  `query:"symbol" json:"symbol" validate:"required"`
	TF        string  `query:"tf" json:"tf" default:"1m" validate:"oneof=1m 3m 5m 15m 1h"`
	N         int     `query:"n" json:"n" default:"200" validate:"gte=10,lte=1500"`
	Period    int     `query:"period" json:"period" validate:"omitempty,gte=2,lte=500"`
	Threshold float64 `query:"threshold" json:"threshold" validate:"gte=0"`
}

type ConvergenceRequest struct {
	Symbol        string  `query:"symbol" json:"symbol" validate:"required"`
	TF            string  `query:"tf" json:"tf" default:"1m" validate:"oneof=1m 3m 5m 15m 1h"`
	N             int     `query:"n" json:"n" default:"200" validate:"gte=10,lte=1500"`
	FastPeriod    int     `query:"fast" json:"fast" validate:"omitempty,gte=2,lte=500"`
	SlowPeriod    int     `query:"slow" json:"slow" validate:"omitempty,gte=2,lte=500"`
	FastThreshold float64 `query:"fast_threshold" json:"fast_threshold" validate:"gte=0"`
	SlowThreshold float64 `query:"slow_threshold" json:"slow_threshold" validate:"gte=0"`
}

type SignalsRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	TF     string `query:"tf" json:"tf" default:"1m" validate:"oneof=1m 3m 5m 15m 1h"`
}

type CandlesRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	TF     string `query:"tf" json:"tf" default:"1m" validate:"oneof=1m 3m 5m 15m 1h"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	Limit  int    `query:"limit" json:"limit" default:"500" validate:"gte=1,lte=5000"`
}

// OverviewRequest takes a comma separated symbol list.
type OverviewRequest struct {
	Symbols string `query:"symbols" json:"symbols" validate:"required"`
	TF      string `query:"tf" json:"tf" default:"1m" validate:"oneof=1m 3m 5m 15m 1h"`
	N       int    `query:"n" json:"n" default:"200" validate:"gte=10,lte=1500"`
}
