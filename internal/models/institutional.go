package models

import "time"

// InstitutionalNetDay is one trading day of TWSE three-institution net
// buy/sell amounts, in New Taiwan dollars, plus running year-to-date
// cumulative totals.
//
// TotalNet equals ForeignNet+TrustNet+DealerNet unless the source CSV
// carried an explicit 合計 row, in which case that explicit total is
// authoritative and may diverge from the component sum (rounding and
// categorization differences upstream).
type InstitutionalNetDay struct {
	Date              string `json:"date"`         // YYYYMMDD
	DateDisplay       string `json:"date_display"` // YYYY-MM-DD
	ForeignNet        int64  `json:"foreign_net"`
	TrustNet          int64  `json:"trust_net"`
	DealerNet         int64  `json:"dealer_net"`
	TotalNet          int64  `json:"total_net"`
	CumulativeForeign int64  `json:"cumulative_foreign"`
	CumulativeTrust   int64  `json:"cumulative_trust"`
	CumulativeDealer  int64  `json:"cumulative_dealer"`
	CumulativeTotal   int64  `json:"cumulative_total"`
}

// InstitutionalDailyNet is the parsed single-day report before cumulative
// totals are attached. ExplicitTotal is set only when the CSV carried a
// 合計 row of its own.
type InstitutionalDailyNet struct {
	Date          string
	ForeignNet    int64
	TrustNet      int64
	DealerNet     int64
	ExplicitTotal *int64
}

// TotalNet returns the authoritative day total: the explicit CSV total
// when present, otherwise the component sum.
func (d InstitutionalDailyNet) TotalNet() int64 {
	if d.ExplicitTotal != nil {
		return *d.ExplicitTotal
	}
	return d.ForeignNet + d.TrustNet + d.DealerNet
}

// InstitutionalYTD is the year-to-date aggregation payload, sized for the
// front end's cumulative bar chart (amounts in millions).
type InstitutionalYTD struct {
	Labels                    []string              `json:"labels"`
	CumulativeTotalMillions   []float64             `json:"cumulative_total_millions"`
	CumulativeForeignMillions []float64             `json:"cumulative_foreign_millions"`
	CumulativeTrustMillions   []float64             `json:"cumulative_trust_millions"`
	CumulativeDealerMillions  []float64             `json:"cumulative_dealer_millions"`
	Daily                     []InstitutionalNetDay `json:"daily"`
	Year                      int                   `json:"year"`
	FetchError                string                `json:"fetch_error,omitempty"`
	UploadedDates             []string              `json:"uploaded_dates,omitempty"`
	Timestamp                 time.Time             `json:"timestamp"`
}
