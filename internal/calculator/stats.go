package calculator

import (
	"math"

	"BetaBasket/internal/model"
)

// periodsPerYear maps a bar interval to the number of bars in a year.
var periodsPerYear = map[string]float64{
	"1m":  24 * 60 * 365,
	"3m":  24 * 20 * 365,
	"5m":  24 * 12 * 365,
	"15m": 24 * 4 * 365,
	"30m": 24 * 2 * 365,
	"1h":  24 * 365,
	"2h":  12 * 365,
	"4h":  6 * 365,
	"6h":  4 * 365,
	"8h":  3 * 365,
	"12h": 2 * 365,
	"1d":  365,
	"3d":  365.0 / 3,
	"1w":  52,
}

// PeriodsPerYear returns the annualization factor for interval, 365 if unknown.
func PeriodsPerYear(interval string) float64 {
	if v, ok := periodsPerYear[interval]; ok {
		return v
	}
	return 365
}

// ValidInterval reports whether interval is a known bar interval.
func ValidInterval(interval string) bool {
	_, ok := periodsPerYear[interval]
	return ok
}

// Stats summarizes an index series. The implicit starting value IndexBase is
// treated as the first observation.
func Stats(points []model.IndexPoint, interval string) model.BasketStats {
	if len(points) == 0 {
		return model.BasketStats{}
	}
	values := make([]float64, 0, len(points)+1)
	values = append(values, IndexBase)
	for _, p := range points {
		values = append(values, p.Value)
	}

	total := (values[len(values)-1]/IndexBase - 1) * 100
	vol := AnnualizedVolatility(values, PeriodsPerYear(interval))
	var sharpe float64
	if vol > 0 {
		sharpe = total / vol
	}
	rsi, _ := CalculateRSI(values, DefaultRSIPeriod)
	sma, _ := CalculateSMA(values, DefaultSMAPeriod)
	return model.BasketStats{
		TotalReturnPct:   total,
		AnnualizedVolPct: vol,
		Sharpe:           sharpe,
		MaxDrawdownPct:   MaxDrawdown(values) * 100,
		RSI:              rsi,
		SMA:              sma,
	}
}

// AnnualizedVolatility returns the root-mean-square period return of values,
// annualized and expressed in percent. Needs at least two values.
func AnnualizedVolatility(values []float64, periods float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	n := 0
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			continue
		}
		r := values[i]/values[i-1] - 1
		sum += r * r
		n++
	}
	if n == 0 {
		return 0
	}
	denom := float64(n)
	if n > 1 {
		denom = float64(n - 1)
	}
	return math.Sqrt(sum/denom*periods) * 100
}

// MaxDrawdown returns the largest peak-to-trough decline as a fraction (0.0~1.0).
func MaxDrawdown(values []float64) float64 {
	peak := math.Inf(-1)
	var maxDD float64
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - v) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// WindowReturn returns the close-to-close return over bars in percent.
func WindowReturn(bars []model.Kline) float64 {
	if len(bars) < 2 {
		return 0
	}
	first := bars[0].Close.InexactFloat64()
	if first <= 0 {
		return 0
	}
	return (bars[len(bars)-1].Close.InexactFloat64()/first - 1) * 100
}
