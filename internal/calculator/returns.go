package calculator

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"BetaBasket/internal/model"
)

// IndexBase is the value the synthetic index is scaled to.
const IndexBase = 100.0

// Point is a timestamped scalar, used for return series.
type Point struct {
	Time  time.Time
	Value float64
}

// SimpleReturns computes close[t]/close[t-1] - 1 for every bar after the first.
// The first bar has no return and is dropped, so the result is one shorter
// than bars. Fewer than two bars yield an empty series.
func SimpleReturns(bars []model.Kline) ([]Point, error) {
	if len(bars) < 2 {
		return nil, nil
	}
	closes := extractCloses(bars)
	out := make([]Point, 0, len(bars)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 {
			return nil, fmt.Errorf("non-positive close %v at %s", closes[i-1], bars[i-1].OpenTime.Format(time.RFC3339))
		}
		out = append(out, Point{Time: bars[i].OpenTime, Value: closes[i]/closes[i-1] - 1})
	}
	return out, nil
}

// Weight scales every return by w (beta × direction sign).
func Weight(returns []Point, w float64) []Point {
	out := make([]Point, len(returns))
	for i, r := range returns {
		out[i] = Point{Time: r.Time, Value: r.Value * w}
	}
	return out
}

// AlignInner keeps only the timestamps present in every series and returns
// them in ascending order together with a matrix indexed [series][timestamp].
// Any empty input series yields an empty result.
func AlignInner(series [][]Point) ([]time.Time, [][]float64) {
	if len(series) == 0 {
		return nil, nil
	}
	counts := make(map[int64]int)
	for _, s := range series {
		seen := make(map[int64]bool, len(s))
		for _, p := range s {
			k := p.Time.UnixNano()
			if !seen[k] {
				seen[k] = true
				counts[k]++
			}
		}
	}

	var times []time.Time
	for _, p := range series[0] {
		if counts[p.Time.UnixNano()] == len(series) {
			times = append(times, p.Time)
			counts[p.Time.UnixNano()] = 0 // guard against duplicate timestamps in series[0]
		}
	}
	if len(times) == 0 {
		return nil, nil
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	matrix := make([][]float64, len(series))
	for i, s := range series {
		byTime := make(map[int64]float64, len(s))
		for _, p := range s {
			byTime[p.Time.UnixNano()] = p.Value
		}
		row := make([]float64, len(times))
		for j, ts := range times {
			row[j] = byTime[ts.UnixNano()]
		}
		matrix[i] = row
	}
	return times, matrix
}

// Combine sums the aligned weighted returns at each timestamp.
func Combine(matrix [][]float64) ([]float64, error) {
	if len(matrix) == 0 {
		return nil, nil
	}
	n := len(matrix[0])
	out := make([]float64, n)
	for i, row := range matrix {
		if len(row) != n {
			return nil, fmt.Errorf("series %d has %d points, expected %d", i, len(row), n)
		}
		for j, v := range row {
			out[j] += v
		}
	}
	return out, nil
}

// Compound turns combined returns into a cumulative index scaled to IndexBase:
// value[t] = IndexBase × Π(1 + combined[k]) for k <= t.
func Compound(times []time.Time, combined []float64) ([]model.IndexPoint, error) {
	if len(times) != len(combined) {
		return nil, errors.New("times and returns length mismatch")
	}
	if len(combined) == 0 {
		return nil, nil
	}
	out := make([]model.IndexPoint, len(combined))
	index := 1.0
	for i, c := range combined {
		index *= 1 + c
		out[i] = model.IndexPoint{Time: times[i], Value: index * IndexBase}
	}
	return out, nil
}

// CompoundLegs compounds every row of the aligned matrix on its own, giving
// one cumulative path per instrument on the same timestamps as the index.
func CompoundLegs(times []time.Time, matrix [][]float64) ([][]model.IndexPoint, error) {
	out := make([][]model.IndexPoint, len(matrix))
	for i, row := range matrix {
		pts, err := Compound(times, row)
		if err != nil {
			return nil, fmt.Errorf("leg %d: %w", i, err)
		}
		out[i] = pts
	}
	return out, nil
}

// SideLine averages the excursions of legs from IndexBase at each timestamp.
// All legs must share the same timestamps. No legs yield an empty line.
func SideLine(legs [][]model.IndexPoint) []model.IndexPoint {
	if len(legs) == 0 {
		return nil
	}
	out := make([]model.IndexPoint, len(legs[0]))
	for t := range out {
		sum := 0.0
		for _, leg := range legs {
			sum += leg[t].Value - IndexBase
		}
		out[t] = model.IndexPoint{Time: legs[0][t].Time, Value: sum/float64(len(legs)) + IndexBase}
	}
	return out
}

func extractCloses(bars []model.Kline) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close.InexactFloat64()
	}
	return closes
}
