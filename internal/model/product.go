package model

import "time"

// IndexPoint is one point of the cumulative synthetic product, base 100.
type IndexPoint struct {
	Time  time.Time
	Value float64
}

// Contribution summarizes one instrument that survived a recomputation pass.
type Contribution struct {
	Symbol    string
	Direction Direction
	Beta      float64
	Bars      int
	ReturnPct float64 // raw close-to-close return over the fetched window
	RangePos  float64 // last close within the window's high/low range, 0.0~1.0
}

// LegSeries is the cumulative weighted path of one instrument over the
// aligned timestamps of the index, base 100.
type LegSeries struct {
	Symbol    string
	Direction Direction
	Beta      float64
	Points    []IndexPoint
}

// BasketStats holds summary statistics of the published index.
type BasketStats struct {
	TotalReturnPct   float64
	AnnualizedVolPct float64
	Sharpe           float64
	MaxDrawdownPct   float64
	RSI              float64 // Wilder RSI of the index, 50 when too short
	SMA              float64 // moving average of the index, 0 when too short
}

// Snapshot is the unit published by the engine after each recomputation.
// It is never mutated after publication.
type Snapshot struct {
	Generation    uint64
	Interval      string
	Selections    []Selection
	Points        []IndexPoint
	Legs          []LegSeries
	LongLine      []IndexPoint // mean excursion of the long legs, base 100
	ShortLine     []IndexPoint // mean excursion of the short legs, base 100
	Contributions []Contribution
	Stats         BasketStats
	ComputedAt    time.Time
}

// Empty reports whether the snapshot carries no index points.
func (s Snapshot) Empty() bool {
	return len(s.Points) == 0
}

// Last returns the latest index point and false if there is none.
func (s Snapshot) Last() (IndexPoint, bool) {
	if len(s.Points) == 0 {
		return IndexPoint{}, false
	}
	return s.Points[len(s.Points)-1], true
}
