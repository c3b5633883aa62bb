package calculator

import (
	"errors"
	"math"

	"BetaBasket/internal/model"
)

// WindowRange scans bars and returns the highest high and lowest low.
func WindowRange(bars []model.Kline) (high, low float64, err error) {
	if len(bars) == 0 {
		return 0, 0, errors.New("no bars provided")
	}
	high = math.Inf(-1)
	low = math.Inf(1)
	for _, b := range bars {
		if h := b.High.InexactFloat64(); h > high {
			high = h
		}
		if l := b.Low.InexactFloat64(); l < low {
			low = l
		}
	}
	return high, low, nil
}

// RangePosition returns where current sits within [low, high] (0.0~1.0).
func RangePosition(current, high, low float64) (float64, error) {
	if high == low {
		return 0.5, nil
	}
	if high < low {
		return 0, errors.New("high must be >= low")
	}
	pos := (current - low) / (high - low)
	if pos < 0 {
		pos = 0
	}
	if pos > 1 {
		pos = 1
	}
	return pos, nil
}
