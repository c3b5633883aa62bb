package model

import (
	"fmt"
	"strings"
)

// Direction is the side taken on a selected instrument.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Sign returns +1 for Long and -1 for Short.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == Short {
		return Long
	}
	return Short
}

// ParseDirection accepts long/buy and short/sell in any case.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long", "buy":
		return Long, nil
	case "short", "sell":
		return Short, nil
	default:
		return "", fmt.Errorf("unknown direction %q", s)
	}
}

// Selection is one instrument inside the synthetic product.
// Beta is copied from the catalog when the instrument is first selected.
type Selection struct {
	Symbol    string    `json:"symbol"`
	Beta      float64   `json:"beta"`
	Direction Direction `json:"direction"`
}

// Weight returns beta × sign, the multiplier applied to each return.
func (s Selection) Weight() float64 {
	return s.Beta * s.Direction.Sign()
}
