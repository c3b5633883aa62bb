package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kline represents a single OHLCV bar. OpenTime is the bar open time.
type Kline struct {
	OpenTime time.Time
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   decimal.Decimal
}

// Instrument is a tradable contract as listed by the catalog.
// LastPrice is zero when the price snapshot had no entry for the symbol.
type Instrument struct {
	Symbol    string
	LastPrice decimal.Decimal
	Beta      float64
}

// HasPrice reports whether LastPrice carries real market information.
func (i Instrument) HasPrice() bool {
	return i.LastPrice.IsPositive()
}

// DefaultBeta is applied to every instrument without a configured override.
const DefaultBeta = 1.0
