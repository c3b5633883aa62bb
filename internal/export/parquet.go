// Package export writes index series to columnar files.
package export

import (
	"fmt"
	"time"

	"BetaBasket/internal/model"

	"github.com/parquet-go/parquet-go"
)

// Row is one index point as stored on disk.
type Row struct {
	Timestamp int64   `parquet:"t"` // Unix milliseconds
	Value     float64 `parquet:"v"`
}

// WriteIndex writes points to a parquet file at path.
func WriteIndex(path string, points []model.IndexPoint) error {
	rows := make([]Row, len(points))
	for i, p := range points {
		rows[i] = Row{Timestamp: p.Time.UnixMilli(), Value: p.Value}
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("write parquet %s: %w", path, err)
	}
	return nil
}

// ReadIndex loads points written by WriteIndex.
func ReadIndex(path string) ([]model.IndexPoint, error) {
	rows, err := parquet.ReadFile[Row](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	points := make([]model.IndexPoint, len(rows))
	for i, r := range rows {
		points[i] = model.IndexPoint{Time: time.UnixMilli(r.Timestamp).UTC(), Value: r.Value}
	}
	return points, nil
}
