package export

import (
	"path/filepath"
	"testing"
	"time"

	"BetaBasket/internal/model"
)

func TestWriteReadIndex(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	points := []model.IndexPoint{
		{Time: base, Value: 101},
		{Time: base.Add(time.Hour), Value: 98.98},
		{Time: base.Add(2 * time.Hour), Value: 101.9494},
	}
	path := filepath.Join(t.TempDir(), "index.parquet")
	if err := WriteIndex(path, points); err != nil {
		t.Fatal(err)
	}
	got, err := ReadIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(points) {
		t.Fatalf("got %d rows, want %d", len(got), len(points))
	}
	for i := range points {
		if !got[i].Time.Equal(points[i].Time) || got[i].Value != points[i].Value {
			t.Errorf("row %d = %+v, want %+v", i, got[i], points[i])
		}
	}
}

func TestReadIndex_MissingFile(t *testing.T) {
	if _, err := ReadIndex(filepath.Join(t.TempDir(), "nope.parquet")); err == nil {
		t.Error("expected error for missing file")
	}
}
