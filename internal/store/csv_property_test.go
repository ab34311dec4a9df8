package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"global-universe/internal/models"
	"global-universe/internal/testutil"
)

// Property: saving a table and loading it back yields the same records.
func TestProperty_TableRoundTrip(t *testing.T) {
	s, err := NewCSVStore(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	var seq int
	properties.Property("Round trip: save then load produces equivalent table", prop.ForAll(
		func(closes []float64, offset int) bool {
			seq++
			name := fmt.Sprintf("daily/RT_%d.csv", seq)
			start := testutil.BaseDate.AddDate(0, 0, offset)
			table := models.NewTable(models.PriceSchema())
			for i, c := range closes {
				table.Append(testutil.PriceRecord(start.AddDate(0, 0, i), c))
			}

			if err := s.Save(name, table); err != nil {
				t.Logf("Failed to save: %v", err)
				return false
			}
			loaded, err := s.Load(name)
			if err != nil || loaded == nil {
				t.Logf("Failed to load: %v", err)
				return false
			}
			return testutil.TablesEqual(table, loaded)
		},
		gen.SliceOf(gen.Float64Range(0.01, 100000)),
		gen.IntRange(0, 3650),
	))

	properties.Property("Loaded tables never hold duplicate or unordered dates", prop.ForAll(
		func(offsets []int) bool {
			seq++
			name := fmt.Sprintf("daily/DUP_%d.csv", seq)
			table := models.NewTable(models.PriceSchema())
			for i, off := range offsets {
				table.Append(testutil.PriceRecord(testutil.BaseDate.AddDate(0, 0, off), float64(i+1)))
			}
			data, err := EncodeTable(table)
			if err != nil {
				return false
			}
			if err := s.WriteFile(name, data); err != nil {
				return false
			}
			loaded, err := s.Load(name)
			if err != nil {
				return false
			}
			if len(offsets) == 0 {
				return loaded != nil && loaded.Empty()
			}
			return testutil.StrictlyIncreasing(loaded)
		},
		gen.SliceOf(gen.IntRange(0, 30)),
	))

	properties.Property("Saves leave no temp files behind", prop.ForAll(
		func(n int) bool {
			seq++
			name := fmt.Sprintf("valuations/TMP_%d.csv", seq)
			if err := s.Save(name, testutil.PriceTable(testutil.BaseDate, n, 100)); err != nil {
				return false
			}
			entries, err := os.ReadDir(filepath.Join(s.Root(), "valuations"))
			if err != nil {
				return false
			}
			for _, e := range entries {
				if strings.HasPrefix(e.Name(), ".tmp-") {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 40),
	))

	properties.TestingRun(t)
}
