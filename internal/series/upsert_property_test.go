package series

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"global-universe/internal/models"
	"global-universe/internal/testutil"
)

func tableFromOffsets(offsets []int, price float64) *models.Table {
	t := models.NewTable(models.PriceSchema())
	for i, off := range offsets {
		t.Append(testutil.PriceRecord(testutil.BaseDate.AddDate(0, 0, off), price+float64(i)))
	}
	return t
}

func TestProperty_UpsertInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	offsetsGen := gen.SliceOf(gen.IntRange(0, 60))

	// Property: merged output has unique, strictly increasing dates.
	properties.Property("No duplicate dates after upsert", prop.ForAll(
		func(existing, incoming []int) bool {
			res := Upsert(tableFromOffsets(existing, 10), tableFromOffsets(incoming, 500), models.PriceSchema())
			return testutil.StrictlyIncreasing(res.Table)
		},
		offsetsGen,
		offsetsGen,
	))

	// Property: upserting the same incoming table twice changes nothing the second time.
	properties.Property("Upsert is idempotent", prop.ForAll(
		func(existing, incoming []int) bool {
			in := tableFromOffsets(incoming, 500)
			first := Upsert(tableFromOffsets(existing, 10), in, models.PriceSchema())
			second := Upsert(first.Table, in, models.PriceSchema())
			return second.Added == 0 && second.Replaced == 0 && testutil.TablesEqual(first.Table, second.Table)
		},
		offsetsGen,
		offsetsGen,
	))

	// Property: for every incoming date the merged value equals the incoming value.
	properties.Property("Incoming rows win on overlap", prop.ForAll(
		func(existing, incoming []int) bool {
			in := tableFromOffsets(incoming, 500)
			res := Upsert(tableFromOffsets(existing, 10), in, models.PriceSchema())
			want := in.Clone()
			want.Normalize()
			for _, r := range want.Records {
				got, ok := res.Table.Find(r.Date)
				if !ok || !got.Equal(r) {
					return false
				}
			}
			return true
		},
		offsetsGen,
		offsetsGen,
	))

	// Property: every stored date survives and Added counts only new dates.
	properties.Property("Existing dates are kept and Added counts new dates", prop.ForAll(
		func(existing, incoming []int) bool {
			ex := tableFromOffsets(existing, 10)
			res := Upsert(ex, tableFromOffsets(incoming, 500), models.PriceSchema())
			seen := map[int]bool{}
			for _, o := range existing {
				seen[o] = true
			}
			newDates := map[int]bool{}
			for _, o := range incoming {
				if !seen[o] {
					newDates[o] = true
				}
			}
			for _, o := range existing {
				if _, ok := res.Table.Find(testutil.BaseDate.AddDate(0, 0, o)); !ok {
					return false
				}
			}
			if len(existing) == 0 {
				return res.Added == len(uniq(incoming))
			}
			return res.Added == len(newDates) && res.Table.Len() == len(seen)+len(newDates)
		},
		offsetsGen,
		offsetsGen,
	))

	properties.TestingRun(t)
}

func uniq(xs []int) map[int]bool {
	out := map[int]bool{}
	for _, x := range xs {
		out[x] = true
	}
	return out
}
