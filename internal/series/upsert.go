// Package series merges incremental fetches into stored tables.
package series

import (
	"math"
	"time"

	"global-universe/internal/models"
)

// UpsertResult is the merged table with counts of what changed.
type UpsertResult struct {
	Table    *models.Table
	Added    int // dates not previously present
	Replaced int // present dates whose values changed
}

// Changed reports whether the merge altered the stored table.
func (r UpsertResult) Changed() bool {
	return r.Added > 0 || r.Replaced > 0
}

// Upsert merges incoming into existing. Duplicate dates keep the incoming
// record and the result is sorted ascending. When existing is absent or empty
// the result is incoming, or an empty table with the expected schema when
// incoming is empty too.
func Upsert(existing, incoming *models.Table, expected models.Schema) UpsertResult {
	in := incoming.Clone()
	if in == nil {
		in = models.NewTable(expected)
	}
	in.Normalize()

	if existing.Empty() {
		schema := in.Schema
		if len(schema.Columns()) == 0 {
			schema = expected
		}
		if existing != nil {
			schema = existing.Schema.Union(schema)
		}
		in.Schema = schema
		return UpsertResult{Table: in, Added: in.Len()}
	}

	merged := existing.Clone()
	merged.Normalize()
	merged.Schema = merged.Schema.Union(in.Schema)

	index := make(map[time.Time]int, merged.Len())
	for i, r := range merged.Records {
		index[r.Date] = i
	}

	var res UpsertResult
	for _, r := range in.Records {
		if i, ok := index[r.Date]; ok {
			if !merged.Records[i].Equal(r) {
				merged.Records[i] = r
				res.Replaced++
			}
			continue
		}
		merged.Append(r)
		res.Added++
	}
	merged.Normalize()
	res.Table = merged
	return res
}

// Since returns the records strictly after date.
func Since(t *models.Table, date time.Time) *models.Table {
	if t == nil {
		return nil
	}
	d := models.Day(date)
	out := models.NewTable(t.Schema)
	for _, r := range t.Records {
		if r.Date.After(d) {
			out.Append(r)
		}
	}
	return out
}

// Between returns the records with from <= date <= to. A zero bound is
// open.
func Between(t *models.Table, from, to time.Time) *models.Table {
	if t == nil {
		return nil
	}
	out := models.NewTable(t.Schema)
	for _, r := range t.Records {
		if !from.IsZero() && r.Date.Before(models.Day(from)) {
			continue
		}
		if !to.IsZero() && r.Date.After(models.Day(to)) {
			continue
		}
		out.Append(r)
	}
	return out
}

// LastDate returns the most recent date stored in t.
func LastDate(t *models.Table) (time.Time, bool) {
	return t.LastDate()
}

// Tolerance bounds the float comparison used for snapshot change detection.
type Tolerance struct {
	Rel float64
	Abs float64
}

// DefaultTolerance returns rtol 1e-9 and atol 1e-12.
func DefaultTolerance() Tolerance {
	return Tolerance{Rel: 1e-9, Abs: 1e-12}
}

// Close reports |a-b| <= Abs + Rel*|b|.
func (t Tolerance) Close(a, b float64) bool {
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return a == b
	}
	return math.Abs(a-b) <= t.Abs+t.Rel*math.Abs(b)
}

// MetricsChanged reports whether any field differs between a and b. Two
// absent values are equal; an absent value against a present one is a change.
func MetricsChanged(a, b models.Record, fields []string, tol Tolerance) bool {
	for _, f := range fields {
		av, aok := a.Value(f)
		bv, bok := b.Value(f)
		if !aok && !bok {
			continue
		}
		if aok != bok {
			return true
		}
		if !tol.Close(av, bv) {
			return true
		}
	}
	return false
}
