package series

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"global-universe/internal/models"
	"global-universe/internal/testutil"
)

func TestUpsert_EmptyExistingAdoptsIncoming(t *testing.T) {
	in := testutil.PriceTable(testutil.BaseDate, 4, 100)
	res := Upsert(nil, in, models.PriceSchema())
	assert.Equal(t, 4, res.Added)
	assert.Equal(t, 0, res.Replaced)
	assert.True(t, testutil.TablesEqual(in, res.Table))
}

func TestUpsert_BothEmptyKeepsExpectedSchema(t *testing.T) {
	res := Upsert(nil, nil, models.ValuationSchema())
	require.NotNil(t, res.Table)
	assert.True(t, res.Table.Empty())
	assert.False(t, res.Changed())
	assert.Equal(t, models.ValuationSchema().Columns(), res.Table.Schema.Columns())
}

func TestUpsert_PlaceholderExistingKeepsSchema(t *testing.T) {
	placeholder := models.NewTable(models.PriceSchema())
	in := testutil.TableFromCloses(testutil.BaseDate, 1, 2)
	res := Upsert(placeholder, in, models.PriceSchema())
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, models.PriceColumns, res.Table.Schema.Numeric)
}

func TestUpsert_RevisionReplaces(t *testing.T) {
	existing := testutil.TableFromCloses(testutil.BaseDate, 1, 2, 3)
	revised := testutil.TableFromCloses(testutil.BaseDate.AddDate(0, 0, 2), 3.5, 4)

	res := Upsert(existing, revised, models.PriceSchema())
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.Replaced)
	require.Equal(t, 4, res.Table.Len())
	_, closes := res.Table.Column(models.ColClose)
	assert.Equal(t, []float64{1, 2, 3.5, 4}, closes)
}

func TestUpsert_IdenticalOverlapIsNoChange(t *testing.T) {
	existing := testutil.TableFromCloses(testutil.BaseDate, 1, 2, 3)
	res := Upsert(existing, testutil.TableFromCloses(testutil.BaseDate.AddDate(0, 0, 1), 2, 3), models.PriceSchema())
	assert.False(t, res.Changed())
}

func TestUpsert_DoesNotMutateInputs(t *testing.T) {
	existing := testutil.TableFromCloses(testutil.BaseDate, 1, 2)
	in := testutil.TableFromCloses(testutil.BaseDate.AddDate(0, 0, 1), 9)
	Upsert(existing, in, models.PriceSchema())
	_, closes := existing.Column(models.ColClose)
	assert.Equal(t, []float64{1, 2}, closes)
}

func TestSinceAndBetween(t *testing.T) {
	tbl := testutil.TableFromCloses(testutil.BaseDate, 1, 2, 3, 4, 5)
	assert.Equal(t, 2, Since(tbl, testutil.BaseDate.AddDate(0, 0, 2)).Len())
	assert.Equal(t, 3, Between(tbl, testutil.BaseDate.AddDate(0, 0, 1), testutil.BaseDate.AddDate(0, 0, 3)).Len())
	assert.Equal(t, 4, Between(tbl, testutil.BaseDate.AddDate(0, 0, 1), time.Time{}).Len(), "zero end is open")
	assert.Equal(t, 2, Between(tbl, time.Time{}, testutil.BaseDate.AddDate(0, 0, 1)).Len(), "zero start is open")
	assert.Nil(t, Since(nil, testutil.BaseDate))

	last, ok := LastDate(tbl)
	assert.True(t, ok)
	assert.True(t, last.Equal(testutil.BaseDate.AddDate(0, 0, 4)))
}

func TestMetricsChanged(t *testing.T) {
	tol := DefaultTolerance()
	fields := models.ValuationFields
	a := models.NewRecord(testutil.BaseDate)
	b := models.NewRecord(testutil.BaseDate)

	assert.False(t, MetricsChanged(a, b, fields, tol), "both absent")

	a.Values[models.ColTrailingPE] = 20
	assert.True(t, MetricsChanged(a, b, fields, tol), "absent vs present")

	b.Values[models.ColTrailingPE] = 20 * (1 + 1e-12)
	assert.False(t, MetricsChanged(a, b, fields, tol), "within rtol")

	b.Values[models.ColTrailingPE] = 20.001
	assert.True(t, MetricsChanged(a, b, fields, tol))

	b.Values[models.ColTrailingPE] = 20
	b.Values[models.ColPriceToBook] = math.NaN()
	assert.False(t, MetricsChanged(a, b, fields, tol), "NaN counts as absent")

	loose := Tolerance{Rel: 1e-3}
	b.Values[models.ColTrailingPE] = 20.001
	assert.False(t, MetricsChanged(a, b, fields, loose))
}
