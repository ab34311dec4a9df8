package fetcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "global-universe/internal/errors"
	"global-universe/internal/models"
	"global-universe/internal/provider"
	"global-universe/internal/testutil"
	"global-universe/pkg/utils"
)

var unavailable = &provider.APIError{StatusCode: 503, Message: "unavailable", Endpoint: "/chart"}

func fastRetry() utils.RetryConfig {
	return utils.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2}
}

func newFetcher(p provider.PriceProvider, today time.Time) *Fetcher {
	return New(p,
		WithRetry(fastRetry()),
		WithClock(utils.FixedClock(today.Add(12*time.Hour))),
		WithLocation(time.UTC),
	)
}

func TestFetchFirstDownloadUsesLongestWindow(t *testing.T) {
	today := testutil.BaseDate.AddDate(0, 0, 9)
	s := provider.NewStatic()
	s.Now = today
	s.SetPrices("SPY", testutil.PriceTable(testutil.BaseDate, 10, 100))

	res := newFetcher(s, today).Fetch(context.Background(), "SPY", nil)
	require.NoError(t, res.Err)
	assert.Equal(t, provider.WindowMax, res.Window)
	assert.Equal(t, 10, res.Table.Len())
	assert.Equal(t, models.PriceColumns, res.Table.Schema.Numeric)
}

func TestFetchWindowWalkSkipsFailedWindows(t *testing.T) {
	today := testutil.BaseDate.AddDate(0, 0, 9)
	s := provider.NewStatic()
	s.Now = today
	s.SetPrices("SPY", testutil.PriceTable(testutil.BaseDate, 10, 100))
	// max fails through every retry, 10y succeeds
	s.Fail(provider.OpHistory, "SPY", 3, unavailable)

	res := newFetcher(s, today).Fetch(context.Background(), "SPY", nil)
	require.NoError(t, res.Err)
	assert.Equal(t, provider.Window10Y, res.Window)
	assert.Equal(t, 4, res.Attempts)
}

func TestFetchAllWindowsEmpty(t *testing.T) {
	s := provider.NewStatic()
	res := newFetcher(s, testutil.BaseDate).Fetch(context.Background(), "NONE", nil)
	assert.NoError(t, res.Err)
	assert.True(t, res.Empty())
	assert.Equal(t, len(provider.Windows), s.Calls(provider.OpHistory, "NONE"))
}

func TestFetchFutureStartMakesNoRequest(t *testing.T) {
	s := provider.NewStatic()
	start := testutil.BaseDate.AddDate(0, 0, 1)

	res := newFetcher(s, testutil.BaseDate).Fetch(context.Background(), "SPY", &start)
	assert.NoError(t, res.Err)
	assert.True(t, res.Empty())
	assert.Zero(t, s.Calls(provider.OpHistory, "SPY"))
}

func TestFetchRangeIncludesToday(t *testing.T) {
	today := testutil.BaseDate.AddDate(0, 0, 9)
	s := provider.NewStatic()
	s.SetPrices("SPY", testutil.PriceTable(testutil.BaseDate, 10, 100))
	start := testutil.BaseDate.AddDate(0, 0, 7)

	res := newFetcher(s, today).Fetch(context.Background(), "SPY", &start)
	require.NoError(t, res.Err)
	require.Equal(t, 3, res.Table.Len())
	last, _ := res.Table.LastDate()
	assert.Equal(t, today, last)
}

func TestFetchRangeFallsBackTo5d(t *testing.T) {
	today := testutil.BaseDate.AddDate(0, 0, 9)
	s := provider.NewStatic()
	s.Now = today
	s.SetPrices("SPY", testutil.PriceTable(testutil.BaseDate, 10, 100))
	s.Fail(provider.OpHistory, "SPY", 3, unavailable)
	start := testutil.BaseDate.AddDate(0, 0, 8)

	res := newFetcher(s, today).Fetch(context.Background(), "SPY", &start)
	require.NoError(t, res.Err)
	assert.Equal(t, provider.Window5D, res.Window)
	require.Equal(t, 2, res.Table.Len(), "5d rows before start are filtered")
	assert.Equal(t, start, res.Table.Records[0].Date)
}

func TestFetchTotalFailureSetsErr(t *testing.T) {
	s := provider.NewStatic()
	s.Fail(provider.OpHistory, "SPY", -1, unavailable)
	start := testutil.BaseDate

	res := newFetcher(s, testutil.BaseDate.AddDate(0, 0, 3)).Fetch(context.Background(), "SPY", &start)
	require.Error(t, res.Err)
	assert.True(t, res.Empty())
	assert.Equal(t, 6, res.Attempts)

	var fe *apperrors.FetchError
	require.True(t, errors.As(res.Err, &fe))
	assert.Equal(t, "SPY", fe.Symbol)
	assert.Equal(t, provider.Window5D, fe.Window)
}

func TestFetchPermanentErrorIsNotRetried(t *testing.T) {
	s := provider.NewStatic()
	s.Fail(provider.OpHistory, "SPY", -1, &provider.APIError{StatusCode: 400, Message: "bad"})
	f := New(s, WithRetry(fastRetry()), WithWindows([]string{provider.Window1Y}))

	res := f.Fetch(context.Background(), "SPY", nil)
	require.Error(t, res.Err)
	assert.Equal(t, 1, s.Calls(provider.OpHistory, "SPY"))
}

func TestFetchNoDataIsEmptyNotError(t *testing.T) {
	s := provider.NewStatic()
	s.Fail(provider.OpHistory, "GONE", -1, apperrors.NewProviderError("yahoo", "history", "delisted", apperrors.ErrNoData))
	res := New(s, WithRetry(fastRetry()), WithWindows([]string{provider.WindowMax})).Fetch(context.Background(), "GONE", nil)
	assert.NoError(t, res.Err)
	assert.True(t, res.Empty())
}

func TestFetchTrimsToCanonicalColumns(t *testing.T) {
	tbl := models.NewTable(models.Schema{Numeric: []string{models.ColVolume, "Dividends", models.ColClose}})
	r := models.NewRecord(testutil.BaseDate)
	r.Values[models.ColClose] = 10
	r.Values[models.ColVolume] = 5
	r.Values["Dividends"] = 0.1
	tbl.Append(r)

	out := trim(tbl)
	assert.Equal(t, []string{models.ColClose, models.ColVolume}, out.Schema.Numeric)
	_, ok := out.Records[0].Values["Dividends"]
	assert.False(t, ok)
}

func TestFetchCancelledContext(t *testing.T) {
	s := provider.NewStatic()
	s.SetPrices("SPY", testutil.PriceTable(testutil.BaseDate, 3, 100))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newFetcher(s, testutil.BaseDate.AddDate(0, 0, 2)).Fetch(ctx, "SPY", nil)
	assert.Error(t, res.Err)
	assert.True(t, res.Empty())
}
