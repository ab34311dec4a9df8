package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "global-universe/internal/errors"
)

func TestBLSSeriesWideTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req blsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"WPSFD4", "LNS14000000"}, req.SeriesID)
		assert.Equal(t, "k1", req.RegistrationKey)
		w.Write([]byte(`{"status":"REQUEST_SUCCEEDED","Results":{"series":[
		  {"seriesID":"WPSFD4","data":[{"year":"2024","period":"M02","value":"145.1"},{"year":"2024","period":"M01","value":"144.2"},{"year":"2024","period":"M13","value":"1"}]},
		  {"seriesID":"LNS14000000","data":[{"year":"2024","period":"M01","value":"3.7"},{"year":"2024","period":"M02","value":"-"}]}
		]}}`))
	}))
	defer srv.Close()

	b := NewBLS(testClient(), srv.URL, []string{"k1", " "})
	tbl, err := b.Series(context.Background(), []string{"WPSFD4", "LNS14000000"}, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len(), "annual average M13 is ignored")

	jan := tbl.Records[0]
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), jan.Date)
	v, _ := jan.Value("LNS14000000")
	assert.Equal(t, 3.7, v)

	_, ok := tbl.Records[1].Value("LNS14000000")
	assert.False(t, ok)
}

func TestBLSRotatesKeysOnQuota(t *testing.T) {
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req blsRequest
		json.NewDecoder(r.Body).Decode(&req)
		keys = append(keys, req.RegistrationKey)
		if req.RegistrationKey == "spent" {
			w.Write([]byte(`{"status":"REQUEST_NOT_PROCESSED","message":["daily threshold for total number of requests allocated to user has been reached."]}`))
			return
		}
		w.Write([]byte(`{"status":"REQUEST_SUCCEEDED","Results":{"series":[]}}`))
	}))
	defer srv.Close()

	start := time.Date(time.Now().Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBLS(testClient(), srv.URL, []string{"spent", "fresh"})
	_, err := b.Series(context.Background(), []string{"X"}, start)
	require.NoError(t, err)
	assert.Equal(t, []string{"spent", "fresh"}, keys)

	only := NewBLS(testClient(), srv.URL, []string{"spent"})
	_, err = only.Series(context.Background(), []string{"X"}, start)
	assert.ErrorIs(t, err, apperrors.ErrQuotaExceeded)
}

func TestFREDSeries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/series/observations", r.URL.Path)
		assert.Equal(t, "secret", q.Get("api_key"))
		assert.Equal(t, "2024-01-01", q.Get("observation_start"))
		switch q.Get("series_id") {
		case "PSAVERT":
			w.Write([]byte(`{"observations":[{"date":"2024-01-01","value":"3.8"},{"date":"2024-02-01","value":"."}]}`))
		default:
			w.Write([]byte(`{"observations":[{"date":"2024-02-01","value":"312.2"}]}`))
		}
	}))
	defer srv.Close()

	f := NewFRED(testClient(), srv.URL, "secret")
	tbl, err := f.Series(context.Background(), []string{"PSAVERT", "CSUSHPISA"}, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())

	_, ok := tbl.Records[1].Value("PSAVERT")
	assert.False(t, ok, "'.' is a missing observation")
	v, _ := tbl.Records[1].Value("CSUSHPISA")
	assert.Equal(t, 312.2, v)
}

func TestFREDRequiresKey(t *testing.T) {
	_, err := NewFRED(testClient(), "", "").Series(context.Background(), []string{"X"}, time.Now())
	assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)
}
