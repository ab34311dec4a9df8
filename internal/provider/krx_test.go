package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"global-universe/internal/models"
	"global-universe/internal/testutil"
)

func TestKRXIndexOHLCV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, krxDataPath, r.URL.Path)
		assert.Equal(t, krxOHLCVBld, r.PostForm.Get("bld"))
		assert.Equal(t, "1", r.PostForm.Get("indIdx"))
		assert.Equal(t, "001", r.PostForm.Get("indIdx2"))
		assert.Equal(t, "20240102", r.PostForm.Get("strtDd"))
		assert.Equal(t, "20240103", r.PostForm.Get("endDd"))
		assert.NotEmpty(t, r.Header.Get("Referer"))
		w.Write([]byte(`{"output":[
		  {"TRD_DD":"2024/01/03","OPNPRC_IDX":"2,650.10","HGPRC_IDX":"2,660.00","LWPRC_IDX":"2,600.00","CLSPRC_IDX":"2,607.31","ACC_TRDVOL":"512,345"},
		  {"TRD_DD":"2024/01/02","OPNPRC_IDX":"2,645.00","HGPRC_IDX":"2,670.00","LWPRC_IDX":"2,640.00","CLSPRC_IDX":"2,669.81","ACC_TRDVOL":"400,000"}
		]}`))
	}))
	defer srv.Close()

	k := NewKRX(testClient(), srv.URL)
	from := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	tbl, err := k.IndexOHLCV(context.Background(), "1001", from, from.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, from, tbl.Records[0].Date, "rows are sorted ascending")

	v, ok := tbl.Records[1].Value(models.ColClose)
	require.True(t, ok)
	assert.InDelta(t, 2607.31, v, 1e-9)
	vol, _ := tbl.Records[1].Value(models.ColVolume)
	assert.InDelta(t, 512345, vol, 1e-9)
}

func TestKRXFundamentalsDashIsAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"output":[
		  {"TRD_DD":"2024/01/02","WT_PER":"12.5","WT_STKPRC_NETASST_RTO":"0.95","DIV_YD":"-"},
		  {"TRD_DD":"2024/01/03","WT_PER":"-","WT_STKPRC_NETASST_RTO":"-","DIV_YD":"-"}
		]}`))
	}))
	defer srv.Close()

	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	tbl, err := NewKRX(testClient(), srv.URL).IndexFundamentals(context.Background(), "1028", day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Equal(t, 1, tbl.Len(), "row with no values is skipped")
	_, ok := tbl.Records[0].Value(models.ColDividendYield)
	assert.False(t, ok)
}

func TestKRXRejectsShortCode(t *testing.T) {
	_, err := NewKRX(testClient(), "http://127.0.0.1:1").IndexOHLCV(context.Background(), "1", time.Now(), time.Now())
	assert.Error(t, err)
}

func TestParseKRXNumber(t *testing.T) {
	v, ok := parseKRXNumber(" 1,234.5 ")
	assert.True(t, ok)
	assert.Equal(t, 1234.5, v)

	for _, s := range []string{"", "-", "n/a"} {
		_, ok := parseKRXNumber(s)
		assert.False(t, ok, s)
	}
}

func TestPercentToFraction(t *testing.T) {
	tbl := models.NewTable(models.ValuationSchema())
	for i, dy := range []float64{1.8, 2.1, 0.9} {
		r := models.NewRecord(testutil.BaseDate.AddDate(0, 0, i))
		r.Values[models.ColDividendYield] = dy
		tbl.Append(r)
	}
	require.True(t, PercentToFraction(tbl, models.ColDividendYield))
	v, _ := tbl.Records[0].Value(models.ColDividendYield)
	assert.InDelta(t, 0.018, v, 1e-12)

	// already fractions: untouched
	assert.False(t, PercentToFraction(tbl, models.ColDividendYield))
	assert.False(t, PercentToFraction(models.NewTable(models.Schema{}), models.ColDividendYield))
}
