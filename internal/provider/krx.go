package provider

import (
	"context"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "global-universe/internal/errors"
	"global-universe/internal/models"
)

const (
	DefaultKRXBaseURL = "http://data.krx.co.kr"

	krxDataPath       = "/comm/bldAttendant/getJsonData.cmd"
	krxReferer        = "http://data.krx.co.kr/contents/MDC/MDI/mdiLoader/index.cmd?menuId=MDC0201"
	krxOHLCVBld       = "dbms/MDC/STAT/standard/MDCSTAT00301"
	krxFundamentalBld = "dbms/MDC/STAT/standard/MDCSTAT00702"
	krxDayLayout      = "2006/01/02"
	krxParamLayout    = "20060102"
)

// KRX implements IndexProvider on the data.krx.co.kr JSON endpoint.
type KRX struct {
	client  *HTTPClient
	baseURL string
}

// NewKRX creates a KRX provider. An empty baseURL selects the public host.
func NewKRX(client *HTTPClient, baseURL string) *KRX {
	if baseURL == "" {
		baseURL = DefaultKRXBaseURL
	}
	return &KRX{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

type krxResponse struct {
	Output []map[string]string `json:"output"`
}

// IndexOHLCV returns Open/High/Low/Close/Volume bars for an index code such
// as 1001 (KOSPI).
func (k *KRX) IndexOHLCV(ctx context.Context, code string, from, to time.Time) (*models.Table, error) {
	rows, err := k.query(ctx, krxOHLCVBld, code, from, to)
	if err != nil {
		return nil, err
	}
	cols := map[string]string{
		"OPNPRC_IDX": models.ColOpen,
		"HGPRC_IDX":  models.ColHigh,
		"LWPRC_IDX":  models.ColLow,
		"CLSPRC_IDX": models.ColClose,
		"ACC_TRDVOL": models.ColVolume,
	}
	return krxTable(rows, cols, models.Schema{Numeric: []string{
		models.ColOpen, models.ColHigh, models.ColLow, models.ColClose, models.ColVolume,
	}})
}

// IndexFundamentals returns PER/PBR/dividend yield rows. The dividend yield
// is returned as published (percent).
func (k *KRX) IndexFundamentals(ctx context.Context, code string, from, to time.Time) (*models.Table, error) {
	rows, err := k.query(ctx, krxFundamentalBld, code, from, to)
	if err != nil {
		return nil, err
	}
	cols := map[string]string{
		"WT_PER":                models.ColTrailingPE,
		"WT_STKPRC_NETASST_RTO": models.ColPriceToBook,
		"DIV_YD":                models.ColDividendYield,
	}
	return krxTable(rows, cols, models.Schema{Numeric: append([]string(nil), models.ValuationFields...)})
}

func (k *KRX) query(ctx context.Context, bld, code string, from, to time.Time) ([]map[string]string, error) {
	code = strings.TrimSpace(code)
	if len(code) < 2 {
		return nil, apperrors.NewProviderError("krx", bld, "invalid index code "+code, nil)
	}
	form := url.Values{}
	form.Set("bld", bld)
	form.Set("indIdx", code[:1])
	form.Set("indIdx2", code[1:])
	form.Set("strtDd", from.Format(krxParamLayout))
	form.Set("endDd", to.Format(krxParamLayout))
	form.Set("share", "2")
	form.Set("money", "3")
	form.Set("csvxls_isNo", "false")

	var resp krxResponse
	headers := map[string]string{"Referer": krxReferer}
	if err := k.client.PostForm(ctx, k.baseURL+krxDataPath, form, headers, &resp); err != nil {
		return nil, err
	}
	return resp.Output, nil
}

func krxTable(rows []map[string]string, cols map[string]string, schema models.Schema) (*models.Table, error) {
	t := models.NewTable(schema)
	for _, row := range rows {
		date, err := time.Parse(krxDayLayout, strings.TrimSpace(row["TRD_DD"]))
		if err != nil {
			return nil, apperrors.NewProviderError("krx", "parse", "bad trade date "+row["TRD_DD"], err)
		}
		rec := models.NewRecord(date)
		for src, dst := range cols {
			if v, ok := parseKRXNumber(row[src]); ok {
				rec.Values[dst] = v
			}
		}
		if len(rec.Values) == 0 {
			continue
		}
		t.Append(rec)
	}
	t.Normalize()
	return t, nil
}

// parseKRXNumber reads numbers like "2,512.34"; "-" and blanks are absent.
func parseKRXNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" || s == "-" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// PercentToFraction converts a dividend-yield column from percent to a
// fraction when more than half of its present values exceed 1.
func PercentToFraction(t *models.Table, col string) bool {
	var n, above int
	for _, r := range t.Records {
		if v, ok := r.Value(col); ok {
			n++
			if v > 1 {
				above++
			}
		}
	}
	if n == 0 || float64(above)/float64(n) <= 0.5 {
		return false
	}
	for _, r := range t.Records {
		if v, ok := r.Value(col); ok {
			r.Values[col] = v / 100
		}
	}
	return true
}
