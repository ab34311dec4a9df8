package provider

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "global-universe/internal/errors"
	"global-universe/internal/models"
)

const DefaultYahooBaseURL = "https://query1.finance.yahoo.com"

// quoteRequestFields are requested from the batch quote endpoint so missing
// metrics can be derived.
var quoteRequestFields = []string{
	"trailingPE",
	"priceToBook",
	"trailingAnnualDividendYield",
	"dividendYield",
	"trailingAnnualDividendRate",
	"bookValue",
	"epsTrailingTwelveMonths",
	"regularMarketPrice",
	"currency",
	"quoteType",
}

// Yahoo implements PriceProvider and QuoteProvider on the public Yahoo
// Finance chart, quote and quoteSummary endpoints.
type Yahoo struct {
	client  *HTTPClient
	baseURL string
}

// NewYahoo creates a Yahoo provider. An empty baseURL selects the public host.
func NewYahoo(client *HTTPClient, baseURL string) *Yahoo {
	if baseURL == "" {
		baseURL = DefaultYahooBaseURL
	}
	return &Yahoo{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// yahooChart is the response structure from the chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency  string `json:"currency"`
				GMTOffset int64  `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *yahooError `json:"error"`
	} `json:"chart"`
}

type yahooError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// History downloads daily bars. Bars whose prices are all null are dropped.
func (y *Yahoo) History(ctx context.Context, symbol string, req HistoryRequest) (*models.Table, error) {
	params := url.Values{}
	params.Set("interval", "1d")
	params.Set("includeAdjustedClose", "true")
	if req.IsRange() {
		params.Set("period1", strconv.FormatInt(req.From.Unix(), 10))
		params.Set("period2", strconv.FormatInt(req.To.Unix(), 10))
	} else {
		params.Set("range", req.Window)
	}

	u := fmt.Sprintf("%s/v8/finance/chart/%s", y.baseURL, url.PathEscape(symbol))
	headers := map[string]string{"Referer": "https://finance.yahoo.com/quote/" + url.PathEscape(symbol)}

	var chart yahooChart
	if err := y.client.GetJSON(ctx, u, params, headers, &chart); err != nil {
		return nil, err
	}
	if e := chart.Chart.Error; e != nil {
		if strings.EqualFold(e.Code, "Not Found") {
			return nil, apperrors.NewProviderError("yahoo", "history", e.Description, apperrors.ErrNoData)
		}
		return nil, apperrors.NewProviderError("yahoo", "history", e.Description, nil)
	}

	table := models.NewTable(models.Schema{Numeric: []string{
		models.ColOpen, models.ColHigh, models.ColLow, models.ColClose, models.ColVolume,
	}})
	if len(chart.Chart.Result) == 0 {
		return table, nil
	}
	res := chart.Chart.Result[0]
	if len(res.Indicators.Quote) == 0 {
		return table, nil
	}
	q := res.Indicators.Quote[0]
	var adj []*float64
	if len(res.Indicators.AdjClose) > 0 && len(res.Indicators.AdjClose[0].AdjClose) > 0 {
		adj = res.Indicators.AdjClose[0].AdjClose
		table.Schema = models.PriceSchema()
	}

	for i, ts := range res.Timestamp {
		rec := models.NewRecord(time.Unix(ts+res.Meta.GMTOffset, 0).UTC())
		setAt(rec.Values, models.ColOpen, q.Open, i)
		setAt(rec.Values, models.ColHigh, q.High, i)
		setAt(rec.Values, models.ColLow, q.Low, i)
		setAt(rec.Values, models.ColClose, q.Close, i)
		setAt(rec.Values, models.ColVolume, q.Volume, i)
		setAt(rec.Values, models.ColAdjClose, adj, i)
		if !hasPrice(rec) {
			continue
		}
		table.Append(rec)
	}
	table.Normalize()
	return table, nil
}

func setAt(dst map[string]float64, col string, src []*float64, i int) {
	if i >= len(src) || src[i] == nil || math.IsNaN(*src[i]) {
		return
	}
	dst[col] = *src[i]
}

func hasPrice(r models.Record) bool {
	for _, c := range []string{models.ColOpen, models.ColHigh, models.ColLow, models.ColClose, models.ColAdjClose} {
		if _, ok := r.Value(c); ok {
			return true
		}
	}
	return false
}

type yahooQuoteResponse struct {
	QuoteResponse struct {
		Result []yahooQuote `json:"result"`
		Error  *yahooError  `json:"error"`
	} `json:"quoteResponse"`
}

type yahooQuote struct {
	Symbol                      string   `json:"symbol"`
	Currency                    string   `json:"currency"`
	QuoteType                   string   `json:"quoteType"`
	TrailingPE                  *float64 `json:"trailingPE"`
	PriceToBook                 *float64 `json:"priceToBook"`
	TrailingAnnualDividendYield *float64 `json:"trailingAnnualDividendYield"`
	DividendYield               *float64 `json:"dividendYield"`
	TrailingAnnualDividendRate  *float64 `json:"trailingAnnualDividendRate"`
	BookValue                   *float64 `json:"bookValue"`
	EPSTrailingTwelveMonths     *float64 `json:"epsTrailingTwelveMonths"`
	RegularMarketPrice          *float64 `json:"regularMarketPrice"`
}

// QuoteFields fetches valuation fields for many symbols in one request,
// deriving dividend yield, P/B and P/E from price data when the direct
// fields are missing.
func (y *Yahoo) QuoteFields(ctx context.Context, symbols []string) (map[string]*models.Quote, error) {
	out := make(map[string]*models.Quote, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}
	params := url.Values{}
	params.Set("symbols", strings.Join(symbols, ","))
	params.Set("fields", strings.Join(quoteRequestFields, ","))

	var resp yahooQuoteResponse
	headers := map[string]string{"Referer": "https://finance.yahoo.com/"}
	if err := y.client.GetJSON(ctx, y.baseURL+"/v7/finance/quote", params, headers, &resp); err != nil {
		return nil, err
	}
	if e := resp.QuoteResponse.Error; e != nil {
		return nil, apperrors.NewProviderError("yahoo", "quote", e.Description, nil)
	}

	for _, item := range resp.QuoteResponse.Result {
		if item.Symbol == "" {
			continue
		}
		out[item.Symbol] = item.toQuote()
	}
	return out, nil
}

func (q yahooQuote) toQuote() *models.Quote {
	out := &models.Quote{
		Symbol:        q.Symbol,
		Currency:      q.Currency,
		QuoteType:     q.QuoteType,
		TrailingPE:    finite(q.TrailingPE),
		PriceToBook:   finite(q.PriceToBook),
		DividendYield: finite(q.TrailingAnnualDividendYield),
	}
	price := finite(q.RegularMarketPrice)

	if out.DividendYield == nil {
		if dy := finite(q.DividendYield); dy != nil {
			out.DividendYield = dy
		} else if rate := finite(q.TrailingAnnualDividendRate); rate != nil && price != nil && *price != 0 {
			v := *rate / *price
			out.DividendYield = &v
		}
	}
	if out.PriceToBook == nil {
		if bv := finite(q.BookValue); bv != nil && *bv != 0 && price != nil {
			v := *price / *bv
			out.PriceToBook = &v
		}
	}
	if out.TrailingPE == nil {
		if eps := finite(q.EPSTrailingTwelveMonths); eps != nil && *eps != 0 && price != nil {
			// tiny or negative EPS gives meaningless ratios
			if v := *price / *eps; !math.IsInf(v, 0) && !math.IsNaN(v) && v > 0 {
				out.TrailingPE = &v
			}
		}
	}
	return out
}

func finite(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}

type rawValue struct {
	Raw *float64 `json:"raw"`
}

type yahooSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			SummaryDetail struct {
				TrailingPE                  rawValue `json:"trailingPE"`
				TrailingAnnualDividendYield rawValue `json:"trailingAnnualDividendYield"`
				DividendYield               rawValue `json:"dividendYield"`
				Currency                    string   `json:"currency"`
			} `json:"summaryDetail"`
			DefaultKeyStatistics struct {
				PriceToBook rawValue `json:"priceToBook"`
			} `json:"defaultKeyStatistics"`
			Price struct {
				Currency  string `json:"currency"`
				QuoteType string `json:"quoteType"`
			} `json:"price"`
		} `json:"result"`
		Error *yahooError `json:"error"`
	} `json:"quoteSummary"`
}

// Info fetches valuation fields for a single symbol. A symbol with no
// metrics yields ErrNoData.
func (y *Yahoo) Info(ctx context.Context, symbol string) (*models.Quote, error) {
	params := url.Values{}
	params.Set("modules", "summaryDetail,defaultKeyStatistics,price")
	u := fmt.Sprintf("%s/v10/finance/quoteSummary/%s", y.baseURL, url.PathEscape(symbol))

	var resp yahooSummaryResponse
	if err := y.client.GetJSON(ctx, u, params, nil, &resp); err != nil {
		return nil, err
	}
	if e := resp.QuoteSummary.Error; e != nil {
		return nil, apperrors.NewProviderError("yahoo", "info", e.Description, apperrors.ErrNoData)
	}
	if len(resp.QuoteSummary.Result) == 0 {
		return nil, apperrors.NewProviderError("yahoo", "info", symbol, apperrors.ErrNoData)
	}

	r := resp.QuoteSummary.Result[0]
	q := &models.Quote{
		Symbol:        symbol,
		TrailingPE:    finite(r.SummaryDetail.TrailingPE.Raw),
		PriceToBook:   finite(r.DefaultKeyStatistics.PriceToBook.Raw),
		DividendYield: finite(r.SummaryDetail.TrailingAnnualDividendYield.Raw),
		Currency:      r.Price.Currency,
		QuoteType:     r.Price.QuoteType,
	}
	if q.DividendYield == nil {
		q.DividendYield = finite(r.SummaryDetail.DividendYield.Raw)
	}
	if q.Currency == "" {
		q.Currency = r.SummaryDetail.Currency
	}
	if !q.HasMetrics() {
		return nil, apperrors.NewProviderError("yahoo", "info", symbol, apperrors.ErrNoData)
	}
	return q, nil
}
