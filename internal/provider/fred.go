package provider

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "global-universe/internal/errors"
	"global-universe/internal/models"
)

const DefaultFREDBaseURL = "https://api.stlouisfed.org/fred"

// FRED implements SeriesProvider on the St. Louis Fed observations API.
type FRED struct {
	client  *HTTPClient
	baseURL string
	apiKey  string
}

// NewFRED creates a FRED provider. An empty baseURL selects the public host.
func NewFRED(client *HTTPClient, baseURL, apiKey string) *FRED {
	if baseURL == "" {
		baseURL = DefaultFREDBaseURL
	}
	return &FRED{client: client, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

// Name returns the provider name.
func (f *FRED) Name() string { return "fred" }

type fredResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
	ErrorMessage string `json:"error_message"`
}

// Series fetches each ID in turn and joins them on date. Missing
// observations (".") are left absent.
func (f *FRED) Series(ctx context.Context, ids []string, start time.Time) (*models.Table, error) {
	if f.apiKey == "" {
		return nil, apperrors.NewProviderError("fred", "series", "FRED_API_KEY is not set", apperrors.ErrConfigInvalid)
	}
	t := models.NewTable(models.Schema{Numeric: append([]string(nil), ids...)})
	byDate := map[time.Time]int{}

	for _, id := range ids {
		params := url.Values{}
		params.Set("series_id", id)
		params.Set("api_key", f.apiKey)
		params.Set("file_type", "json")
		params.Set("observation_start", start.Format(models.DateLayout))
		params.Set("sort_order", "asc")

		var resp fredResponse
		if err := f.client.GetJSON(ctx, f.baseURL+"/series/observations", params, nil, &resp); err != nil {
			return nil, apperrors.Wrapf(err, "fred series %s", id)
		}
		if resp.ErrorMessage != "" {
			return nil, apperrors.NewProviderError("fred", "series", id+": "+resp.ErrorMessage, nil)
		}
		for _, obs := range resp.Observations {
			date, err := models.ParseDay(obs.Date)
			if err != nil {
				continue
			}
			v, err := strconv.ParseFloat(obs.Value, 64)
			if err != nil {
				continue
			}
			i, ok := byDate[date]
			if !ok {
				t.Append(models.NewRecord(date))
				i = len(t.Records) - 1
				byDate[date] = i
			}
			t.Records[i].Values[id] = v
		}
	}
	t.Normalize()
	return t, nil
}
