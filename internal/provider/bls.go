package provider

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	apperrors "global-universe/internal/errors"
	"global-universe/internal/models"
)

const (
	DefaultBLSBaseURL = "https://api.bls.gov/publicAPI/v2/timeseries/data/"

	blsMaxSeries   = 50
	blsMaxYears    = 20
	blsSucceeded   = "REQUEST_SUCCEEDED"
	blsAnnualMonth = "M13"
)

// BLS implements SeriesProvider on the BLS public API v2. Several
// registration keys may be supplied; a key whose daily quota is exhausted is
// skipped for the rest of the process.
type BLS struct {
	client  *HTTPClient
	baseURL string

	mu   sync.Mutex
	keys []string
	next int
}

// NewBLS creates a BLS provider. An empty baseURL selects the public host.
func NewBLS(client *HTTPClient, baseURL string, keys []string) *BLS {
	if baseURL == "" {
		baseURL = DefaultBLSBaseURL
	}
	var clean []string
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			clean = append(clean, k)
		}
	}
	return &BLS{client: client, baseURL: baseURL, keys: clean}
}

// Name returns the provider name.
func (b *BLS) Name() string { return "bls" }

type blsRequest struct {
	SeriesID        []string `json:"seriesid"`
	StartYear       string   `json:"startyear"`
	EndYear         string   `json:"endyear"`
	RegistrationKey string   `json:"registrationkey,omitempty"`
}

type blsResponse struct {
	Status  string   `json:"status"`
	Message []string `json:"message"`
	Results struct {
		Series []struct {
			SeriesID string `json:"seriesID"`
			Data     []struct {
				Year   string `json:"year"`
				Period string `json:"period"`
				Value  string `json:"value"`
			} `json:"data"`
		} `json:"series"`
	} `json:"Results"`
}

// Series fetches monthly observations from start's year to the current year.
func (b *BLS) Series(ctx context.Context, ids []string, start time.Time) (*models.Table, error) {
	t := models.NewTable(models.Schema{Numeric: append([]string(nil), ids...)})
	startYear := start.Year()
	endYear := time.Now().Year()

	for i := 0; i < len(ids); i += blsMaxSeries {
		end := i + blsMaxSeries
		if end > len(ids) {
			end = len(ids)
		}
		for y := startYear; y <= endYear; y += blsMaxYears {
			ey := y + blsMaxYears - 1
			if ey > endYear {
				ey = endYear
			}
			if err := b.fetchChunk(ctx, ids[i:end], y, ey, t); err != nil {
				return nil, err
			}
		}
	}
	t.Normalize()
	return fromStart(t, start), nil
}

func (b *BLS) fetchChunk(ctx context.Context, ids []string, startYear, endYear int, into *models.Table) error {
	for {
		key, keyIdx := b.currentKey()
		req := blsRequest{
			SeriesID:        ids,
			StartYear:       strconv.Itoa(startYear),
			EndYear:         strconv.Itoa(endYear),
			RegistrationKey: key,
		}
		var resp blsResponse
		if err := b.client.PostJSON(ctx, b.baseURL, req, nil, &resp); err != nil {
			return err
		}
		if resp.Status != blsSucceeded {
			msg := strings.Join(resp.Message, "; ")
			if isQuotaMessage(msg) && b.retire(keyIdx) {
				continue
			}
			if isQuotaMessage(msg) {
				return apperrors.NewProviderError("bls", "series", msg, apperrors.ErrQuotaExceeded)
			}
			return apperrors.NewProviderError("bls", "series", fmt.Sprintf("%s: %s", resp.Status, msg), nil)
		}
		mergeBLS(resp, into)
		return nil
	}
}

func (b *BLS) currentKey() (string, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.next >= len(b.keys) {
		return "", -1
	}
	return b.keys[b.next], b.next
}

// retire moves past key idx and reports whether another key remains.
func (b *BLS) retire(idx int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if idx < 0 {
		return false
	}
	if b.next == idx {
		b.next++
	}
	return b.next < len(b.keys)
}

func isQuotaMessage(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "threshold") || strings.Contains(m, "daily limit") || strings.Contains(m, "exceeded")
}

func mergeBLS(resp blsResponse, into *models.Table) {
	byDate := make(map[time.Time]int, into.Len())
	for i, r := range into.Records {
		byDate[r.Date] = i
	}
	for _, s := range resp.Results.Series {
		for _, obs := range s.Data {
			if !strings.HasPrefix(obs.Period, "M") || obs.Period == blsAnnualMonth {
				continue
			}
			year, err1 := strconv.Atoi(obs.Year)
			month, err2 := strconv.Atoi(strings.TrimPrefix(obs.Period, "M"))
			v, err3 := strconv.ParseFloat(strings.TrimSpace(obs.Value), 64)
			if err1 != nil || err2 != nil || err3 != nil {
				continue
			}
			date := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
			i, ok := byDate[date]
			if !ok {
				into.Append(models.NewRecord(date))
				i = len(into.Records) - 1
				byDate[date] = i
			}
			into.Records[i].Values[s.SeriesID] = v
		}
	}
}

// fromStart drops rows before start.
func fromStart(t *models.Table, start time.Time) *models.Table {
	s := models.Day(start)
	out := models.NewTable(t.Schema)
	for _, r := range t.Records {
		if !r.Date.Before(s) {
			out.Append(r)
		}
	}
	return out
}
