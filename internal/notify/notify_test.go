package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"global-universe/internal/config"
	"global-universe/internal/models"
)

func sampleSummary(withError bool) *models.RunSummary {
	start := time.Date(2024, 3, 4, 7, 30, 0, 0, time.UTC)
	sum := &models.RunSummary{
		ID:         "run-1",
		Kind:       models.RunPrices,
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
		Rows: []models.SummaryRow{
			{Symbol: "SPY", Status: models.StatusOK, Updated: true, Reason: "appended 1"},
			{Symbol: "XLK", Status: models.StatusNoChange, Reason: models.ReasonUpToDate},
		},
	}
	if withError {
		sum.Rows = append(sum.Rows, models.SummaryRow{Symbol: "EWJ", Status: models.StatusError, Reason: "error:timeout"})
	}
	return sum
}

type captured struct {
	mu     sync.Mutex
	bodies []map[string]interface{}
	paths  []string
}

func (c *captured) server(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		c.mu.Lock()
		c.bodies = append(c.bodies, body)
		c.paths = append(c.paths, r.URL.Path)
		c.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSummaryNotification(t *testing.T) {
	n := SummaryNotification(sampleSummary(false))
	assert.Equal(t, NotificationSummary, n.Type)
	assert.Equal(t, "prices update: 1 updated of 2", n.Title)
	assert.True(t, strings.HasPrefix(n.Message, "no_change: 1 | ok: 1"))
	assert.Equal(t, map[string]int{"ok": 1, "no_change": 1}, n.Data["counts"])

	n = SummaryNotification(sampleSummary(true))
	assert.Equal(t, NotificationError, n.Type)
	assert.Equal(t, "prices update: 1 errors", n.Title)
	assert.Contains(t, n.Message, "EWJ: error:timeout")
}

func TestSummaryNotificationCapsErrorList(t *testing.T) {
	sum := sampleSummary(false)
	for i := 0; i < maxListedErrors+3; i++ {
		sum.Rows = append(sum.Rows, models.SummaryRow{Name: "e", Status: models.StatusError, Reason: "error:x"})
	}
	n := SummaryNotification(sum)
	assert.Equal(t, maxListedErrors, strings.Count(n.Message, "e: error:x"))
	assert.True(t, strings.HasSuffix(n.Message, "..."))
}

func TestWebhookNotifierPostsJSON(t *testing.T) {
	var c captured
	srv := c.server(t, http.StatusNoContent)

	mn := NewMultiNotifier(config.NotificationConfig{
		Enabled: true,
		Webhook: config.WebhookConfig{Enabled: true, URL: srv.URL + "/hook"},
	}, zerolog.Nop())
	require.Equal(t, 1, mn.Channels())

	require.NoError(t, mn.Notify(context.Background(), sampleSummary(false)))
	require.Len(t, c.bodies, 1)
	body := c.bodies[0]
	assert.Equal(t, "summary", body["type"])
	assert.Equal(t, "2024-03-04T07:31:30Z", body["timestamp"])
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "run-1", data["run_id"])
	assert.Equal(t, float64(2), data["entries"])
}

func TestTelegramNotifierFormatsHTML(t *testing.T) {
	var c captured
	srv := c.server(t, http.StatusOK)

	tg := NewTelegramNotifier(config.TelegramConfig{Enabled: true, BotToken: "T", ChatID: "42"})
	tg.baseURL = srv.URL
	require.True(t, tg.IsEnabled())

	err := tg.Send(context.Background(), Notification{Title: "a<b", Message: "x & y"})
	require.NoError(t, err)
	require.Len(t, c.bodies, 1)
	assert.Equal(t, "/botT/sendMessage", c.paths[0])
	assert.Equal(t, "42", c.bodies[0]["chat_id"])
	assert.Equal(t, "<b>a&lt;b</b>\n\nx &amp; y", c.bodies[0]["text"])
	assert.Equal(t, "HTML", c.bodies[0]["parse_mode"])
}

func TestTelegramNotifierNeedsCredentials(t *testing.T) {
	tg := NewTelegramNotifier(config.TelegramConfig{Enabled: true, BotToken: "T"})
	assert.False(t, tg.IsEnabled())
	assert.NoError(t, tg.Send(context.Background(), Notification{}))
}

type stubChannel struct {
	name string
	err  error
	sent []Notification
}

func (s *stubChannel) Name() string    { return s.name }
func (s *stubChannel) IsEnabled() bool { return true }
func (s *stubChannel) Send(_ context.Context, n Notification) error {
	s.sent = append(s.sent, n)
	return s.err
}

func TestLevelErrorsOnly(t *testing.T) {
	mn := NewMultiNotifier(config.NotificationConfig{Level: config.NotifyErrorsOnly}, zerolog.Nop())
	ch := &stubChannel{name: "stub"}
	mn.AddChannel(ch)

	require.NoError(t, mn.Notify(context.Background(), sampleSummary(false)))
	assert.Empty(t, ch.sent, "clean runs are filtered")

	require.NoError(t, mn.Notify(context.Background(), sampleSummary(true)))
	assert.Len(t, ch.sent, 1)
}

func TestChannelFailuresAreJoined(t *testing.T) {
	mn := NewMultiNotifier(config.NotificationConfig{}, zerolog.Nop())
	boom := errors.New("boom")
	bad := &stubChannel{name: "bad", err: boom}
	good := &stubChannel{name: "good"}
	mn.AddChannel(bad)
	mn.AddChannel(good)

	err := mn.Notify(context.Background(), sampleSummary(false))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "bad:")
	assert.Len(t, good.sent, 1, "later channels still receive the message")
}

func TestWebhookNon2xxIsError(t *testing.T) {
	var c captured
	srv := c.server(t, http.StatusInternalServerError)
	w := NewWebhookNotifier(config.WebhookConfig{Enabled: true, URL: srv.URL})
	err := w.Send(context.Background(), Notification{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
