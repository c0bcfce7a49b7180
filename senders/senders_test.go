package senders

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fiffu/trailerwatch/config"
	"github.com/fiffu/trailerwatch/lib/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testBase() base {
	cfg := &config.Config{BotName: "Trailerwatch"}
	cfg.Mailgun.Domain = "mg.example.com"
	cfg.Mailgun.APIKey = "key"
	cfg.Mailgun.SenderFrom = "Trailerwatch <bot@mg.example.com>"
	return base{zap.NewNop(), cfg, http.DefaultTransport}
}

func testEvent() *models.DistributionEvent {
	return &models.DistributionEvent{
		ID:         "evt-1",
		VideoID:    "abc",
		VideoURL:   "https://youtu.be/abc",
		VideoTitle: "Heat 2 | Teaser",
		Movie: models.MovieInfo{
			Title:       "Heat 2",
			URL:         "https://www.themoviedb.org/movie/9",
			PosterURL:   "https://image.tmdb.org/t/p/original/p.jpg",
			Genres:      "Crime",
			ReleaseDate: "N/A",
			Rating:      "N/A",
		},
	}
}

func TestDiscordSend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/webhooks/1/token", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("wait"))

		var payload discordPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "Trailerwatch", payload.Username)
		assert.Equal(t, "https://youtu.be/abc", payload.Content)
		require.Len(t, payload.Embeds, 1)
		assert.Equal(t, "Heat 2", payload.Embeds[0].Title)
		assert.Equal(t, "https://image.tmdb.org/t/p/original/p.jpg", payload.Embeds[0].Image.URL)
		assert.Len(t, payload.Embeds[0].Fields, 3)

		_, _ = w.Write([]byte(`{"id":"1234"}`))
	}))
	t.Cleanup(server.Close)

	d := &discordSender{base: testBase()}
	sub := &models.Subscription{EndpointID: "chan", Platform: PlatformDiscord, Credential: server.URL + "/api/webhooks/1/token"}

	id, err := d.Send(context.Background(), sub, testEvent())
	require.NoError(t, err)
	assert.Equal(t, "1234", id)
}

func TestDiscordSend_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   Outcome
	}{
		{"unknown webhook", http.StatusNotFound, `{"message":"Unknown Webhook","code":10015}`, OutcomePermanent},
		{"invalid token", http.StatusUnauthorized, `{"message":"Invalid Webhook Token","code":50027}`, OutcomePermanent},
		{"rate limited", http.StatusTooManyRequests, `{"message":"You are being rate limited.","retry_after":1.5}`, OutcomeTransient},
		{"server error", http.StatusBadGateway, ``, OutcomeTransient},
		{"bad payload", http.StatusBadRequest, `{"message":"Invalid Form Body","code":50035}`, OutcomeTransient},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			t.Cleanup(server.Close)

			d := &discordSender{base: testBase()}
			_, err := d.Send(context.Background(), &models.Subscription{Credential: server.URL}, testEvent())
			require.Error(t, err)
			assert.Equal(t, tc.want, Classify(err))

			var deliveryErr *DeliveryError
			require.ErrorAs(t, err, &deliveryErr)
			assert.Equal(t, tc.status, deliveryErr.Status)
		})
	}
}

func TestDiscordSend_NetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	d := &discordSender{base: testBase()}
	_, err := d.Send(context.Background(), &models.Subscription{Credential: url}, testEvent())
	require.Error(t, err)
	assert.Equal(t, OutcomeTransient, Classify(err))
}

func TestMailgunSend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mg.example.com/messages", r.URL.Path)
		assert.Equal(t, "fan@example.com", r.FormValue("to"))
		assert.Contains(t, r.FormValue("subject"), "Heat 2")
		assert.Contains(t, r.FormValue("html"), "Crime")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"<msg-1@mg.example.com>","message":"Queued. Thank you."}`))
	}))
	t.Cleanup(server.Close)

	e := &mailgunSender{base: testBase(), apiBase: server.URL + "/v3"}
	id, err := e.Send(context.Background(), &models.Subscription{Credential: "fan@example.com"}, testEvent())
	require.NoError(t, err)
	assert.Equal(t, "<msg-1@mg.example.com>", id)
}

func TestMailgunSend_BadRecipientIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"to parameter is not a valid address. please check documentation"}`))
	}))
	t.Cleanup(server.Close)

	e := &mailgunSender{base: testBase(), apiBase: server.URL + "/v3"}
	_, err := e.Send(context.Background(), &models.Subscription{Credential: "not-an-address"}, testEvent())
	require.Error(t, err)
	assert.Equal(t, OutcomePermanent, Classify(err))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, OutcomeDelivered, Classify(nil))
	assert.Equal(t, OutcomeTransient, Classify(errors.New("connection reset")))
	assert.Equal(t, OutcomeTransient, Classify(context.DeadlineExceeded))
	assert.Equal(t, OutcomeTransient, Classify(&DeliveryError{Status: 503}))
	assert.Equal(t, OutcomePermanent, Classify(&DeliveryError{Status: 404, Permanent: true}))
	assert.Equal(t, "permanent", OutcomePermanent.String())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 3))
	assert.Equal(t, "ab…", truncate("abcd", 3))
}
