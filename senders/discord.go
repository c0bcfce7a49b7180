package senders

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/carlmjohnson/requests"
	"github.com/fiffu/trailerwatch/lib/models"
)

// Discord's JSON error code for a deleted webhook.
const discordUnknownWebhook = 10015

const (
	discordColor          = 0x01B4E4
	discordDescriptionMax = 4096
)

type discordSender struct {
	base
}

type discordPayload struct {
	Username string         `json:"username,omitempty"`
	Content  string         `json:"content,omitempty"`
	Embeds   []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	URL         string              `json:"url,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Image       *discordEmbedImage  `json:"image,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
}

type discordEmbedImage struct {
	URL string `json:"url"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordAPIError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Send posts to the webhook URL stored as the subscription's credential.
func (d *discordSender) Send(ctx context.Context, sub *models.Subscription, evt *models.DistributionEvent) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	err := requests.URL(sub.Credential).
		Param("wait", "true").
		Transport(d.transport).
		BodyJSON(d.payload(evt)).
		AddValidator(validateDiscordResponse).
		ToJSON(&created).
		Fetch(ctx)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

func (d *discordSender) payload(evt *models.DistributionEvent) discordPayload {
	msg := trailerMessage{evt}
	movie := evt.Movie

	embed := discordEmbed{
		Title:       movie.Title,
		Description: truncate(movie.Description, discordDescriptionMax),
		URL:         movie.URL,
		Color:       discordColor,
		Fields: []discordEmbedField{
			{Name: "Genres", Value: orNA(movie.Genres), Inline: true},
			{Name: "Release Date", Value: orNA(movie.ReleaseDate), Inline: true},
			{Name: "Rating", Value: orNA(movie.Rating), Inline: true},
		},
	}
	if movie.PosterURL != "" {
		embed.Image = &discordEmbedImage{URL: movie.PosterURL}
	}

	return discordPayload{
		Username: d.cfg.BotName,
		Content:  msg.Link(),
		Embeds:   []discordEmbed{embed},
	}
}

func validateDiscordResponse(res *http.Response) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}

	var apiErr discordAPIError
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	_ = json.Unmarshal(body, &apiErr)

	return &DeliveryError{
		Platform:  PlatformDiscord,
		Status:    res.StatusCode,
		Code:      apiErr.Code,
		Permanent: isPermanentDiscordFailure(res.StatusCode, apiErr.Code),
		Err:       fmt.Errorf("discord returned %q", strings.TrimSpace(apiErr.Message)),
	}
}

// A deleted webhook answers 404 with code 10015; a regenerated token answers
// 401. Rate limits and server errors pass.
func isPermanentDiscordFailure(status, code int) bool {
	switch {
	case code == discordUnknownWebhook:
		return true
	case status == http.StatusNotFound, status == http.StatusUnauthorized, status == http.StatusForbidden:
		return true
	default:
		return false
	}
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}
