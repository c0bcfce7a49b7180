package app

import (
	"database/sql"
	"time"

	"github.com/fiffu/trailerwatch/lib/models"
	"github.com/fiffu/trailerwatch/lib/pipeline"
)

type SubscriptionView struct {
	EndpointID string  `json:"endpoint_id"`
	Platform   string  `json:"platform"`
	Active     bool    `json:"active"`
	CreatedAt  string  `json:"created_at"`
	DeadSince  *string `json:"dead_since"`
	LastError  string  `json:"last_error,omitempty"`
}

func (view SubscriptionView) From(entity models.Subscription) SubscriptionView {
	return SubscriptionView{
		EndpointID: entity.EndpointID,
		Platform:   entity.Platform,
		Active:     entity.Active,
		CreatedAt:  entity.CreatedAt.UTC().Format(time.RFC3339),
		DeadSince:  isoformat(entity.DeadSince),
		LastError:  entity.LastError,
	}
}

type TrailerView struct {
	VideoID     string `json:"video_id"`
	FirstSeenAt string `json:"first_seen_at"`
}

func (view TrailerView) From(entity models.SeenTrailer) TrailerView {
	return TrailerView{
		VideoID:     entity.VideoID,
		FirstSeenAt: entity.FirstSeenAt.UTC().Format(time.RFC3339),
	}
}

type EventView struct {
	ID         string           `json:"id"`
	VideoID    string           `json:"video_id"`
	VideoURL   string           `json:"video_url"`
	VideoTitle string           `json:"video_title"`
	Movie      models.MovieInfo `json:"movie"`
}

func (view EventView) From(entity models.DistributionEvent) EventView {
	return EventView{
		ID:         entity.ID,
		VideoID:    entity.VideoID,
		VideoURL:   entity.VideoURL,
		VideoTitle: entity.VideoTitle,
		Movie:      entity.Movie,
	}
}

type ReportView struct {
	RunID         string      `json:"run_id"`
	Fetched       int         `json:"fetched"`
	Ignored       int         `json:"ignored"`
	Duplicate     int         `json:"duplicate"`
	Failed        int         `json:"failed"`
	Unconfirmed   int         `json:"unconfirmed"`
	Unresolved    int         `json:"unresolved"`
	Emitted       int         `json:"emitted"`
	Events        []EventView `json:"events"`
	ElapsedMillis int64       `json:"elapsed_msecs"`
}

func (view ReportView) From(entity *pipeline.Report) ReportView {
	return ReportView{
		RunID:         entity.RunID,
		Fetched:       entity.Fetched,
		Ignored:       entity.Ignored,
		Duplicate:     entity.Duplicate,
		Failed:        entity.Failed,
		Unconfirmed:   entity.Unconfirmed,
		Unresolved:    entity.Unresolved,
		Emitted:       entity.Emitted,
		Events:        FromMany[models.DistributionEvent, EventView](entity.Events),
		ElapsedMillis: entity.Elapsed.Milliseconds(),
	}
}

type Fromable[Entity any, Repr any] interface {
	From(Entity) Repr
}

func FromMany[T any, U Fromable[T, U]](elems []T) []U {
	out := make([]U, len(elems))
	for i, t := range elems {
		var u U
		out[i] = u.From(t)
	}
	return out
}

func isoformat(t sql.NullTime) *string {
	if !t.Valid {
		return nil
	}
	s := t.Time.UTC().Format(time.RFC3339)
	return &s
}
