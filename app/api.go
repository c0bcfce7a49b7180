package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fiffu/trailerwatch/config"
	"github.com/fiffu/trailerwatch/lib/catalog"
	"github.com/fiffu/trailerwatch/lib/models"
	"github.com/fiffu/trailerwatch/lib/pipeline"
	"github.com/fiffu/trailerwatch/lib/poller"
	"github.com/fiffu/trailerwatch/lib/registry"
	"github.com/fiffu/trailerwatch/lib/resolver"
	"github.com/fiffu/trailerwatch/senders"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var validate = validator.New()

func NewAPI(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, svc *Service) *http.Server {
	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	srv := &http.Server{Addr: addr, Handler: router(cfg, log, svc)}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Sugar().Errorw("HTTP server stopped", "err", err)
				}
			}()
			log.Sugar().Infow("HTTP server listening", "addr", addr)
			return nil
		},
		OnStop: srv.Shutdown,
	})

	return srv
}

func router(cfg *config.Config, log *zap.Logger, svc *Service) http.Handler {
	ctrl := &controller{log, svc}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if creds := cfg.GetCreds(); len(creds) > 0 {
			r.Use(middleware.BasicAuth("trailerwatch", creds))
		} else {
			log.Sugar().Info("Auth is disabled since no credentials are defined")
		}

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", ctrl.listSubscriptions)
			r.Post("/", ctrl.subscribe)
			r.Delete("/{endpoint_id}", ctrl.unsubscribe)
		})
		r.Route("/movies", func(r chi.Router) {
			r.Get("/search", ctrl.searchMovie)
			r.Get("/upcoming", ctrl.upcoming)
			r.Post("/upcoming/broadcast", ctrl.broadcastUpcoming)
		})
		r.Route("/trailers", func(r chi.Router) {
			r.Get("/", ctrl.listTrailers)
			r.Delete("/{video_id}", ctrl.forgetTrailer)
		})
		r.Post("/runs", ctrl.run)
	})

	return r
}

type controller struct {
	log *zap.Logger
	svc *Service
}

func (ctrl *controller) reject(w http.ResponseWriter, status int, err error) {
	if err != nil {
		http.Error(w, err.Error(), status)
	} else {
		w.WriteHeader(status)
	}
}

func (ctrl *controller) resolve(w http.ResponseWriter, status int, body any) {
	if b, err := json.Marshal(body); err != nil {
		ctrl.reject(w, http.StatusInternalServerError, err)
		ctrl.log.Sugar().Errorw("Request failed", "err", err)
		return
	} else {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if b != nil {
			w.Write(b)
		}
	}
}

// fail maps service errors onto status codes.
func (ctrl *controller) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, resolver.ErrNotFound):
		ctrl.reject(w, http.StatusNotFound, err)
	case errors.Is(err, senders.ErrUnsupportedPlatform):
		ctrl.reject(w, http.StatusBadRequest, err)
	case errors.Is(err, poller.ErrRunInProgress):
		ctrl.reject(w, http.StatusConflict, err)
	case errors.Is(err, pipeline.ErrSourceUnavailable), errors.Is(err, catalog.ErrUnavailable):
		ctrl.reject(w, http.StatusServiceUnavailable, err)
	default:
		ctrl.log.Sugar().Errorw("Request failed", "err", err)
		ctrl.reject(w, http.StatusInternalServerError, err)
	}
}

type subscribeRequest struct {
	EndpointID string `json:"endpoint_id" validate:"required,max=255"`
	Platform   string `json:"platform" validate:"required,oneof=discord email"`
	Credential string `json:"credential" validate:"required"`
}

func (req *subscribeRequest) Validate() error {
	if err := validate.Struct(req); err != nil {
		return err
	}
	switch req.Platform {
	case senders.PlatformDiscord:
		return validate.Var(req.Credential, "url,startswith=https://")
	case senders.PlatformEmail:
		return validate.Var(req.Credential, "email")
	}
	return nil
}

type runRequest struct {
	PollLimit      int  `json:"poll_limit" validate:"gte=1,lte=100"`
	ScoreThreshold int  `json:"score_threshold" validate:"gte=0"`
	RepostSeen     bool `json:"repost_seen"`
}

func (ctrl *controller) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	subs, err := ctrl.svc.ListSubscriptions(r.Context(), activeOnly)
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, FromMany[models.Subscription, SubscriptionView](subs))
}

func (ctrl *controller) subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctrl.reject(w, http.StatusBadRequest, err)
		return
	}
	if err := req.Validate(); err != nil {
		ctrl.reject(w, http.StatusBadRequest, err)
		return
	}

	sub, err := ctrl.svc.Subscribe(r.Context(), req.EndpointID, req.Platform, req.Credential)
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, SubscriptionView{}.From(*sub))
}

// unsubscribe deactivates the endpoint; ?purge=true deletes it.
func (ctrl *controller) unsubscribe(w http.ResponseWriter, r *http.Request) {
	endpointID := chi.URLParam(r, "endpoint_id")

	var err error
	if r.URL.Query().Get("purge") == "true" {
		err = ctrl.svc.RemoveSubscription(r.Context(), endpointID)
	} else {
		err = ctrl.svc.Unsubscribe(r.Context(), endpointID)
	}
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.reject(w, http.StatusNoContent, nil)
}

func (ctrl *controller) searchMovie(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if err := validate.Var(query, "required,max=200"); err != nil {
		ctrl.reject(w, http.StatusBadRequest, errors.New("q is required"))
		return
	}

	movie, err := ctrl.svc.FindMovie(r.Context(), query)
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, movie)
}

func (ctrl *controller) upcoming(w http.ResponseWriter, r *http.Request) {
	movies, err := ctrl.svc.Upcoming(r.Context())
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, movies)
}

func (ctrl *controller) broadcastUpcoming(w http.ResponseWriter, r *http.Request) {
	count, err := ctrl.svc.BroadcastUpcoming(r.Context())
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusAccepted, map[string]any{"movies": count})
}

func (ctrl *controller) listTrailers(w http.ResponseWriter, r *http.Request) {
	since := time.Now().UTC().Add(-7 * 24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			ctrl.reject(w, http.StatusBadRequest, fmt.Errorf("since must be RFC3339: %w", err))
			return
		}
		since = t
	}

	trailers, err := ctrl.svc.ListTrailers(r.Context(), since)
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, FromMany[models.SeenTrailer, TrailerView](trailers))
}

func (ctrl *controller) forgetTrailer(w http.ResponseWriter, r *http.Request) {
	removed, err := ctrl.svc.ForgetTrailer(r.Context(), chi.URLParam(r, "video_id"))
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	if !removed {
		ctrl.reject(w, http.StatusNotFound, nil)
		return
	}
	ctrl.reject(w, http.StatusNoContent, nil)
}

// run triggers a pipeline run. An empty body uses the scheduled settings.
func (ctrl *controller) run(w http.ResponseWriter, r *http.Request) {
	var opts *pipeline.RunOptions
	if r.ContentLength != 0 {
		var req runRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			ctrl.reject(w, http.StatusBadRequest, err)
			return
		}
		if err := validate.Struct(req); err != nil {
			ctrl.reject(w, http.StatusBadRequest, err)
			return
		}
		opts = &pipeline.RunOptions{
			PollLimit:      req.PollLimit,
			ScoreThreshold: req.ScoreThreshold,
			RepostSeen:     req.RepostSeen,
		}
	}

	report, err := ctrl.svc.Run(r.Context(), opts)
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, ReportView{}.From(report))
}
