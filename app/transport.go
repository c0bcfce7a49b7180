package app

import (
	"net/http"
	"time"

	"github.com/fiffu/trailerwatch/config"
	"go.uber.org/zap"
)

// NewTransport is shared by every outbound client. It stamps the configured
// User-Agent, which Reddit requires, and logs each request at debug level.
func NewTransport(cfg *config.Config, log *zap.Logger) http.RoundTripper {
	return &transport{http.DefaultTransport, log, cfg.UserAgent}
}

type transport struct {
	base      http.RoundTripper
	log       *zap.Logger
	userAgent string
}

func (tpt *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if tpt.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", tpt.userAgent)
	}

	start := time.Now()
	res, err := tpt.base.RoundTrip(req)

	fields := []any{"method", req.Method, "host", req.URL.Host, "path", req.URL.Path, "elapsed_msecs", time.Since(start).Milliseconds()}
	if err != nil {
		tpt.log.Sugar().Debugw("Outbound request failed", append(fields, "err", err)...)
		return res, err
	}
	tpt.log.Sugar().Debugw("Outbound request", append(fields, "status", res.StatusCode)...)
	return res, nil
}
