package pipeline

import (
	"time"

	"github.com/fiffu/trailerwatch/lib/metrics"
	"github.com/fiffu/trailerwatch/lib/models"
)

// Report counts where each fetched item left the run.
type Report struct {
	RunID       string                     `json:"run_id"`
	Fetched     int                        `json:"fetched"`
	Ignored     int                        `json:"ignored"`     // failed stage 1
	Duplicate   int                        `json:"duplicate"`   // already in the ledger or earlier in the run
	Failed      int                        `json:"failed"`      // video lookup error
	Unconfirmed int                        `json:"unconfirmed"` // failed stage 2
	Unresolved  int                        `json:"unresolved"`  // no catalog match
	Emitted     int                        `json:"emitted"`
	Events      []models.DistributionEvent `json:"events"`
	Elapsed     time.Duration              `json:"elapsed"`
}

func (r *Report) Add(other *Report) {
	r.Ignored += other.Ignored
	r.Duplicate += other.Duplicate
	r.Failed += other.Failed
	r.Unconfirmed += other.Unconfirmed
	r.Unresolved += other.Unresolved
}

// keyvals renders the non-zero counts for Infow.
func (r *Report) keyvals() []any {
	args := []any{"run_id", r.RunID, "fetched", r.Fetched, "emitted", r.Emitted}
	for _, kv := range []struct {
		key string
		val int
	}{
		{"ignored", r.Ignored},
		{"duplicate", r.Duplicate},
		{"failed", r.Failed},
		{"unconfirmed", r.Unconfirmed},
		{"unresolved", r.Unresolved},
	} {
		if kv.val != 0 {
			args = append(args, kv.key, kv.val)
		}
	}
	return append(args, "elapsed_msecs", int(r.Elapsed.Milliseconds()))
}

func (r *Report) observe() {
	metrics.PipelineItems.WithLabelValues("fetched").Add(float64(r.Fetched))
	metrics.PipelineItems.WithLabelValues("ignored").Add(float64(r.Ignored))
	metrics.PipelineItems.WithLabelValues("duplicate").Add(float64(r.Duplicate))
	metrics.PipelineItems.WithLabelValues("failed").Add(float64(r.Failed))
	metrics.PipelineItems.WithLabelValues("unconfirmed").Add(float64(r.Unconfirmed))
	metrics.PipelineItems.WithLabelValues("unresolved").Add(float64(r.Unresolved))
	metrics.PipelineItems.WithLabelValues("emitted").Add(float64(r.Emitted))
	metrics.PipelineRunDuration.Observe(r.Elapsed.Seconds())
}
