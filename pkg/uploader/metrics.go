package uploader

import "github.com/prometheus/client_golang/prometheus"

// uploaderMetrics counts key-block sync attempts by outcome, the
// uploader half of the metrics pkg/proofstore reports for the ingest
// and serve paths.
type uploaderMetrics struct {
	attempts *prometheus.CounterVec
}

func newUploaderMetrics(reg prometheus.Registerer) *uploaderMetrics {
	m := &uploaderMetrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tonproof",
			Subsystem: "uploader",
			Name:      "sync_attempts_total",
			Help:      "Count of key-block sync attempts, by pair and outcome.",
		}, []string{"pair", "outcome"}),
	}
	reg.MustRegister(m.attempts)
	return m
}

func (m *uploaderMetrics) observe(pair string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.attempts.WithLabelValues(pair, outcome).Inc()
}

// SetMetrics installs the optional Prometheus sink; call during
// construction in main.go when cfg.HTTP.EnableMetrics is set.
func (u *Uploader) SetMetrics(reg prometheus.Registerer) {
	if reg == nil {
		return
	}
	u.metrics = newUploaderMetrics(reg)
}
