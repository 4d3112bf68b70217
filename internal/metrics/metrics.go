package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Submission outcomes used as the "outcome" label.
const (
	OutcomeAccepted    = "accepted"
	OutcomeRateLimited = "rate_limited"
	OutcomeInvalid     = "invalid"
	OutcomeFailed      = "dispatch_failed"
)

var (
	Submissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "contact_relay_submissions_total",
		Help: "Contact form submissions grouped by outcome",
	}, []string{"outcome"})
	MailSendSuccess = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "contact_relay_mail_send_success_total",
		Help: "Messages accepted by the mail provider",
	}, []string{"provider"})
	MailSendFailure = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "contact_relay_mail_send_failure_total",
		Help: "Messages the mail provider failed to accept",
	}, []string{"provider"})
	MailSendDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "contact_relay_mail_send_duration_seconds",
		Help:    "Time spent dispatching one message",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})
	// Tracked clients only ever grows; entries are not evicted.
	TrackedClients = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "contact_relay_tracked_clients",
		Help: "Distinct client addresses held by the attempt tracker",
	}, func() float64 { return readTracker(TrackerStats.Len) })
	PendingDecays = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "contact_relay_pending_attempt_decays",
		Help: "Recorded attempts still waiting to decay",
	}, func() float64 { return readTracker(TrackerStats.Pending) })
)

// TrackerStats is the part of the attempt tracker exported as gauges. The
// gauges are read at scrape time so decays during idle periods show up.
type TrackerStats interface {
	Len() int
	Pending() int
}

var (
	trackerMu sync.RWMutex
	tracker   TrackerStats
)

// ObserveTracker makes the tracker gauges report from t. A nil t reports 0.
func ObserveTracker(t TrackerStats) {
	trackerMu.Lock()
	defer trackerMu.Unlock()
	tracker = t
}

func readTracker(read func(TrackerStats) int) float64 {
	trackerMu.RLock()
	defer trackerMu.RUnlock()
	if tracker == nil {
		return 0
	}
	return float64(read(tracker))
}

func init() {
	prometheus.MustRegister(Submissions)
	prometheus.MustRegister(MailSendSuccess)
	prometheus.MustRegister(MailSendFailure)
	prometheus.MustRegister(MailSendDuration)
	prometheus.MustRegister(TrackedClients)
	prometheus.MustRegister(PendingDecays)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
