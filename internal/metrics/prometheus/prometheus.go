package prometheus

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/slok/cartpool/internal/metrics"
)

const prefix = "cartpool"

// Recorder is the Prometheus implementation of metrics.Recorder.
type Recorder struct {
	inflightSlots     prometheus.Gauge
	slotResults       *prometheus.HistogramVec
	proxyAcquisitions *prometheus.CounterVec
	notifications     *prometheus.CounterVec
}

var _ metrics.Recorder = (*Recorder)(nil)

// NewRecorder returns a new Prometheus recorder registered on reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		inflightSlots: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: prefix,
			Subsystem: "session",
			Name:      "inflight_slots",
			Help:      "The number of slots running a task.",
		}),
		slotResults: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: prefix,
			Subsystem: "session",
			Name:      "slot_duration_seconds",
			Help:      "The duration of the slots by result.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"status", "reason"}),
		proxyAcquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: prefix,
			Subsystem: "proxypool",
			Name:      "acquisitions_total",
			Help:      "The number of proxy acquisitions by result.",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: prefix,
			Subsystem: "notify",
			Name:      "sends_total",
			Help:      "The number of notification sends by sink and result.",
		}, []string{"sink", "success"}),
	}

	for _, c := range []prometheus.Collector{r.inflightSlots, r.slotResults, r.proxyAcquisitions, r.notifications} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (r *Recorder) AddInflightSlots(_ context.Context, quantity int) {
	r.inflightSlots.Add(float64(quantity))
}

func (r *Recorder) ObserveSlotResult(_ context.Context, status, reason string, duration time.Duration) {
	r.slotResults.WithLabelValues(status, reason).Observe(duration.Seconds())
}

func (r *Recorder) IncProxyAcquisition(_ context.Context, result string) {
	r.proxyAcquisitions.WithLabelValues(result).Inc()
}

func (r *Recorder) IncNotification(_ context.Context, sink string, success bool) {
	r.notifications.WithLabelValues(sink, strconv.FormatBool(success)).Inc()
}
