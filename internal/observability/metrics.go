package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simlink",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "simlink",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	channelFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simlink",
			Subsystem: "channel",
			Name:      "frames_total",
			Help:      "Frames moved through a shared channel.",
		},
		[]string{"segment", "direction"},
	)
	channelBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simlink",
			Subsystem: "channel",
			Name:      "bytes_total",
			Help:      "Payload bytes moved through a shared channel.",
		},
		[]string{"segment", "direction"},
	)
	channelWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "simlink",
			Subsystem: "channel",
			Name:      "wait_seconds",
			Help:      "Time spent blocked waiting for the peer.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		},
		[]string{"segment", "op"},
	)
	gymSteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simlink",
			Subsystem: "gym",
			Name:      "steps_total",
			Help:      "Completed observe/act exchanges.",
		},
		[]string{"env"},
	)
	gymStepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "simlink",
			Subsystem: "gym",
			Name:      "step_duration_seconds",
			Help:      "Round trip of one step including the peer's decision.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		},
		[]string{"env"},
	)
	gymActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simlink",
			Subsystem: "gym",
			Name:      "actions_total",
			Help:      "Actions handed to the environment, by execution result.",
		},
		[]string{"env", "executed"},
	)
	gymEnded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simlink",
			Subsystem: "gym",
			Name:      "sessions_ended_total",
			Help:      "Sessions that reached a terminal state, by reason.",
		},
		[]string{"env", "reason"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			channelFrames, channelBytes, channelWait,
			gymSteps, gymStepDuration, gymActions, gymEnded,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordChannelFrame counts one frame. direction is "send" or "recv".
func RecordChannelFrame(segment, direction string, size int) {
	RegisterMetrics()
	channelFrames.WithLabelValues(segment, direction).Inc()
	channelBytes.WithLabelValues(segment, direction).Add(float64(size))
}

func RecordChannelWait(segment, op string, waited time.Duration) {
	RegisterMetrics()
	channelWait.WithLabelValues(segment, op).Observe(waited.Seconds())
}

func RecordStep(env uint32, duration time.Duration) {
	RegisterMetrics()
	label := strconv.FormatUint(uint64(env), 10)
	gymSteps.WithLabelValues(label).Inc()
	gymStepDuration.WithLabelValues(label).Observe(duration.Seconds())
}

func RecordAction(env uint32, executed bool) {
	RegisterMetrics()
	gymActions.WithLabelValues(strconv.FormatUint(uint64(env), 10), strconv.FormatBool(executed)).Inc()
}

func RecordSessionEnded(env uint32, reason string) {
	RegisterMetrics()
	gymEnded.WithLabelValues(strconv.FormatUint(uint64(env), 10), reason).Inc()
}
