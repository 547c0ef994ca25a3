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
			Namespace: "simmodem",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "simmodem",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	modemPacketsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simmodem",
			Subsystem: "modem",
			Name:      "packets_sent_total",
			Help:      "Outbound modem packets handed to the transport.",
		},
		[]string{"modem", "kind", "result"},
	)
	modemEncodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simmodem",
			Subsystem: "modem",
			Name:      "encode_errors_total",
			Help:      "Outbound modem packets rejected by the codec.",
		},
		[]string{"modem", "reason"},
	)
	modemInbound = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simmodem",
			Subsystem: "modem",
			Name:      "inbound_total",
			Help:      "Inbound modem packets by filter result.",
		},
		[]string{"modem", "result"},
	)
	relayFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simmodem",
			Subsystem: "relay",
			Name:      "frames_forwarded_total",
			Help:      "Packet frames forwarded by the relay, per delivery.",
		},
		[]string{"result"},
	)
	relayPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "simmodem",
			Subsystem: "relay",
			Name:      "peers",
			Help:      "Connected relay peers.",
		},
	)
	queueDrops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simmodem",
			Subsystem: "transport",
			Name:      "queue_drops_total",
			Help:      "Inbound buffers dropped because a queue was full.",
		},
		[]string{"queue"},
	)
)

const (
	InboundAccepted    = "accepted"
	InboundPortClosed  = "port_closed"
	InboundWrongTarget = "wrong_target"
	InboundMalformed   = "malformed"
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			modemPacketsSent,
			modemEncodeErrors,
			modemInbound,
			relayFrames,
			relayPeers,
			queueDrops,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordModemSend counts one transport hand-off; kind is "send" or "broadcast".
func RecordModemSend(modem, kind string, ok bool) {
	RegisterMetrics()
	result := "ok"
	if !ok {
		result = "failed"
	}
	modemPacketsSent.WithLabelValues(modem, kind, result).Inc()
}

func RecordModemEncodeError(modem, reason string) {
	RegisterMetrics()
	modemEncodeErrors.WithLabelValues(modem, reason).Inc()
}

func RecordModemInbound(modem, result string) {
	RegisterMetrics()
	modemInbound.WithLabelValues(modem, result).Inc()
}

func RecordRelayForward(ok bool) {
	RegisterMetrics()
	relayFrames.WithLabelValues(strconv.FormatBool(ok)).Inc()
}

func SetRelayPeers(n int) {
	RegisterMetrics()
	relayPeers.Set(float64(n))
}

func RecordQueueDrop(queue string) {
	RegisterMetrics()
	queueDrops.WithLabelValues(queue).Inc()
}
