package monitoring

import (
	"time"

	"huddle/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements ports.MetricsRecorder.
type PrometheusCollector struct {
	// Gauges
	connectionsActive prometheus.Gauge
	presenceEntries   prometheus.Gauge
	roomsActive       prometheus.Gauge

	// Counters
	connectionsTotal   prometheus.Counter
	connectionsRefused prometheus.Counter
	roomJoins          *prometheus.CounterVec
	messagesTotal      *prometheus.CounterVec
	deliveriesDropped  prometheus.Counter
	signalsRelayed     *prometheus.CounterVec
	storeErrors        *prometheus.CounterVec
	wsMessages         *prometheus.CounterVec

	// Histograms
	storeLatency     *prometheus.HistogramVec
	wsMessageLatency *prometheus.HistogramVec
}

// NewPrometheusCollector registers every huddle metric on reg. A nil reg
// means the default registerer.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusCollector{
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "huddle_connections_active",
			Help: "Number of live WebSocket connections",
		}),

		presenceEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "huddle_presence_entries",
			Help: "Number of users with a registered presence",
		}),

		roomsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "huddle_rooms_active",
			Help: "Number of non-empty rooms",
		}),

		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "huddle_connections_total",
			Help: "Total number of activated connections",
		}),

		connectionsRefused: factory.NewCounter(prometheus.CounterOpts{
			Name: "huddle_connections_rejected_total",
			Help: "Total number of connections rejected during authentication",
		}),

		roomJoins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_room_joins_total",
			Help: "Room join attempts by room kind and result",
		}, []string{"kind", "result"}),

		messagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_messages_total",
			Help: "Chat messages by room kind and result",
		}, []string{"kind", "result"}),

		deliveriesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "huddle_deliveries_dropped_total",
			Help: "Broadcast deliveries dropped because the receiver was gone or backed up",
		}),

		signalsRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_signals_total",
			Help: "Call signaling messages by kind and delivery outcome",
		}, []string{"signal", "delivered"}),

		storeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_store_errors_total",
			Help: "Failed message store operations",
		}, []string{"operation"}),

		wsMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_ws_messages_total",
			Help: "Inbound WebSocket messages by type and result code",
		}, []string{"type", "code"}),

		storeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "huddle_store_operation_duration_seconds",
			Help:    "Latency of message store operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"operation"}),

		wsMessageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "huddle_ws_message_duration_seconds",
			Help:    "Time spent handling one inbound WebSocket message",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"type"}),
	}
}

func (p *PrometheusCollector) ConnectionOpened() {
	p.connectionsActive.Inc()
	p.connectionsTotal.Inc()
}

func (p *PrometheusCollector) ConnectionClosed() {
	p.connectionsActive.Dec()
}

func (p *PrometheusCollector) ConnectionRejected() {
	p.connectionsRefused.Inc()
}

func (p *PrometheusCollector) PresenceSize(n int) {
	p.presenceEntries.Set(float64(n))
}

func (p *PrometheusCollector) ActiveRooms(n int) {
	p.roomsActive.Set(float64(n))
}

func (p *PrometheusCollector) RoomJoin(kind domain.RoomKind, result string) {
	p.roomJoins.WithLabelValues(string(kind), result).Inc()
}

func (p *PrometheusCollector) MessageSent(kind domain.RoomKind, result string) {
	p.messagesTotal.WithLabelValues(string(kind), result).Inc()
}

func (p *PrometheusCollector) DeliveryDropped() {
	p.deliveriesDropped.Inc()
}

func (p *PrometheusCollector) SignalRelayed(signal string, delivered bool) {
	outcome := "false"
	if delivered {
		outcome = "true"
	}
	p.signalsRelayed.WithLabelValues(signal, outcome).Inc()
}

func (p *PrometheusCollector) StoreOperation(op string, d time.Duration, err error) {
	p.storeLatency.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		p.storeErrors.WithLabelValues(op).Inc()
	}
}

func (p *PrometheusCollector) WebSocketMessage(msgType, code string, d time.Duration) {
	p.wsMessages.WithLabelValues(msgType, code).Inc()
	p.wsMessageLatency.WithLabelValues(msgType).Observe(d.Seconds())
}
