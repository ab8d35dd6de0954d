package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dispatchdesk",
		Name:      "chat_connections",
		Help:      "Open websocket connections.",
	})
	OnlineIdentities = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dispatchdesk",
		Name:      "chat_online_identities",
		Help:      "Distinct identities with at least one open connection.",
	})
	MessagesPersisted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dispatchdesk",
		Name:      "chat_messages_persisted_total",
		Help:      "Messages written to the store, by scope.",
	}, []string{"scope"})
	SendFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dispatchdesk",
		Name:      "chat_send_failures_total",
		Help:      "Client events rejected, by error code.",
	}, []string{"code"})
	DeliveriesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dispatchdesk",
		Name:      "chat_deliveries_dropped_total",
		Help:      "Outbound frames dropped because a connection buffer was full.",
	})
	ReactionChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dispatchdesk",
		Name:      "chat_reaction_changes_total",
		Help:      "Reaction writes, by result (added, removed, noop).",
	}, []string{"result"})
	TypingActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dispatchdesk",
		Name:      "chat_typing_active",
		Help:      "Live typing timers.",
	})
	Notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dispatchdesk",
		Name:      "chat_notifications_total",
		Help:      "Out-of-band notifications, by kind and result.",
	}, []string{"kind", "result"})
)

func init() {
	prometheus.MustRegister(
		Connections,
		OnlineIdentities,
		MessagesPersisted,
		SendFailures,
		DeliveriesDropped,
		ReactionChanges,
		TypingActive,
		Notifications,
	)
}
