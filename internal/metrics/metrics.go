package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DecryptFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Name:      "decrypt_fallback_total",
		Help:      "Stored message bodies returned as-is because they could not be decrypted.",
	}, []string{"reason"})

	ConflictsAbsorbed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Name:      "conflicts_absorbed_total",
		Help:      "Uniqueness conflicts recovered locally instead of surfaced to callers.",
	}, []string{"kind"})

	MessageWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Name:      "message_writes_total",
		Help:      "Message mutations by message kind and operation.",
	}, []string{"kind", "op"})

	PresenceDemotions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chat",
		Name:      "presence_demotions_total",
		Help:      "Presence records demoted by the sweeper.",
	})

	WebsocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chat",
		Name:      "websocket_connections",
		Help:      "Currently open websocket connections.",
	})
)
