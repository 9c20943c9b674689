package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	statusChecks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipnote_status_checks_total",
		Help: "Video readiness checks served.",
	})
	chatTurns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipnote_chat_turns_total",
		Help: "Chat turns streamed to completion.",
	})
	quotaRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipnote_quota_rejections_total",
		Help: "Chat turns rejected because the caller's quota was exhausted.",
	}, []string{"tier"})
)
