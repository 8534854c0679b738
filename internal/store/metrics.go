// Package store – domain metrics
//
// Prometheus collectors for the chat core. HTTP-level metrics live in the
// middleware package; these track the stores themselves. Labels are kept off
// the hot counters so venue ids (unbounded cardinality) never become labels.
package store

import "github.com/prometheus/client_golang/prometheus"

var (
	sessionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_sessions_created_total",
		Help: "Total number of chat sessions created.",
	})

	sessionsLeft = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_sessions_left_total",
		Help: "Total number of chat sessions explicitly left.",
	})

	sessionsExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_sessions_expired_total",
		Help: "Total number of chat sessions expired for idleness.",
	})

	activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_sessions_active",
		Help: "Current number of active chat sessions.",
	})

	messagesAppended = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_appended_total",
		Help: "Total number of messages accepted into chatroom logs.",
	})

	fanoutDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_fanout_dropped_total",
		Help: "Messages dropped for individual slow subscribers during fan-out.",
	})

	chatroomsPruned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_chatrooms_pruned_total",
		Help: "Idle, empty chatrooms removed by the background sweep.",
	})
)

func init() {
	prometheus.MustRegister(
		sessionsCreated, sessionsLeft, sessionsExpired, activeSessions,
		messagesAppended, fanoutDropped, chatroomsPruned,
	)
}
