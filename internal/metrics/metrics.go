// Package metrics registers prometheus instruments for command
// handling and chain traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lendchat",
		Name:      "commands_total",
		Help:      "Inbound commands by kind and outcome.",
	}, []string{"command", "outcome"})

	chainCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lendchat",
		Name:      "chain_calls_total",
		Help:      "Chain client calls by method and outcome.",
	}, []string{"method", "outcome"})
)

// RegisterSessionGauge exposes the pending-session count through a
// gauge that reads the store on every scrape.
func RegisterSessionGauge(count func() float64) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "lendchat",
		Name:      "sessions_pending",
		Help:      "Pending multi-step sessions.",
	}, count)
}

// ObserveCommand records one handled command.
func ObserveCommand(command string, err error) {
	commandsTotal.WithLabelValues(command, outcome(err)).Inc()
}

// ObserveChainCall records one chain client call.
func ObserveChainCall(method string, err error) {
	chainCallsTotal.WithLabelValues(method, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
