// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FabricDashboards = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "moodpulse_fabric_dashboard_clients",
		Help: "Dashboard websocket subscribers currently connected",
	})

	FabricSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "moodpulse_fabric_session_sockets",
		Help: "Browser session websockets currently routed",
	})

	FabricSlowDropsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moodpulse_fabric_slow_drops_total",
		Help: "Dashboard clients disconnected for exceeding the send buffer limit",
	})

	FabricDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moodpulse_fabric_deliveries_total",
		Help: "Targeted intervention deliveries, by result (delivered, no_socket, write_failed)",
	}, []string{"result"})

	OutcomeWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moodpulse_outcome_writes_total",
		Help: "Outcome store writes, by store (snapshot, log) and result (ok, retried, dropped)",
	}, []string{"store", "result"})
)
