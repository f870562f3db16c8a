package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	metrics "github.com/soulteary/metrics-kit"
)

var (
	// Registry is the Prometheus registry for herald-shell metrics
	Registry *metrics.Registry

	// LoginTotal counts login attempts by result and reason
	LoginTotal *prometheus.CounterVec

	// TabSwitchTotal counts footer tab switches by tab
	TabSwitchTotal *prometheus.CounterVec

	// ConnectivityChangeTotal counts online/offline transitions
	ConnectivityChangeTotal *prometheus.CounterVec
)

func init() {
	Init()
}

// Init initializes herald-shell metrics
func Init() {
	Registry = metrics.NewRegistry("herald_shell")
	LoginTotal = Registry.Counter("login_total").
		Help("Total login attempts").
		Labels("result", "reason").
		BuildVec()
	TabSwitchTotal = Registry.Counter("tab_switch_total").
		Help("Total footer tab switches").
		Labels("tab").
		BuildVec()
	ConnectivityChangeTotal = Registry.Counter("connectivity_change_total").
		Help("Total connectivity state changes").
		Labels("state").
		BuildVec()
}

// RecordLogin records a login attempt (result: "success" or "failure", reason: e.g. "offline", "token_error")
func RecordLogin(result, reason string) {
	if LoginTotal != nil {
		LoginTotal.WithLabelValues(result, reason).Inc()
	}
}

// RecordTabSwitch records a switch to tab
func RecordTabSwitch(tab string) {
	if TabSwitchTotal != nil {
		TabSwitchTotal.WithLabelValues(tab).Inc()
	}
}

// RecordConnectivity records a transition to online or offline
func RecordConnectivity(connected bool) {
	if ConnectivityChangeTotal == nil {
		return
	}
	state := "offline"
	if connected {
		state = "online"
	}
	ConnectivityChangeTotal.WithLabelValues(state).Inc()
}
