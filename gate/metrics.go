package gate

import "github.com/prometheus/client_golang/prometheus"

// Metrics wraps the optional Prometheus collectors for the core. A nil
// *Metrics is always safe to call methods through them via Gate's
// observe* helpers, which check for nil before touching these fields.
//
// Grounded on the corpus's shared instrumentation pattern (CounterVec
// keyed by an outcome label, registered once at construction) as seen in
// the retrieved CedrosPay HTTP server and bugielektrik-library's metrics
// wiring. Off by default: callers only get a non-nil Metrics by calling
// NewMetrics and passing it into Config.
type Metrics struct {
	decisions *prometheus.CounterVec
	agent     *prometheus.CounterVec
}

// NewMetrics constructs and registers the gate's Prometheus collectors
// against reg. Pass prometheus.DefaultRegisterer for the global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentpayments",
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Count of classifier decisions by kind.",
		}, []string{"kind"}),
		agent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentpayments",
			Subsystem: "gate",
			Name:      "agent_flow_outcomes_total",
			Help:      "Count of AgentFlow state machine outcomes.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.decisions, m.agent)
	return m
}

func decisionLabel(k DecisionKind) string {
	switch k {
	case DecisionPublicPath:
		return "public_path"
	case DecisionChallengeVerify:
		return "challenge_verify"
	case DecisionAgentRequest:
		return "agent_request"
	case DecisionBrowserWithCookie:
		return "browser_with_cookie"
	case DecisionBrowserNoCookie:
		return "browser_no_cookie"
	default:
		return "unknown"
	}
}

func (g *Gate) observeDecision(k DecisionKind) {
	if g.cfg.Metrics == nil {
		return
	}
	g.cfg.Metrics.decisions.WithLabelValues(decisionLabel(k)).Inc()
}

func (g *Gate) observeAgentOutcome(outcome string) {
	if g.cfg.Metrics == nil {
		return
	}
	g.cfg.Metrics.agent.WithLabelValues(outcome).Inc()
}
