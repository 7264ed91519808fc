package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Login outcome labels.
const (
	OutcomeDenied   = "denied"
	OutcomeLinked   = "linked"
	OutcomePending  = "pending"
	OutcomeTakeover = "takeover"
	OutcomeError    = "error"
)

// Group sync action labels.
const (
	ActionGrant  = "grant"
	ActionRevoke = "revoke"
	ActionNoop   = "noop"
)

var (
	LoginOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "piratenlogin_login_outcomes_total",
		Help: "Login reconciliations by outcome",
	}, []string{"outcome"})

	GroupSync = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "piratenlogin_group_sync_total",
		Help: "Authorization group synchronizations by action",
	}, []string{"action"})
)

// Register registers the login metrics on the given registry (or default if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{LoginOutcomes, GroupSync} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}
