package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var bansRequested = promauto.NewCounter(prometheus.CounterOpts{
	Name: "banbot_bans_requested_total",
	Help: "The total number of ban records created or replaced",
})

var bansLifted = promauto.NewCounter(prometheus.CounterOpts{
	Name: "banbot_bans_lifted_total",
	Help: "The total number of ban records deleted",
})

var bansEnforced = promauto.NewCounter(prometheus.CounterOpts{
	Name: "banbot_bans_enforced_total",
	Help: "The total number of outcast affiliations set in rooms",
})

var kicksIssued = promauto.NewCounter(prometheus.CounterOpts{
	Name: "banbot_kicks_issued_total",
	Help: "The total number of occupants kicked",
})

var enforcementErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "banbot_enforcement_errors_total",
	Help: "The total number of failed enforcement sub-actions",
}, []string{"action"})

var reconcileRuns = promauto.NewCounter(prometheus.CounterOpts{
	Name: "banbot_reconcile_runs_total",
	Help: "The total number of reconciliation sweeps",
})

var orphansAdopted = promauto.NewCounter(prometheus.CounterOpts{
	Name: "banbot_reconcile_orphans_adopted_total",
	Help: "The total number of room outcasts adopted into the ban store",
})

var bansReapplied = promauto.NewCounter(prometheus.CounterOpts{
	Name: "banbot_reconcile_bans_reapplied_total",
	Help: "The total number of bans re-applied to rooms during reconciliation",
})

var bansExpired = promauto.NewCounter(prometheus.CounterOpts{
	Name: "banbot_bans_expired_total",
	Help: "The total number of bans lifted by the expiry worker",
})
