package planner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// plansTotal counts plans by where they came from
	plansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cogito_planner_plans_total",
		Help: "Plans produced by source (llm, rule_based)",
	}, []string{"source"})

	// fallbacks counts rule-based fallbacks by cause
	fallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cogito_planner_fallbacks_total",
		Help: "Rule-based fallbacks by reason",
	}, []string{"reason"})

	// lockedRuleOverrides counts enforcement actions
	lockedRuleOverrides = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cogito_planner_locked_rule_overrides_total",
		Help: "Locked-fact overrides by rule and action",
	}, []string{"rule", "action"})

	// auditDropped counts audit events lost to a full or closed queue
	auditDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cogito_planner_audit_dropped_total",
		Help: "Audit events dropped before reaching the sink",
	})

	// auditFailures counts sink errors and panics
	auditFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cogito_planner_audit_sink_failures_total",
		Help: "Audit events the sink failed to record",
	})
)
