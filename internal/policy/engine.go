package policy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/ppiankov/cogito/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gopkg.in/yaml.v3"
)

// KeyDoNotRepeat is the policy key whose checks reject repeated requests
const KeyDoNotRepeat = "do_not_repeat"

// RepeatWindow is how long an authorized request counts as already answered
const RepeatWindow = time.Hour

var (
	// decisions counts authorizations by key and outcome
	decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cogito_policy_decisions_total",
		Help: "Policy decisions by policy key and decision",
	}, []string{"policy_key", "decision"})
)

type rule struct {
	id        string
	policyKey string
	pattern   *regexp.Regexp
	reason    string
}

// Engine authorizes policy_check steps against regex deny rules. Checks
// keyed do_not_repeat also deny a request already authorized earlier in
// the same session.
type Engine struct {
	rules   []rule
	seen    *gocache.Cache
	logger  *slog.Logger
	mu      sync.Mutex
	history []model.PolicyDecision
	limit   int
}

// NewEngine compiles the configured rules and any rules file
func NewEngine(cfg model.PolicyConfig, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	all := append([]model.PolicyRule(nil), cfg.Rules...)
	if cfg.RulesFile != "" {
		fromFile, err := LoadRulesFile(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
		all = append(all, fromFile...)
	}

	e := &Engine{
		seen:   gocache.New(RepeatWindow, 10*time.Minute),
		logger: logger,
		limit:  1000,
	}
	for i, r := range all {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("policy rule %d (%s): %w", i, r.ID, err)
		}
		id := r.ID
		if id == "" {
			id = fmt.Sprintf("rule-%d", i+1)
		}
		e.rules = append(e.rules, rule{id: id, policyKey: r.PolicyKey, pattern: re, reason: r.Reason})
	}

	return e, nil
}

type rulesFile struct {
	Rules []model.PolicyRule `yaml:"rules"`
}

// LoadRulesFile reads deny rules from a YAML file with a top-level rules list
func LoadRulesFile(path string) ([]model.PolicyRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy rules: %w", err)
	}

	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse policy rules %s: %w", path, err)
	}
	return f.Rules, nil
}

// Authorize decides one policy check. The returned reason is suitable for
// showing in an audit trail.
func (e *Engine) Authorize(ctx context.Context, req model.PolicyRequest) (bool, string, error) {
	if err := ctx.Err(); err != nil {
		return false, "", err
	}

	for _, r := range e.rules {
		if r.policyKey != "" && !strings.EqualFold(r.policyKey, req.PolicyKey) {
			continue
		}
		if r.pattern.MatchString(req.Input) {
			reason := fmt.Sprintf("denied by rule %s", r.id)
			if r.reason != "" {
				reason += ": " + r.reason
			}
			decisions.WithLabelValues(req.PolicyKey, string(model.DecisionDeny)).Inc()
			return false, reason, nil
		}
	}

	if strings.EqualFold(req.PolicyKey, KeyDoNotRepeat) {
		// Add fails when the key is already live, so only one of two
		// concurrent identical requests is authorized
		if err := e.seen.Add(repeatKey(req), struct{}{}, gocache.DefaultExpiration); err != nil {
			decisions.WithLabelValues(req.PolicyKey, string(model.DecisionDeny)).Inc()
			return false, "request repeats an earlier turn in this session", nil
		}
	}

	decisions.WithLabelValues(req.PolicyKey, string(model.DecisionAllow)).Inc()
	return true, "no deny rule matched", nil
}

// RecordDecision appends d to the engine's in-process decision log. Durable
// copies are written with the run record.
func (e *Engine) RecordDecision(_ context.Context, d model.PolicyDecision) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, d)
	if len(e.history) > e.limit {
		e.history = e.history[len(e.history)-e.limit:]
	}

	e.logger.Debug("policy decision", "step", d.StepID, "policy_key", d.PolicyKey, "decision", d.Decision, "reason", d.Reason)
	return nil
}

// Decisions returns the most recent recorded decisions, oldest first
func (e *Engine) Decisions() []model.PolicyDecision {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.PolicyDecision(nil), e.history...)
}

func repeatKey(req model.PolicyRequest) string {
	scope := req.SessionID
	if scope == "" {
		scope = "user:" + req.UserID
	}
	return scope + "\x00" + strings.Join(strings.Fields(strings.ToLower(req.Input)), " ")
}
