package rules

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Event is an incoming event plus contextual metadata handed to action
// handlers.
type Event struct {
	Name string
	Meta map[string]string
	Time time.Time
}

// ActionHandler executes a named action for a fired rule. The dispatcher
// never interprets action identifiers itself.
type ActionHandler interface {
	Execute(ctx context.Context, action string, ev Event) error
}

// ActionHandlerFunc adapts a function to the ActionHandler interface.
type ActionHandlerFunc func(ctx context.Context, action string, ev Event) error

func (f ActionHandlerFunc) Execute(ctx context.Context, action string, ev Event) error {
	return f(ctx, action, ev)
}

// AuditLogger receives one record per dispatch and one per fired rule.
type AuditLogger interface {
	Dispatched(event string, fired []string, ts time.Time)
	RuleFired(event, rule string, actions []string, ts time.Time)
}

// logAudit writes audit records through logrus. The default collaborator.
type logAudit struct {
	entry *logrus.Entry
}

func (a *logAudit) Dispatched(event string, fired []string, ts time.Time) {
	a.entry.WithFields(logrus.Fields{
		"event": event,
		"fired": fired,
		"ts":    ts.Format(time.RFC3339),
	}).Info("dispatch")
}

func (a *logAudit) RuleFired(event, rule string, actions []string, ts time.Time) {
	a.entry.WithFields(logrus.Fields{
		"event":   event,
		"rule":    rule,
		"actions": actions,
		"ts":      ts.Format(time.RFC3339),
	}).Info("rule fired")
}

// Dispatcher matches events against a ready registry and runs the fired
// rules' actions through the handler collaborator. Stateless per call.
type Dispatcher struct {
	reg     *Registry
	handler ActionHandler
	audit   AuditLogger
}

// NewDispatcher builds a dispatcher over a registry. handler may be nil when
// no actions should run (dry dispatch); audit may be nil to use the logrus
// audit collaborator.
func NewDispatcher(reg *Registry, handler ActionHandler, audit AuditLogger) *Dispatcher {
	if audit == nil {
		audit = &logAudit{entry: log.WithField("audit", true)}
	}
	return &Dispatcher{reg: reg, handler: handler, audit: audit}
}

// Dispatch returns the rules whose triggers contain ev.Name, in registry
// load order, and runs each fired rule's actions in declared order. Failures
// of enforced rules are collected and returned as one EnforcementViolations
// after every fired rule has been processed; failures of non-enforced rules
// are logged only.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) ([]FiredRule, error) {
	if d.reg.State() != StateReady {
		return nil, ErrRegistryNotReady
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	var fired []FiredRule
	for _, rule := range d.reg.Rules() {
		if rule.Matches(ev.Name) {
			fired = append(fired, FiredRule{Rule: rule, Actions: rule.Actions})
		}
	}

	names := make([]string, len(fired))
	for i, f := range fired {
		names[i] = f.Rule.Name
	}
	d.audit.Dispatched(ev.Name, names, ev.Time)

	var violations []*EnforcementViolation
	for _, f := range fired {
		d.audit.RuleFired(ev.Name, f.Rule.Name, f.Actions, ev.Time)
		if d.handler == nil {
			continue
		}
		for _, action := range f.Actions {
			err := d.handler.Execute(ctx, action, ev)
			if err == nil {
				continue
			}
			if f.Rule.Enforced {
				violations = append(violations, &EnforcementViolation{
					Rule:   f.Rule.Name,
					Action: action,
					Err:    err,
				})
				continue
			}
			log.Warnf("rule %q action %q failed (not enforced): %v", f.Rule.Name, action, err)
		}
	}

	if len(violations) > 0 {
		return fired, &EnforcementViolations{Event: ev.Name, Violations: violations}
	}
	return fired, nil
}
