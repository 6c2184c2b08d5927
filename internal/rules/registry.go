package rules

import (
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var log = logrus.WithField("component", "rules")

// MergePolicy decides what happens when the same rule name appears in more
// than one loaded document.
type MergePolicy int

const (
	// MergeLastWins keeps the definition from the last document, logging a
	// warning. The rule keeps its original position in dispatch order.
	MergeLastWins MergePolicy = iota
	// MergeReject fails the load on any duplicate name.
	MergeReject
)

// State of the registry load lifecycle.
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateReady
	StateLoadFailed
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateLoadFailed:
		return "load_failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Registry holds the merged rule set. It is populated exactly once by Load
// and is immutable afterwards, so concurrent Dispatch calls need no locking;
// the mutex only guards the load lifecycle itself. LoadFailed is terminal:
// a registry that failed to load never dispatches and never reloads.
type Registry struct {
	mu     sync.Mutex
	state  State
	rules  []*Rule // dispatch order (first registered, first fired)
	byName map[string]*Rule
}

func NewRegistry() *Registry {
	return &Registry{
		state:  StateUnloaded,
		byName: make(map[string]*Rule),
	}
}

// State returns the current lifecycle state.
func (r *Registry) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Get returns a rule by name.
func (r *Registry) Get(name string) (*Rule, bool) {
	rule, ok := r.byName[name]
	return rule, ok
}

// Rules returns all rules in dispatch order.
func (r *Registry) Rules() []*Rule {
	return r.rules
}

// Len is the number of registered rules.
func (r *Registry) Len() int {
	return len(r.rules)
}

// LoadFiles reads each path as one YAML rule document and loads them in
// order. Later files override earlier ones per the merge policy.
func (r *Registry) LoadFiles(policy MergePolicy, paths ...string) error {
	docs := make([][]byte, 0, len(paths))
	for _, p := range paths {
		content, err := os.ReadFile(p)
		if err != nil {
			r.failLoad()
			return fmt.Errorf("rules: read %s: %w", p, err)
		}
		docs = append(docs, content)
	}
	return r.Load(policy, docs...)
}

// Load parses the documents (each a mapping of rule name -> definition),
// merges them into the registry, and validates the result. On any error the
// registry transitions to LoadFailed and stays there.
func (r *Registry) Load(policy MergePolicy, docs ...[]byte) error {
	r.mu.Lock()
	if r.state != StateUnloaded {
		state := r.state
		r.mu.Unlock()
		return fmt.Errorf("rules: load in state %s (load is init-only)", state)
	}
	r.state = StateLoading
	r.mu.Unlock()

	for i, doc := range docs {
		if err := r.mergeDocument(doc, policy); err != nil {
			r.failLoad()
			return fmt.Errorf("rules: document %d: %w", i, err)
		}
	}
	if err := r.validate(); err != nil {
		r.failLoad()
		return err
	}

	r.mu.Lock()
	r.state = StateReady
	r.mu.Unlock()
	log.Infof("registry ready: %d rules loaded from %d document(s)", len(r.rules), len(docs))
	return nil
}

func (r *Registry) failLoad() {
	r.mu.Lock()
	r.state = StateLoadFailed
	r.mu.Unlock()
}

// docNode preserves the document's key order; yaml.v3 map decoding does not.
func (r *Registry) mergeDocument(doc []byte, policy MergePolicy) error {
	var node yaml.Node
	if err := yaml.Unmarshal(doc, &node); err != nil {
		return err
	}
	if node.Kind == 0 || len(node.Content) == 0 {
		return nil // empty document
	}
	root := node.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("rule document root must be a mapping, got %v", root.Kind)
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		name := root.Content[i].Value
		rule := &Rule{}
		if err := root.Content[i+1].Decode(rule); err != nil {
			return fmt.Errorf("rule %q: %w", name, err)
		}
		rule.Name = name

		if prev, exists := r.byName[name]; exists {
			if policy == MergeReject {
				return fmt.Errorf("duplicate rule %q", name)
			}
			log.Warnf("rule %q redefined, keeping last definition (was: %q)", name, prev.Description)
			*prev = *rule // definition replaced in place, dispatch position kept
			continue
		}
		r.byName[name] = rule
		r.rules = append(r.rules, rule)
	}
	return nil
}

// validate runs after all documents merged, so forward and cross-document
// references are fine.
func (r *Registry) validate() error {
	for _, rule := range r.rules {
		if len(rule.Triggers) == 0 && len(rule.Children) == 0 {
			return &ValidationError{Rule: rule.Name, Reason: "has neither triggers nor children"}
		}
		if rule.Parent != "" {
			if _, ok := r.byName[rule.Parent]; !ok {
				return &ValidationError{Rule: rule.Name, Reason: fmt.Sprintf("parent %q does not exist", rule.Parent)}
			}
		}
		for _, child := range rule.Children {
			if _, ok := r.byName[child]; !ok {
				return &ValidationError{Rule: rule.Name, Reason: fmt.Sprintf("child %q does not exist", child)}
			}
		}
		if len(rule.Triggers) == 0 && len(rule.Actions) > 0 {
			// dead actions: nothing can ever fire them
			log.Warnf("rule %q declares actions but no triggers; its actions can never run", rule.Name)
		}
	}
	return nil
}
