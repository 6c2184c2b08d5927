// Package rules implements the declarative rule registry and dispatcher:
// named rules pair trigger event names with ordered action lists, are loaded
// once from YAML documents into an immutable registry, and are matched
// against incoming events in load order. Action execution is delegated to an
// external ActionHandler; the dispatcher only decides what fires and in what
// order, and surfaces enforcement failures.
package rules

// Rule is a single declarative unit: trigger conditions plus an ordered
// action list. Parent/children links group rules into a forest for
// diagnostics; they never influence dispatch.
type Rule struct {
	Name        string   `yaml:"-"`
	Description string   `yaml:"description"`
	Parent      string   `yaml:"parent"`
	Children    []string `yaml:"children"`
	Path        string   `yaml:"path"`
	Triggers    []string `yaml:"triggers"`
	Actions     []string `yaml:"actions"`
	Enforced    bool     `yaml:"enforced"`
}

// IsHub reports whether the rule only groups children and never fires itself.
func (r *Rule) IsHub() bool {
	return len(r.Triggers) == 0 && len(r.Children) > 0
}

// Matches reports whether the event name is one of the rule's triggers.
func (r *Rule) Matches(event string) bool {
	for _, t := range r.Triggers {
		if t == event {
			return true
		}
	}
	return false
}

// FiredRule is one dispatch result: the rule that matched and the actions to
// run, in declared order. Actions are opaque identifiers; running them is the
// caller's ActionHandler's job.
type FiredRule struct {
	Rule    *Rule
	Actions []string
}
