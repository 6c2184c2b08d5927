package rules

// Ancestors returns the parent chain of a rule, nearest first. The walk is
// bounded by the registry size: a chain longer than that can only mean the
// parent links form a cycle, which is reported as a CycleError.
func (r *Registry) Ancestors(name string) ([]string, error) {
	rule, ok := r.byName[name]
	if !ok {
		return nil, &ValidationError{Rule: name, Reason: "unknown rule"}
	}
	var chain []string
	for steps := 0; rule.Parent != ""; steps++ {
		if steps >= len(r.rules) {
			return nil, &CycleError{Rule: name}
		}
		parent, ok := r.byName[rule.Parent]
		if !ok {
			// load-time validation rejects dangling parents, so this only
			// happens on a registry that skipped validation
			return nil, &ValidationError{Rule: rule.Name, Reason: "dangling parent " + rule.Parent}
		}
		chain = append(chain, parent.Name)
		rule = parent
	}
	return chain, nil
}

// Descendants returns every rule reachable from name through parent links
// pointing at it or through its children lists, in dispatch order.
// Diagnostic only: dispatch never consults the hierarchy.
func (r *Registry) Descendants(name string) ([]string, error) {
	if _, ok := r.byName[name]; !ok {
		return nil, &ValidationError{Rule: name, Reason: "unknown rule"}
	}
	member := map[string]bool{name: true}
	// Rules may reference descendants in any order, so iterate until the
	// membership set stops growing. Bounded by registry size.
	for range r.rules {
		grew := false
		for _, rule := range r.rules {
			if member[rule.Name] {
				continue
			}
			if member[rule.Parent] {
				member[rule.Name] = true
				grew = true
				continue
			}
			for _, other := range r.rules {
				if !member[other.Name] {
					continue
				}
				for _, child := range other.Children {
					if child == rule.Name {
						member[rule.Name] = true
						grew = true
					}
				}
			}
		}
		if !grew {
			break
		}
	}
	var out []string
	for _, rule := range r.rules {
		if rule.Name != name && member[rule.Name] {
			out = append(out, rule.Name)
		}
	}
	return out, nil
}

// ResolveHierarchy verifies every rule's ancestor chain terminates. Called
// after load when the caller wants cycle detection up front rather than on
// first Ancestors call.
func (r *Registry) ResolveHierarchy() error {
	for _, rule := range r.rules {
		if _, err := r.Ancestors(rule.Name); err != nil {
			return err
		}
	}
	return nil
}
