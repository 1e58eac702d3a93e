package urlspace

import "github.com/navispace/navid/pkg/container/index"

// constraintEntry binds one constraint spec to the data registered
// alongside it in a node's constraint index.
type constraintEntry struct {
	spec Constraint
	data any
}

// compareConstraintEntries orders two index entries by their spec's
// priority, keeping the index sorted by CompareConstraints.
func compareConstraintEntries(a, b constraintEntry) int {
	return CompareConstraints(a.spec, b.spec)
}

// compareConstraintKey orders a bare spec (used as a lookup/insertion key)
// against an index entry, by the same priority as compareConstraintEntries.
func compareConstraintKey(key Constraint, el constraintEntry) int {
	return CompareConstraints(key, el.spec)
}

// node holds the registered data at one point in the trie: a default for
// descendants (inherit), a value for only the exact URL (no-inherit), and
// an Index of Context Constraint Specs ordered by decreasing specificity.
type node struct {
	hasInherit    bool
	dataInherit   any
	hasNoInherit  bool
	dataNoInherit any
	constraints   *index.Index[constraintEntry, Constraint]
}

// setInherit installs data as the inherit default, replacing any prior
// value; no free callback runs for the replaced value.
func (n *node) setInherit(data any) {
	n.hasInherit = true
	n.dataInherit = data
}

func (n *node) setNoInherit(data any) {
	n.hasNoInherit = true
	n.dataNoInherit = data
}

func (n *node) unsetInherit() {
	n.hasInherit = false
	n.dataInherit = nil
}

func (n *node) unsetNoInherit() {
	n.hasNoInherit = false
	n.dataNoInherit = nil
}

// addConstraint inserts spec/data into the node's Index, keeping it sorted
// by CompareConstraints (decreasing specificity; see constraint.go). A spec
// with identical priority (same class/specificity/pattern/insertion order,
// i.e. the same spec reinserted) replaces its prior data rather than
// duplicating the entry.
func (n *node) addConstraint(spec Constraint, data any) {
	if n.constraints == nil {
		n.constraints = index.New[constraintEntry, Constraint](0, compareConstraintEntries, compareConstraintKey)
	}
	if existing := n.constraints.FindMultiple(spec); len(existing) > 0 {
		existing[0].data = data
		return
	}
	n.constraints.Add(constraintEntry{spec: spec, data: data})
}

// clearConstraints empties the constraint index.
func (n *node) clearConstraints() {
	if n.constraints != nil {
		n.constraints.Destroy()
	}
}

// resolve evaluates the node's candidate data for a lookup that has
// reached it. atEnd reports whether the sequence
// is exhausted exactly at this node. In exactMode (NS_URLSPACE_EXACT) only
// an exact no-inherit match contributes; inherit data and constraint
// overrides are skipped entirely. Otherwise no-inherit (at the exact URL)
// or inherit is the base candidate, and the first matching constraint spec
// in priority order overrides it.
func (n *node) resolve(atEnd bool, ctx Context, exactMode bool) (any, bool) {
	if exactMode {
		if atEnd && n.hasNoInherit {
			return n.dataNoInherit, true
		}
		return nil, false
	}

	var data any
	var has bool
	if atEnd && n.hasNoInherit {
		data, has = n.dataNoInherit, true
	} else if n.hasInherit {
		data, has = n.dataInherit, true
	}

	if n.constraints != nil {
		for _, e := range n.constraints.Slice() {
			if e.spec.Matches(ctx) {
				return e.data, true
			}
		}
	}
	return data, has
}

// empty reports whether the node carries no data of any kind, so its
// owning branch can be pruned.
func (n *node) empty() bool {
	return !n.hasInherit && !n.hasNoInherit && (n.constraints == nil || n.constraints.Len() == 0)
}
