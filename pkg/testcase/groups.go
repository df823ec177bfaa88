package testcase

// groupKey identifies a parameterize/analyze group: all TestCases sharing
// the same source path and test name.
type groupKey struct {
	sourcePath string
	testName   string
}

// GroupMap maps (source path, test name) to the set of TestCases sharing
// that identity, so an analyze test can be bound to the parameterized
// siblings it aggregates.
type GroupMap struct {
	groups map[groupKey][]*Case
}

// NewGroupMap builds a GroupMap from the given cases.
func NewGroupMap(cases []*Case) *GroupMap {
	gm := &GroupMap{groups: map[groupKey][]*Case{}}
	for _, c := range cases {
		key := groupKey{sourcePath: c.Spec.RelPath, testName: c.Spec.Name}
		gm.groups[key] = append(gm.groups[key], c)
	}
	return gm
}

// Group returns every Case sharing tc's (source path, test name),
// including tc itself.
func (gm *GroupMap) Group(tc *Case) []*Case {
	key := groupKey{sourcePath: tc.Spec.RelPath, testName: tc.Spec.Name}
	return gm.groups[key]
}

// Siblings returns the non-analyze members of tc's group.
func (gm *GroupMap) Siblings(tc *Case) []*Case {
	var out []*Case
	for _, member := range gm.Group(tc) {
		if !member.Spec.Analyze {
			out = append(out, member)
		}
	}
	return out
}

// Analyze returns the (at most one) analyze member of tc's group, or nil.
func (gm *GroupMap) Analyze(tc *Case) *Case {
	for _, member := range gm.Group(tc) {
		if member.Spec.Analyze {
			return member
		}
	}
	return nil
}
