package urlspace

import (
	"path"
	"strings"
	"sync"
)

// channel owns one trie keyed by filter string within a junction. When
// segmentMatch is set and the filter isn't the trivial "*", a lookup that
// fails to match the trailing token also tries matching the filter against
// each intermediate segment.
type channel struct {
	filter       string
	segmentMatch bool
	root         *branch
}

func newChannel(filter string, segmentMatch bool) *channel {
	return &channel{filter: filter, segmentMatch: segmentMatch, root: newBranch()}
}

// Junction is one allocated URL-space id: a set of channels keyed by
// trailing-wildcard filter, each owning a trie of branches keyed by URL
// segment.
type Junction struct {
	mu       sync.RWMutex
	channels map[string]*channel
}

// NewJunction allocates an empty junction.
func NewJunction() *Junction {
	return &Junction{channels: make(map[string]*channel)}
}

// SetOptions configures one Set call.
type SetOptions struct {
	// NoInherit installs data into the node's no-inherit slot (exact URL
	// only) instead of the inherit slot.
	NoInherit bool
	// Constraint, if non-nil, registers data under this context constraint
	// spec instead of the inherit/no-inherit slot.
	Constraint Constraint
	// SegmentMatch marks the filter's channel so lookups also try matching
	// the filter against intermediate path segments.
	SegmentMatch bool
}

// Set registers data at (key, url) under opts.
func (j *Junction) Set(key, url string, data any, opts SetOptions) {
	seq := MkSeq(key, url)

	j.mu.Lock()
	defer j.mu.Unlock()

	ch, ok := j.channels[seq.Filter]
	if !ok {
		ch = newChannel(seq.Filter, opts.SegmentMatch)
		j.channels[seq.Filter] = ch
	} else if opts.SegmentMatch {
		ch.segmentMatch = true
	}

	b := ch.root.descend(append([]string{seq.Key}, seq.Segments...), true)

	switch {
	case opts.Constraint != nil:
		b.node.addConstraint(opts.Constraint, data)
	case opts.NoInherit:
		b.node.setNoInherit(data)
	default:
		b.node.setInherit(data)
	}
}

// UnsetOptions configures one Unset call.
type UnsetOptions struct {
	NoInherit      bool
	Recurse        bool
	AllConstraints bool
}

// Unset removes data at (key, url). Reports whether
// anything was removed.
func (j *Junction) Unset(key, url string, opts UnsetOptions) bool {
	seq := MkSeq(key, url)

	j.mu.Lock()
	defer j.mu.Unlock()

	ch, ok := j.channels[seq.Filter]
	if !ok {
		return false
	}

	fullPath := append([]string{seq.Key}, seq.Segments...)
	b := ch.root.descend(fullPath, false)
	if b == nil {
		return false
	}

	if opts.Recurse {
		if len(fullPath) == 0 {
			ch.root = newBranch()
			return true
		}
		parentPath, last := fullPath[:len(fullPath)-1], fullPath[len(fullPath)-1]
		parent := ch.root.descend(parentPath, false)
		if parent == nil {
			return false
		}
		_, existed := parent.children[last]
		delete(parent.children, last)
		return existed
	}

	removed := false
	if opts.NoInherit {
		if b.node.hasNoInherit {
			b.node.unsetNoInherit()
			removed = true
		}
	} else {
		if b.node.hasInherit {
			b.node.unsetInherit()
			removed = true
		}
	}
	if opts.AllConstraints && b.node.constraints != nil && b.node.constraints.Len() > 0 {
		b.node.clearConstraints()
		removed = true
	}

	if len(fullPath) > 0 {
		parent := ch.root.descend(fullPath[:len(fullPath)-1], false)
		if parent != nil {
			parent.pruneChild(fullPath[len(fullPath)-1])
		}
	}
	return removed
}

// MatchInfo reports details about how a Get resolved its result.
type MatchInfo struct {
	Depth          int
	IsSegmentMatch bool
	Offset         int
	SegmentLength  int
}

// Get resolves (key, url) against ctx. When exact is
// true, only a node exactly at the sequence end contributes
// (NS_URLSPACE_EXACT).
func (j *Junction) Get(key, url string, ctx Context, exact bool) (any, *MatchInfo, bool) {
	seq := MkSeq(key, url)
	full := append([]string{seq.Key}, seq.Segments...)

	j.mu.RLock()
	defer j.mu.RUnlock()

	var (
		bestData  any
		bestDepth = -1
		bestInfo  *MatchInfo
		found     bool
	)

	consider := func(data any, depth int, info *MatchInfo) {
		if depth > bestDepth {
			bestData, bestDepth, bestInfo, found = data, depth, info, true
		}
	}

	// The trailing token is the lookup's explicit filter, or else its last
	// path segment.
	trailing := seq.Filter
	if trailing == "*" && len(seq.Segments) > 0 {
		trailing = seq.Segments[len(seq.Segments)-1]
	}

	for _, ch := range j.channels {
		if matchFilter(ch.filter, trailing) {
			data, depth, ok := descendAndResolve(ch.root, full, ctx, exact)
			if ok {
				consider(data, depth, &MatchInfo{Depth: depth})
			}
			continue
		}
		if !ch.segmentMatch || ch.filter == "*" {
			continue
		}
		for i, seg := range seq.Segments {
			if !matchFilter(ch.filter, seg) {
				continue
			}
			data, depth, ok := descendAndResolve(ch.root, full, ctx, exact)
			if ok {
				consider(data, depth, &MatchInfo{
					Depth:          depth,
					IsSegmentMatch: true,
					Offset:         i,
					SegmentLength:  len(seg),
				})
			}
		}
	}

	return bestData, bestInfo, found
}

// descendAndResolve walks full from root, evaluating every visited node's
// candidate, and returns the data/depth of the deepest node that produced
// one (deeper wins within a channel too, since a
// later node's inherit value supersedes an ancestor's).
func descendAndResolve(root *branch, full []string, ctx Context, exact bool) (any, int, bool) {
	var (
		data  any
		depth int
		found bool
	)

	cur := root
	for i := 0; i <= len(full); i++ {
		atEnd := i == len(full)
		if d, ok := cur.node.resolve(atEnd, ctx, exact); ok {
			data, depth, found = d, i, true
		}
		if atEnd {
			break
		}
		if cur.children == nil {
			break
		}
		next, ok := cur.children[full[i]]
		if !ok {
			break
		}
		cur = next
	}
	return data, depth, found
}

// matchFilter reports whether tok matches filter using glob (*, ?)
// semantics.
func matchFilter(filter, tok string) bool {
	if filter == "*" {
		return true
	}
	ok, err := path.Match(filter, tok)
	return err == nil && ok
}

// WalkRecord is one entry yielded by Walk.
type WalkRecord struct {
	Key    string
	URL    string
	Filter string
	Kind   string // "inherit", "noinherit", or "inherit+constraint"
}

// Walk performs a depth-first traversal of every channel in the junction,
// invoking fn for each registered node.
func (j *Junction) Walk(fn func(WalkRecord)) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	for filter, ch := range j.channels {
		ch.root.walk(nil, func(segs []string, n *node) {
			if len(segs) == 0 {
				return
			}
			key := segs[0]
			url := "/" + strings.Join(segs[1:], "/")
			switch {
			case n.hasNoInherit:
				fn(WalkRecord{Key: key, URL: url, Filter: filter, Kind: "noinherit"})
			case n.constraints != nil && n.constraints.Len() > 0:
				fn(WalkRecord{Key: key, URL: url, Filter: filter, Kind: "inherit+constraint"})
			case n.hasInherit:
				fn(WalkRecord{Key: key, URL: url, Filter: filter, Kind: "inherit"})
			}
		})
	}
}
