package urlspace

import (
	"net/netip"
	"path"

	"github.com/navispace/navid/pkg/container/set"
)

// classRank orders constraint type classes for lookup priority:
// IPv6 > IPv4 > Header > Conjunction.
func classRank(c Constraint) int {
	switch c.(type) {
	case *IPSpec:
		if c.(*IPSpec).v6 {
			return 0
		}
		return 1
	case *HeaderSpec:
		return 2
	case *Conjunction:
		return 3
	default:
		return 4
	}
}

// Context is the request-time evaluation context a constraint spec is
// matched against: the peer address and the parsed request headers.
type Context struct {
	Peer    netip.Addr
	Headers *set.Set
}

// Constraint is one context constraint: an IPv4/IPv6 prefix match, a
// header glob match, or a conjunction of sub-constraints.
type Constraint interface {
	// Matches reports whether ctx satisfies this constraint.
	Matches(ctx Context) bool
	// Specificity is used to order constraints of the same class, most
	// specific first.
	Specificity() int
	// seq is the monotonic insertion-order tiebreak for constraints of
	// equal class and specificity.
	seq() int
	// pattern returns the constraint's literal pattern for the
	// lexicographic tiebreak ordering.
	pattern() string
}

var insertionCounter int

func nextSeq() int {
	insertionCounter++
	return insertionCounter
}

// IPSpec matches a peer address against a prefix.
type IPSpec struct {
	prefix netip.Prefix
	v6     bool
	order  int
}

// NewIPSpec builds an IPv4 or IPv6 constraint spec from a CIDR string such
// as "10.0.0.0/24" or "2001:db8::/32".
func NewIPSpec(cidr string) (*IPSpec, error) {
	p, err := netip.ParsePrefix(cidr)
	if err != nil {
		return nil, err
	}
	return &IPSpec{prefix: p, v6: p.Addr().Is6(), order: nextSeq()}, nil
}

func (s *IPSpec) Matches(ctx Context) bool {
	if !ctx.Peer.IsValid() {
		return false
	}
	if ctx.Peer.Is4In6() {
		ctx2 := ctx.Peer.Unmap()
		return s.prefix.Contains(ctx2) && ctx2.Is4() == !s.v6
	}
	if ctx.Peer.Is6() != s.v6 {
		return false
	}
	return s.prefix.Contains(ctx.Peer)
}

func (s *IPSpec) Specificity() int { return s.prefix.Bits() }
func (s *IPSpec) seq() int         { return s.order }
func (s *IPSpec) pattern() string  { return s.prefix.String() }

// HeaderSpec matches a header field's value against a glob pattern.
type HeaderSpec struct {
	Field   string
	Pattern string
	order   int
}

// NewHeaderSpec builds a header constraint spec. Specificity is the count
// of non-'*' characters in pattern.
func NewHeaderSpec(field, pattern string) *HeaderSpec {
	return &HeaderSpec{Field: field, Pattern: pattern, order: nextSeq()}
}

func (s *HeaderSpec) Matches(ctx Context) bool {
	if ctx.Headers == nil {
		return false
	}
	v, ok := ctx.Headers.IGet(s.Field)
	if !ok {
		return false
	}
	ok, _ = path.Match(s.Pattern, v)
	return ok
}

func (s *HeaderSpec) Specificity() int {
	n := 0
	for _, r := range s.Pattern {
		if r != '*' {
			n++
		}
	}
	return n
}
func (s *HeaderSpec) seq() int        { return s.order }
func (s *HeaderSpec) pattern() string { return s.Pattern }

// Conjunction matches iff every sub-spec matches (short-circuit AND);
// its specificity is the sum of its sub-specs' specificities.
type Conjunction struct {
	Specs []Constraint
	order int
}

// NewConjunction builds a conjunction spec over the given sub-specs.
func NewConjunction(specs ...Constraint) *Conjunction {
	return &Conjunction{Specs: specs, order: nextSeq()}
}

func (c *Conjunction) Matches(ctx Context) bool {
	for _, s := range c.Specs {
		if !s.Matches(ctx) {
			return false
		}
	}
	return len(c.Specs) > 0
}

func (c *Conjunction) Specificity() int {
	total := 0
	for _, s := range c.Specs {
		total += s.Specificity()
	}
	return total
}
func (c *Conjunction) seq() int { return c.order }
func (c *Conjunction) pattern() string {
	if len(c.Specs) == 0 {
		return ""
	}
	return c.Specs[0].pattern()
}

// CompareConstraints orders two constraint specs for descending-priority
// placement in a node's constraint index: by class rank, then by
// decreasing specificity, then (for conjunctions only) by descending
// element count, then lexicographically on pattern, finally by insertion
// order.
func CompareConstraints(a, b Constraint) int {
	if ra, rb := classRank(a), classRank(b); ra != rb {
		return ra - rb
	}
	if sa, sb := a.Specificity(), b.Specificity(); sa != sb {
		return sb - sa // greater specificity sorts first
	}
	if ca, aIsConj := a.(*Conjunction); aIsConj {
		cb := b.(*Conjunction) // same class rank guarantees this
		if len(ca.Specs) != len(cb.Specs) {
			return len(cb.Specs) - len(ca.Specs) // more elements sorts first
		}
	}
	if pa, pb := a.pattern(), b.pattern(); pa != pb {
		if pa < pb {
			return -1
		}
		return 1
	}
	return a.seq() - b.seq()
}
