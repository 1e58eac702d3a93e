package urlspace

import (
	"net/netip"
	"testing"

	"github.com/navispace/navid/pkg/container/set"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarioA_TrieAndFilterOrdering covers trie + filter ordering.
func TestScenarioA_TrieAndFilterOrdering(t *testing.T) {
	j := NewJunction()

	j.Set("*", "/x/*.html", "A", SetOptions{})
	j.Set("*", "/x/a.html", "B", SetOptions{NoInherit: true})

	data, _, ok := j.Get("*", "/x/a.html", Context{}, false)
	require.True(t, ok)
	assert.Equal(t, "B", data)

	data, _, ok = j.Get("*", "/x/b.html", Context{}, false)
	require.True(t, ok)
	assert.Equal(t, "A", data)

	data, _, ok = j.Get("*", "/x/a.html", Context{}, true)
	require.True(t, ok)
	assert.Equal(t, "B", data)
}

// TestScenarioB_ContextConstraints covers context constraints.
func TestScenarioB_ContextConstraints(t *testing.T) {
	j := NewJunction()

	j.Set("*", "/api", "P", SetOptions{})
	ipSpec, err := NewIPSpec("10.0.0.0/24")
	require.NoError(t, err)
	j.Set("*", "/api", "Q", SetOptions{Constraint: ipSpec})

	data, _, ok := j.Get("*", "/api", Context{Peer: netip.MustParseAddr("10.0.0.5")}, false)
	require.True(t, ok)
	assert.Equal(t, "Q", data)

	data, _, ok = j.Get("*", "/api", Context{Peer: netip.MustParseAddr("192.0.2.1")}, false)
	require.True(t, ok)
	assert.Equal(t, "P", data)
}

func TestExactModeRequiresNoInheritAtEnd(t *testing.T) {
	j := NewJunction()
	j.Set("*", "/a/b", "inherit-val", SetOptions{})

	_, _, ok := j.Get("*", "/a/b/c", Context{}, true)
	assert.False(t, ok, "exact mode must not fall back to an ancestor's inherit data")

	data, _, ok := j.Get("*", "/a/b/c", Context{}, false)
	require.True(t, ok)
	assert.Equal(t, "inherit-val", data)
}

func TestUnsetNoInheritRemovesOnlyThatSlot(t *testing.T) {
	j := NewJunction()
	j.Set("*", "/a", "inherit-val", SetOptions{})
	j.Set("*", "/a", "exact-val", SetOptions{NoInherit: true})

	ok := j.Unset("*", "/a", UnsetOptions{NoInherit: true})
	require.True(t, ok)

	data, _, found := j.Get("*", "/a", Context{}, false)
	require.True(t, found)
	assert.Equal(t, "inherit-val", data)
}

func TestUnsetRecurseRemovesSubtree(t *testing.T) {
	j := NewJunction()
	j.Set("*", "/a/b", "v1", SetOptions{})
	j.Set("*", "/a/b/c", "v2", SetOptions{})

	ok := j.Unset("*", "/a/b", UnsetOptions{Recurse: true})
	require.True(t, ok)

	_, _, found := j.Get("*", "/a/b", Context{}, false)
	assert.False(t, found)
	_, _, found = j.Get("*", "/a/b/c", Context{}, false)
	assert.False(t, found)
}

func TestHeaderConstraintGlobMatch(t *testing.T) {
	j := NewJunction()
	j.Set("*", "/upload", "default", SetOptions{})
	hdr := NewHeaderSpec("X-Client", "mobile-*")
	j.Set("*", "/upload", "mobile-handler", SetOptions{Constraint: hdr})

	mobileHeaders := makeHeaders(t, "X-Client", "mobile-ios")
	data, _, ok := j.Get("*", "/upload", Context{Headers: mobileHeaders}, false)
	require.True(t, ok)
	assert.Equal(t, "mobile-handler", data)

	otherHeaders := makeHeaders(t, "X-Client", "desktop")
	data, _, ok = j.Get("*", "/upload", Context{Headers: otherHeaders}, false)
	require.True(t, ok)
	assert.Equal(t, "default", data)
}

func TestWalkVisitsRegisteredNodesOnly(t *testing.T) {
	j := NewJunction()
	j.Set("*", "/a", "va", SetOptions{})
	j.Set("*", "/a/b", "vb", SetOptions{NoInherit: true})

	var kinds []string
	j.Walk(func(rec WalkRecord) {
		kinds = append(kinds, rec.Kind)
	})
	assert.ElementsMatch(t, []string{"inherit", "noinherit"}, kinds)
}

func TestConjunctionSpecificitySumsSubSpecs(t *testing.T) {
	ip, err := NewIPSpec("10.0.0.0/24")
	require.NoError(t, err)
	hdr := NewHeaderSpec("X-Env", "prod")
	conj := NewConjunction(ip, hdr)

	assert.Equal(t, ip.Specificity()+hdr.Specificity(), conj.Specificity())
}

func makeHeaders(t *testing.T, kv ...string) *set.Set {
	t.Helper()
	s := set.New("headers")
	for i := 0; i+1 < len(kv); i += 2 {
		s.Put(kv[i], kv[i+1])
	}
	return s
}
