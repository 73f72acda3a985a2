package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairLinksResolvesBrokenFromLocalScope(t *testing.T) {
	f := newFixture()
	lost := NewAttribute("mortality", "0.2")
	lost.UID = 77
	f.daily.Dataset.Set(BrokenAs(lost))
	candidate := NewAttribute("mortality", "0.2")
	f.fish.AddAttribute(candidate)

	n := RepairLinks(f.fish, true, f.uni, f.fish, nil, DefaultEngineConfig())

	assert.Equal(t, 1, n)
	assert.Same(t, candidate, f.daily.Dataset.Target())
	assert.False(t, HasBrokenLink(f.fish))
}

func TestRepairLinksLeavesUnmatchedBroken(t *testing.T) {
	f := newFixture()
	ph := BrokenAs(NewAttribute("unknown", "x"))
	f.daily.Dataset.Set(ph)

	n := RepairLinks(f.fish, false, f.uni, f.fish, nil, DefaultEngineConfig())

	assert.Zero(t, n)
	assert.Same(t, ph, f.daily.Dataset.Target())
}

func TestRepairLinksNeverBreaksWorkingLinks(t *testing.T) {
	f := newFixture()
	reg := NewRegistry()
	reg.Add(NewAttribute("growth", "0.35"))
	edges := len(SubtreeEdges(f.uni))

	for _, onlyBroken := range []bool{true, false} {
		RepairLinks(f.uni, onlyBroken, f.uni, f.fleet, reg, DefaultEngineConfig())
		for _, e := range SubtreeEdges(f.uni) {
			assert.NotEqual(t, LinkBroken, e.Kind(), "%s.%s", e.Owner.Meta().Shortname, e.Name)
		}
	}
	assert.Len(t, SubtreeEdges(f.uni), edges)
}

func TestRepairLinksPrefersLocalOverRegistry(t *testing.T) {
	f := newFixture()
	reg := NewRegistry()
	tmpl := NewAttribute("mortality", "0.2")
	reg.Add(tmpl)
	Template(f.fish, reg, DefaultEngineConfig())
	require.True(t, f.daily.Template)
	f.daily.Dataset.Set(BrokenAs(NewAttribute("mortality", "0.2")))

	local := NewAttribute("mortality", "0.2")
	f.fish.AddAttribute(local)
	RepairLinks(f.daily, true, f.uni, f.fish, reg, DefaultEngineConfig())
	assert.Same(t, local, f.daily.Dataset.Target())

	f.fish.RemoveAttribute(local)
	f.daily.Dataset.Set(BrokenAs(NewAttribute("mortality", "0.2")))
	RepairLinks(f.daily, true, f.uni, f.fish, reg, DefaultEngineConfig())
	assert.Same(t, tmpl, f.daily.Dataset.Target())
}

func TestRepairLinksConsultsRegistryOnlyForTemplates(t *testing.T) {
	f := newFixture()
	reg := NewRegistry()
	tmpl := NewAttribute("mortality", "0.2")
	reg.Add(tmpl)
	ph := BrokenAs(NewAttribute("mortality", "0.2"))
	f.daily.Dataset.Set(ph)

	RepairLinks(f.fish, true, f.uni, f.fish, reg, DefaultEngineConfig())
	assert.Same(t, ph, f.daily.Dataset.Target(), "non-template owners never match templates")

	Template(f.fish, reg, DefaultEngineConfig())
	RepairLinks(f.fish, true, f.uni, f.fish, reg, EngineConfig{AutoMatchTemplates: false})
	assert.Same(t, ph, f.daily.Dataset.Target(), "auto match disabled")

	RepairLinks(f.fish, true, f.uni, f.fish, reg, DefaultEngineConfig())
	assert.Same(t, tmpl, f.daily.Dataset.Target())
}

func TestRepairLinksRepairsRelatedElementWise(t *testing.T) {
	f := newFixture()
	f.catch.AddRelated(f.fleet)
	BreakLinks(f.fleet, f.fleet, f.fleet)
	require.True(t, f.catch.Related[0].IsBroken())

	n := RepairLinks(f.fleet, true, f.uni, f.fleet, nil, DefaultEngineConfig())

	assert.Equal(t, 1, n)
	require.Len(t, f.catch.Related, 2)
	assert.Same(t, f.fish, f.catch.Related[0].Target())
	assert.Same(t, f.fleet, f.catch.Related[1].Target())
	assert.True(t, f.catch.Dataset.IsBroken(), "growth is outside fleet's scope")
}
