package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositionProducesContiguousRanking(t *testing.T) {
	a, b, c := NewAttribute("a", ""), NewAttribute("b", ""), NewAttribute("c", "")
	a.Position, b.Position, c.Position = 3, 1, 1
	list := []*Attribute{a, b, c}

	Reposition(list)

	assert.Equal(t, []*Attribute{b, c, a}, list)
	assert.Equal(t, []int{1, 2, 3}, positionsOf(list))
}

func TestMoveUpAndDown(t *testing.T) {
	e := NewElement(ModuleBiota, "e")
	a, b, c := NewAction(ActionSetup, "a"), NewAction(ActionSetup, "b"), NewAction(ActionSetup, "c")
	e.AddAction(a)
	e.AddAction(b)
	e.AddAction(c)
	require.Equal(t, []int{1, 2, 3}, positionsOf(e.Actions))

	assert.True(t, MoveUp(e.Actions, 2))
	assert.Equal(t, []*Action{a, c, b}, e.Actions)
	assert.True(t, MoveDown(e.Actions, 0))
	assert.Equal(t, []*Action{c, a, b}, e.Actions)
	assert.Equal(t, []int{1, 2, 3}, positionsOf(e.Actions))
	assert.False(t, MoveUp(e.Actions, 0))
	assert.False(t, MoveDown(e.Actions, 2))
}

func TestAppendChildKeepsTemplateParentless(t *testing.T) {
	reg := NewRegistry()
	e := NewElement(ModuleBiota, "e")
	e.UID = 4
	shared := NewAttribute("shared", "1")
	reg.Add(shared)
	own := NewAttribute("own", "2")

	e.AddAttribute(shared)
	e.AddAttribute(own)

	assert.Zero(t, shared.ParentUID)
	assert.Equal(t, 4, own.ParentUID)
}

func TestFindParentAndReplaceChild(t *testing.T) {
	f := newFixture()
	revised := NewAction(ActionTimestep, "grow")
	revised.Code = "grow faster"

	parent, ok := FindParent(f.uni, f.grow)
	require.True(t, ok)
	assert.Same(t, f.fish, parent)

	require.True(t, ReplaceChild(parent, f.grow, revised))
	assert.Equal(t, []*Action{revised}, f.fish.Actions)
	assert.Equal(t, 1, revised.Position)
	assert.False(t, ReplaceChild(parent, f.grow, revised), "old is no longer owned")
	assert.False(t, ReplaceChild(parent, revised, NewAttribute("x", "")))
}

func TestReplaceChildMovesElementBetweenModules(t *testing.T) {
	f := newFixture()
	moved := NewElement(ModuleEnvironment, "cod")

	require.True(t, ReplaceChild(f.uni, f.fish, moved))

	assert.Empty(t, f.uni.ElementsOf(ModuleBiota))
	assert.Equal(t, []*Element{moved}, f.uni.ElementsOf(ModuleEnvironment))
}

func TestAttachChildRejectsForeignKinds(t *testing.T) {
	assert.Error(t, AttachChild(NewElement(ModuleBiota, "e"), NewTimestep("t", StepAfter)))
	assert.NoError(t, AttachChild(NewUniverse("u"), NewReport("r")))
}

func TestDetachChildDispatchesByKind(t *testing.T) {
	u := NewUniverse("u")
	e := NewElement(ModuleBiota, "cod")
	a := NewAction(ActionSetup, "grow")
	ts := NewTimestep("spring", StepDuring)
	sp := NewSpatial("grid")
	u.AddElement(e)
	e.AddAction(a)
	a.AddTimestep(ts)
	require.NoError(t, AttachChild(u, sp))

	require.NoError(t, DetachChild(a, ts))
	require.NoError(t, DetachChild(u, sp))
	require.NoError(t, DetachChild(u, e))

	assert.Empty(t, a.Timesteps)
	assert.Nil(t, u.Spatial)
	assert.Empty(t, u.AllElements())
	assert.Equal(t, []Object{sp, e}, Removed(u))
	assert.Equal(t, []Object{ts}, Removed(a))
	assert.Error(t, DetachChild(u, e), "already detached")
	assert.Error(t, DetachChild(e, ts), "foreign kind")
}
