package domain

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestParseRevision(t *testing.T) {
	cases := []struct {
		in   string
		want Revision
	}{
		{"3", Revision{3}},
		{"2.1", Revision{2, 1}},
		{" 4.0.7 ", Revision{4, 0, 7}},
		{"", Revision{0}},
		{"abc", Revision{0}},
		{"1..2", Revision{0}},
		{"-1", Revision{0}},
		{"2.x", Revision{0}},
	}
	for _, tc := range cases {
		if diff := cmp.Diff(tc.want, ParseRevision(tc.in)); diff != "" {
			t.Errorf("ParseRevision(%q) mismatch (-want +got):\n%s", tc.in, diff)
		}
	}
}

func TestRevisionCompare(t *testing.T) {
	assert.Equal(t, 0, ParseRevision("2").Compare(ParseRevision("2.0")))
	assert.Equal(t, -1, ParseRevision("2").Compare(ParseRevision("2.1")))
	assert.Equal(t, 1, ParseRevision("10").Compare(ParseRevision("9.9")))
	assert.Equal(t, "3", ParseRevision("2.5").NextMajor().String())
}

func TestNextRevisionExceedsRegistryRootAndInflight(t *testing.T) {
	f := newFixture()
	reg := NewRegistry()
	tmpl := NewAction(ActionSetup, "catch")
	tmpl.Revision = "6"
	reg.Add(tmpl)
	f.grow.Revision = "4.2"
	replica := NewAction(ActionSetup, "catch")
	replica.Revision = "9"

	assert.Equal(t, "7", NextRevision(f.catch, reg, f.uni))
	assert.Equal(t, "10", NextRevision(f.catch, reg, f.uni, replica))
	assert.Equal(t, "5", NextRevision(f.catch, nil, f.uni))
}

func TestSetHigherVersion(t *testing.T) {
	a := NewAttribute("a", "1")
	b := NewAttribute("a", "1")
	a.Revision = "3"
	b.Revision = "2"

	assert.False(t, SetHigherVersion(a, b))
	assert.Equal(t, "3", a.Revision)

	b.Revision = "3"
	assert.True(t, SetHigherVersion(a, b))
	assert.Equal(t, "4", a.Revision)
}

func TestCompareSuperficialIgnoresBookkeeping(t *testing.T) {
	a := NewTimestep("spring", StepBefore)
	b := NewTimestep("spring", StepBefore)
	b.UID = 12
	b.Revision = "8"
	b.Position = 3
	b.Locked = true

	assert.True(t, Compare(a, b, true))
	assert.False(t, Compare(a, b, false))

	b.EndMonth = 6
	assert.False(t, Compare(a, b, true))
	assert.False(t, Compare(a, NewAttribute("spring", ""), true))
}
