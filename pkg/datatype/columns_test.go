package datatype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringSetAddRemove(t *testing.T) {
	s := NewStringSet("a")

	assert.False(t, s.Add("a"), "adding a present member reports false")
	assert.True(t, s.Add("b"))
	assert.True(t, s.Has("b"))

	assert.True(t, s.Remove("a"))
	assert.False(t, s.Remove("a"), "removing an absent member reports false")
	assert.ElementsMatch(t, []string{"b"}, s.Members())
}

func TestStringSetScanRoundTrip(t *testing.T) {
	s := NewStringSet("a", "b")
	value, err := s.Value()
	require.NoError(t, err)

	var scanned StringSet
	require.NoError(t, scanned.Scan(value))
	assert.Equal(t, s, scanned)

	var empty StringSet
	require.NoError(t, empty.Scan(nil))
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestStringListRemoveFirst(t *testing.T) {
	l := StringList{"a", "b", "a", "c"}

	l = l.RemoveFirst("a")
	assert.Equal(t, StringList{"b", "a", "c"}, l, "only the first occurrence goes, order stays")
	assert.Equal(t, 1, l.Count("a"))

	l = l.RemoveFirst("missing")
	assert.Equal(t, StringList{"b", "a", "c"}, l)
}

func TestCountMapDecDeletesAtZero(t *testing.T) {
	m := CountMap{}
	m.Inc("payments")
	m.Inc("payments")
	m.Dec("payments")
	assert.Equal(t, 1, m["payments"])

	m.Dec("payments")
	assert.NotContains(t, m, "payments", "a drained counter leaves no tombstone")

	m.Dec("never-seen")
	assert.Empty(t, m.Keys())
}

func TestCountMapScanRoundTrip(t *testing.T) {
	m := CountMap{"prod": 2}
	value, err := m.Value()
	require.NoError(t, err)

	var scanned CountMap
	require.NoError(t, scanned.Scan(value))
	assert.Equal(t, m, scanned)
}
