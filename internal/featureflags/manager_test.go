package featureflags

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnabled_BooleanValues(t *testing.T) {
	m := NewManager("a=on,b=off,c=true,d=false,e=1,f=0")

	for _, name := range []string{"a", "c", "e"} {
		assert.True(t, m.Enabled(name, "u1"), name)
	}
	for _, name := range []string{"b", "d", "f", "missing"} {
		assert.False(t, m.Enabled(name, "u1"), name)
	}
}

func TestEnabled_PercentageValues(t *testing.T) {
	m := NewManager("always=100%,never=0%,canary=25%,broken=x%")

	assert.True(t, m.Enabled("always", "u1"))
	assert.False(t, m.Enabled("never", "u1"))
	assert.False(t, m.Enabled("broken", "u1"))

	first := m.Enabled("canary", "3f2b8c1e-0000-4000-8000-000000000042")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, m.Enabled("canary", "3f2b8c1e-0000-4000-8000-000000000042"), "rollout must be deterministic per user")
	}
	assert.False(t, m.Enabled("canary", ""), "percentage rollout requires a user")

	enabled := 0
	for i := 0; i < 1000; i++ {
		if m.Enabled("canary", fmt.Sprintf("user-%d", i)) {
			enabled++
		}
	}
	assert.InDelta(t, 250, enabled, 80)
}

func TestParseAndSnapshot(t *testing.T) {
	m := NewManager(" bad ,x=on, y = 20% ,z=off, FRIEND_SUGGESTIONS=on")

	raw := m.Raw()
	assert.Len(t, raw, 4)
	assert.Equal(t, "20%", raw["y"])
	assert.True(t, m.Enabled(Suggestions, "u1"))

	snap := m.Snapshot("u1")
	assert.Len(t, snap, 4)
	assert.False(t, snap["z"])
}

func TestNilManager(t *testing.T) {
	var m *Manager
	assert.False(t, m.Enabled(Suggestions, "u1"))
	assert.Empty(t, m.Snapshot("u1"))
	assert.Empty(t, m.Raw())
}
