package events

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataset_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "comments.json")
	evs := []Event{
		{
			Comment: "first!",
			Meta:    Meta{User: "user_001", AccountAgeDays: 42, Strikes: 1, Topic: "chess"},
			Persona: "firm_professional",
		},
		{
			Comment: "gg",
			Meta:    Meta{User: "user_002"},
		},
	}

	require.NoError(t, SaveDataset(path, evs))
	loaded, err := LoadDataset(path)
	require.NoError(t, err)
	assert.Equal(t, evs, loaded)
}

func TestLoadDataset_MissingFile(t *testing.T) {
	_, err := LoadDataset(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestIdentity_DefaultsToUnknown(t *testing.T) {
	assert.Equal(t, "unknown", Event{}.Identity())
	assert.Equal(t, "user_007", Event{Meta: Meta{User: "user_007"}}.Identity())
}

func TestGenerate_ProducesValidEvents(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	evs := Generate(20, rng)
	require.Len(t, evs, 20)

	personas := map[string]bool{}
	for _, p := range Personas {
		personas[p.Name] = true
	}
	for i, ev := range evs {
		assert.NotEmpty(t, ev.Comment)
		assert.NotEmpty(t, ev.Meta.User)
		assert.True(t, personas[ev.Persona], "event %d has unknown persona %q", i, ev.Persona)
		assert.GreaterOrEqual(t, ev.Meta.AccountAgeDays, 10)
		assert.NotEmpty(t, ev.Meta.Topic)
	}
}

func TestGenerate_DeterministicForSeed(t *testing.T) {
	a := Generate(10, rand.New(rand.NewSource(7)))
	b := Generate(10, rand.New(rand.NewSource(7)))
	assert.Equal(t, a, b)
}
