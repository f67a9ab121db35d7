package dashboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedColorsArePure(t *testing.T) {
	c := KeyedColors()
	k := SeriesKey{Partition: 2, Element: 3}
	assert.Equal(t, c.Assign(k), c.Assign(k))
	assert.NotEqual(t, c.Assign(SeriesKey{Element: 0}), c.Assign(SeriesKey{Element: 1}))
	assert.True(t, c.Assign(k).IsValid())
}

func TestSeededColorsRepeatPerSeed(t *testing.T) {
	a, b := SeededColors(7), SeededColors(7)
	for i := 0; i < 5; i++ {
		k := SeriesKey{Element: i}
		assert.Equal(t, a.Assign(k), b.Assign(k))
	}
	assert.NotEqual(t, SeededColors(7).Assign(SeriesKey{}), SeededColors(8).Assign(SeriesKey{}))
}

func TestColorStrategyFor(t *testing.T) {
	for _, name := range []string{"", "keyed", " Keyed ", "seeded"} {
		c, err := ColorStrategyFor(ColorConfig{Strategy: name, Seed: 1})
		require.NoError(t, err, name)
		assert.NotNil(t, c)
	}
	_, err := ColorStrategyFor(ColorConfig{Strategy: "rainbow"})
	assert.Error(t, err)
}
