package fits

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAngle(t *testing.T) {
	cases := []struct {
		in    string
		hours bool
		want  float64
		ok    bool
	}{
		{"150.25", true, 150.25, true},
		{"10:00:00", true, 150, true},
		{"-30:30:00", false, -30.5, true},
		{"+45 15 00", false, 45.25, true},
		{"garbage", false, 0, false},
		{"", false, 0, false},
	}
	for _, c := range cases {
		got, ok := ParseAngle(c.in, c.hours)
		assert.Equal(t, c.ok, ok, c.in)
		if c.ok {
			assert.InDelta(t, c.want, got, 1e-9, c.in)
		}
	}
}

func TestKeywordAccessors(t *testing.T) {
	k := NewKeywords()
	k.Set("exptime", 30, "exposure")
	k.Set("OBJECT", "  M31 ", "")
	k.Set("FLAG", true, "")

	f, ok := k.Float("EXPTIME")
	assert.True(t, ok)
	assert.Equal(t, 30.0, f)
	assert.Equal(t, "M31", k.String("OBJECT"))
	assert.True(t, k.Bool("FLAG"))
	assert.Nil(t, k.FloatPtr("MISSING"))
	assert.Equal(t, "", k.String("MISSING"))

	text := k.Text()
	lines := strings.Split(strings.TrimSpace(text), "\n")
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "EXPTIME ="))
	assert.Contains(t, lines[0], "/ exposure")
}
