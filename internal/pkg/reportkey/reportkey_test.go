package reportkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForURLNormalization(t *testing.T) {
	base := ForURL("https://play.google.com/store/apps/details?id=com.example")

	assert.Equal(t, base, ForURL("  https://play.google.com/store/apps/details?id=com.example  "))
	assert.Equal(t, base, ForURL("HTTPS://PLAY.GOOGLE.COM/store/apps/details?id=com.example"))
	assert.NotEqual(t, base, ForURL("https://play.google.com/store/apps/details?id=com.other"))
}

func TestForComparisonOrderIndependent(t *testing.T) {
	a := ForComparison([]string{"https://b.com", "https://a.com"})
	b := ForComparison([]string{"https://a.com", "https://b.com"})
	assert.Equal(t, a, b)

	c := ForComparison([]string{" HTTPS://A.COM ", "https://b.com"})
	assert.Equal(t, a, c)
}

func TestParse(t *testing.T) {
	k := ForURL("https://a.com")
	parsed, ok := Parse("  " + string(k) + "  ")
	require.True(t, ok)
	assert.Equal(t, k, parsed)

	_, ok = Parse("not-a-key")
	assert.False(t, ok)
	_, ok = Parse("zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz")
	assert.False(t, ok)
	_, ok = Parse("")
	assert.False(t, ok)
}

func TestShardPath(t *testing.T) {
	k := Key("ab12cd34ab12cd34ab12cd34ab12cd34")
	assert.Equal(t, "ab/12/ab12cd34ab12cd34ab12cd34ab12cd34.zip", k.ShardPath())
}
