package triecache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(ttl time.Duration) (*Cache, *time.Time) {
	c := New(ttl)
	now := time.Now()
	c.now = func() time.Time { return now }
	return c, &now
}

func TestInsertAndSearch(t *testing.T) {
	c, _ := newTestCache(30 * time.Minute)
	payload := []byte(`[{"id":"com.example"}]`)

	c.Insert("abc", payload)

	got, ok := c.Search("abc")
	require.True(t, ok)
	assert.Equal(t, payload, got)

	// prefix of a stored query carries no payload
	_, ok = c.Search("ab")
	assert.False(t, ok)
	_, ok = c.Search("abcd")
	assert.False(t, ok)
}

func TestSearchIsCaseInsensitive(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Insert("Weather App", []byte("r"))

	_, ok := c.Search("weather app")
	assert.True(t, ok)
	_, ok = c.Search("WEATHER APP")
	assert.True(t, ok)
}

func TestExpiryClearsPayload(t *testing.T) {
	c, now := newTestCache(10 * time.Minute)
	c.Insert("abc", []byte("r"))

	*now = now.Add(10*time.Minute + time.Second)
	_, ok := c.Search("abc")
	assert.False(t, ok)

	// the stale payload was cleared in place, a re-insert works
	c.Insert("abc", []byte("r2"))
	got, ok := c.Search("abc")
	require.True(t, ok)
	assert.Equal(t, []byte("r2"), got)
}

func TestCleanupPrunesDeadPath(t *testing.T) {
	c, now := newTestCache(10 * time.Minute)
	c.Insert("abc", []byte("r"))
	c.Insert("abx", []byte("shared prefix survivor"))

	*now = now.Add(11 * time.Minute)
	c.Insert("abx", []byte("fresh")) // refreshed after the clock moved

	c.Cleanup()

	_, ok := c.Search("abc")
	assert.False(t, ok)
	got, ok := c.Search("abx")
	require.True(t, ok)
	assert.Equal(t, []byte("fresh"), got)

	// the a→b prefix is retained by abx, the c leaf is gone
	assert.Equal(t, 1, c.Len())
	assert.Len(t, c.root.children['a'].children['b'].children, 1)
}

func TestCleanupRemovesWholeBranch(t *testing.T) {
	c, now := newTestCache(10 * time.Minute)
	c.Insert("abc", []byte("r"))

	*now = now.Add(11 * time.Minute)
	c.Cleanup()

	assert.Empty(t, c.root.children)
	assert.Equal(t, 0, c.Len())
}

func TestEmptyQueryUsesRootNode(t *testing.T) {
	// Root-level payloads are supported: the zero-character walk terminates
	// at the root itself.
	c, now := newTestCache(10 * time.Minute)
	c.Insert("", []byte("root"))

	got, ok := c.Search("")
	require.True(t, ok)
	assert.Equal(t, []byte("root"), got)

	*now = now.Add(11 * time.Minute)
	_, ok = c.Search("")
	assert.False(t, ok)
}

func TestOverwriteReplacesPayload(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Insert("q", []byte("one"))
	c.Insert("q", []byte("two"))

	got, ok := c.Search("q")
	require.True(t, ok)
	assert.Equal(t, []byte("two"), got)
}
