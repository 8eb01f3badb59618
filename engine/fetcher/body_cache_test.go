package fetcher

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBodyCacheKeepsValidatorsForBothStores(t *testing.T) {
	c := newBodyCache(8<<20, 0)
	small := []byte("tiny")
	large := bytes.Repeat([]byte{9}, 1<<20)

	require.True(t, c.set("s", small, `"s1"`, ""))
	require.True(t, c.set("l", large, `"l1"`, "Mon, 02 Jan 2006 15:04:05 GMT"))

	body, etag, _, ok := c.get("s")
	require.True(t, ok)
	assert.Equal(t, small, body)
	assert.Equal(t, `"s1"`, etag)

	body, etag, modified, ok := c.get("l")
	require.True(t, ok)
	assert.Len(t, body, len(large))
	assert.Equal(t, `"l1"`, etag)
	assert.Equal(t, "Mon, 02 Jan 2006 15:04:05 GMT", modified)
}

func TestBodyCacheExpiresLargeBodies(t *testing.T) {
	now := time.Unix(1000, 0)
	c := newBodyCache(8<<20, time.Minute)
	c.now = func() time.Time { return now }

	require.True(t, c.set("l", bytes.Repeat([]byte{1}, 1<<20), "", ""))
	_, _, _, ok := c.get("l")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, _, _, ok = c.get("l")
	assert.False(t, ok)
	assert.Zero(t, c.largeBytes)
}

func TestBodyCacheReplacesWithoutDoubleCounting(t *testing.T) {
	c := newBodyCache(8<<20, 0)
	body := bytes.Repeat([]byte{1}, 1<<20)
	for range 3 {
		require.True(t, c.set("l", body, "", ""))
	}
	assert.Equal(t, len(body), c.largeBytes)

	c.del("l")
	assert.Zero(t, c.largeBytes)
	assert.False(t, c.set("huge", make([]byte, 7<<20), "", ""))
}
