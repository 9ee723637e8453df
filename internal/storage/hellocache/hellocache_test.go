package hellocache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTest(t *testing.T) *Cache {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "hellos.db")

	cache, err := New(Config{
		Path:       dbPath,
		FileMode:   0666,
		Serializer: &GobSerializer{},
	})
	require.NoError(t, err)
	require.NotNil(t, cache)

	t.Cleanup(func() {
		cache.Close()
	})

	return cache
}

func testHello(zid string) *CachedHello {
	return &CachedHello{
		ZID:      zid,
		WhatAmI:  "peer",
		Locators: []string{"tcp/10.0.0.1:7447", "tcp/192.168.1.5:7447"},
		LastSeen: time.Unix(1700000000, 0),
	}
}

func TestCache_PutAndGet(t *testing.T) {
	cache := setupTest(t)

	hello := testHello("zid-1")
	require.NoError(t, cache.Put(hello))

	got, err := cache.Get("zid-1")
	require.NoError(t, err)
	assert.Equal(t, hello.ZID, got.ZID)
	assert.Equal(t, hello.WhatAmI, got.WhatAmI)
	assert.Equal(t, hello.Locators, got.Locators)
	assert.True(t, hello.LastSeen.Equal(got.LastSeen))
}

func TestCache_PutReplacesExisting(t *testing.T) {
	cache := setupTest(t)

	require.NoError(t, cache.Put(testHello("zid-1")))

	updated := testHello("zid-1")
	updated.WhatAmI = "router"
	updated.LastSeen = time.Unix(1800000000, 0)
	require.NoError(t, cache.Put(updated))

	got, err := cache.Get("zid-1")
	require.NoError(t, err)
	assert.Equal(t, "router", got.WhatAmI)
	assert.True(t, updated.LastSeen.Equal(got.LastSeen))

	all, err := cache.All()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCache_GetMissing(t *testing.T) {
	cache := setupTest(t)

	_, err := cache.Get("nope")
	assert.ErrorIs(t, err, ErrHelloNotFound)
}

func TestCache_PutNil(t *testing.T) {
	cache := setupTest(t)

	assert.ErrorIs(t, cache.Put(nil), ErrNilHello)
}

func TestCache_All(t *testing.T) {
	cache := setupTest(t)

	require.NoError(t, cache.Put(testHello("zid-1")))
	require.NoError(t, cache.Put(testHello("zid-2")))
	require.NoError(t, cache.Put(testHello("zid-3")))

	all, err := cache.All()
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCache_Delete(t *testing.T) {
	cache := setupTest(t)

	require.NoError(t, cache.Put(testHello("zid-1")))
	require.NoError(t, cache.Delete("zid-1"))

	_, err := cache.Get("zid-1")
	assert.ErrorIs(t, err, ErrHelloNotFound)

	// deleting a missing zid is not an error
	assert.NoError(t, cache.Delete("zid-1"))
}
