//go:build integration

package keyValueStore

import (
	"context"
	"flag"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	redisHost    = flag.String("redis-host", "localhost", "redis host used by the integration tests")
	redisPort    = flag.Int("redis-port", 6379, "redis port used by the integration tests")
	etcdEndpoint = flag.String("etcd-endpoint", "localhost:2379", "etcd endpoint used by the integration tests")
)

func roundTrip(t *testing.T, store Store) {
	ctx := context.Background()
	key := "kvfaas-test-" + uuid.NewString()

	_, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, key, `{"y":2}`))
	value, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"y":2}`, value)

	require.NoError(t, store.Set(ctx, key, ""))
	_, ok, err = store.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_RoundTrip(t *testing.T) {
	store, err := Connect(context.Background(), Options{Backend: BackendRedis, Host: *redisHost, Port: *redisPort}, testLogger())
	require.NoError(t, err)
	defer store.Close()

	roundTrip(t, store)
}

func TestEtcdStore_RoundTrip(t *testing.T) {
	store, err := Connect(context.Background(), Options{
		Backend:   BackendEtcd,
		Endpoints: []string{*etcdEndpoint},
		Prefix:    "kvfaas-test",
	}, testLogger())
	require.NoError(t, err)
	defer store.Close()

	roundTrip(t, store)
}
