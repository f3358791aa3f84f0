package bootstrap

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acme/acct-console/config"
)

func TestNewRedisClient(t *testing.T) {
	t.Run("direct address", func(t *testing.T) {
		client, desc, err := NewRedisClient(config.RedisConfig{URI: " localhost:6379 ", DB: 2})
		require.NoError(t, err)
		t.Cleanup(func() { _ = client.Close() })

		c, ok := client.(*redis.Client)
		require.True(t, ok)
		assert.Equal(t, 2, c.Options().DB)
		assert.Equal(t, "localhost:6379", desc)
	})

	t.Run("direct url", func(t *testing.T) {
		client, desc, err := NewRedisClient(config.RedisConfig{URI: "redis://:secret@cache:6380/3"})
		require.NoError(t, err)
		t.Cleanup(func() { _ = client.Close() })

		c := client.(*redis.Client)
		assert.Equal(t, "cache:6380", c.Options().Addr)
		assert.Equal(t, 3, c.Options().DB)
		assert.Equal(t, "secret", c.Options().Password)
		assert.Equal(t, "cache:6380", desc)
	})

	t.Run("cluster nodes", func(t *testing.T) {
		client, desc, err := NewRedisClient(config.RedisConfig{UseCluster: true, ClusterNodes: []string{"a:7000", " ", "b:7001"}})
		require.NoError(t, err)
		t.Cleanup(func() { _ = client.Close() })

		_, ok := client.(*redis.ClusterClient)
		assert.True(t, ok)
		assert.Equal(t, "cluster:a:7000,b:7001", desc)
	})

	t.Run("cluster falls back to uri", func(t *testing.T) {
		client, desc, err := NewRedisClient(config.RedisConfig{UseCluster: true, URI: "rediss://u:p@c:7000"})
		require.NoError(t, err)
		t.Cleanup(func() { _ = client.Close() })
		assert.Equal(t, "cluster:c:7000", desc)
	})

	t.Run("cluster without addresses", func(t *testing.T) {
		_, _, err := NewRedisClient(config.RedisConfig{UseCluster: true})
		assert.Error(t, err)
	})

	t.Run("sentinel", func(t *testing.T) {
		client, desc, err := NewRedisClient(config.RedisConfig{
			UseSentinel:        true,
			SentinelNodes:      []string{"s1", "s2:26380"},
			SentinelPort:       "26379",
			SentinelMasterName: "primary",
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = client.Close() })
		assert.Equal(t, "sentinel:primary", desc)
	})

	t.Run("url password overrides flat setting", func(t *testing.T) {
		opts, topology, err := universalOptions(config.RedisConfig{URI: "redis://:fromurl@cache:6379", Password: "flat", DB: 4})
		require.NoError(t, err)
		assert.Equal(t, topologyDirect, topology)
		assert.Equal(t, "fromurl", opts.Password)
		assert.Equal(t, 4, opts.DB, "a URL without a path keeps REDIS_DB")
	})

	t.Run("bare address with credentials is redacted", func(t *testing.T) {
		client, desc, err := NewRedisClient(config.RedisConfig{URI: "user@cache:6379"})
		require.NoError(t, err)
		t.Cleanup(func() { _ = client.Close() })
		assert.Equal(t, "cache:6379", desc)
	})

	t.Run("sentinel without nodes", func(t *testing.T) {
		_, _, err := NewRedisClient(config.RedisConfig{UseSentinel: true, SentinelNodes: []string{""}})
		assert.Error(t, err)
	})

	t.Run("empty uri", func(t *testing.T) {
		_, _, err := NewRedisClient(config.RedisConfig{})
		assert.Error(t, err)
	})
}

func TestNormalizeAddrs(t *testing.T) {
	assert.Equal(t, []string{"s1:26379", "s2:26380", "[::1]:26379"},
		normalizeAddrs([]string{" s1 ", "", "s2:26380", "::1"}, "26379"))
	assert.Equal(t, []string{"a", "b:1"}, normalizeAddrs([]string{"a", "b:1"}, ""))
}

func TestRedactAddr(t *testing.T) {
	assert.Equal(t, "redis://:xxxxx@cache:6379/0", redactAddr("redis://:pw@cache:6379/0"))
	assert.Equal(t, "cache:6379", redactAddr("user@cache:6379"))
	assert.Equal(t, "localhost:6379", redactAddr("localhost:6379"))
}

func TestConnectRedis_Unreachable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ConnectRedis(ctx, config.RedisConfig{URI: "127.0.0.1:1"}, nil)
	assert.Error(t, err)
}
