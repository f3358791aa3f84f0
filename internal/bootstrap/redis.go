package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/acme/acct-console/config"
)

const redisPingTimeout = 5 * time.Second

type redisTopology string

const (
	topologyDirect   redisTopology = "direct"
	topologySentinel redisTopology = "sentinel"
	topologyCluster  redisTopology = "cluster"
)

// ConnectRedis builds the session store client for the configured topology
// and verifies it with a ping. The client is closed when the ping fails.
//
//nolint:ireturn // callers only need the command surface shared by all topologies
func ConnectRedis(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (redis.UniversalClient, error) {
	client, desc, err := NewRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, errors.Join(fmt.Errorf("ping redis %s: %w", desc, err), client.Close())
	}

	if logger != nil {
		logger.InfoContext(ctx, "redis connected", "target", desc)
	}
	return client, nil
}

// NewRedisClient creates, without dialing, the client for cfg's topology.
// The returned description carries no credentials.
//
//nolint:ireturn // see ConnectRedis
func NewRedisClient(cfg config.RedisConfig) (redis.UniversalClient, string, error) {
	opts, topology, err := universalOptions(cfg)
	if err != nil {
		return nil, "", err
	}

	switch topology {
	case topologyCluster:
		return redis.NewClusterClient(opts.Cluster()), "cluster:" + strings.Join(opts.Addrs, ","), nil
	case topologySentinel:
		return redis.NewFailoverClient(opts.Failover()), "sentinel:" + opts.MasterName, nil
	default:
		return redis.NewClient(opts.Simple()), redactAddr(opts.Addrs[0]), nil
	}
}

// universalOptions folds the flat REDIS_* settings into go-redis options.
// Cluster mode without CLUSTER_NODES falls back to REDIS_URI as a seed.
func universalOptions(cfg config.RedisConfig) (*redis.UniversalOptions, redisTopology, error) {
	opts := &redis.UniversalOptions{Password: cfg.Password, DB: cfg.DB}

	switch {
	case cfg.UseCluster:
		opts.Addrs = normalizeAddrs(cfg.ClusterNodes, "")
		if len(opts.Addrs) == 0 {
			if err := applyURI(opts, cfg.URI); err != nil {
				return nil, "", err
			}
		}
		if len(opts.Addrs) == 0 {
			return nil, "", errors.New("redis cluster mode needs REDIS_CLUSTER_NODES or REDIS_URI")
		}
		return opts, topologyCluster, nil

	case cfg.UseSentinel:
		opts.Addrs = normalizeAddrs(cfg.SentinelNodes, cfg.SentinelPort)
		if len(opts.Addrs) == 0 {
			return nil, "", errors.New("redis sentinel mode needs REDIS_SENTINEL_NODES")
		}
		opts.MasterName = cfg.SentinelMasterName
		opts.SentinelPassword = cfg.SentinelPassword
		return opts, topologySentinel, nil

	default:
		if err := applyURI(opts, cfg.URI); err != nil {
			return nil, "", err
		}
		if len(opts.Addrs) == 0 {
			return nil, "", errors.New("redis direct mode needs REDIS_URI")
		}
		return opts, topologyDirect, nil
	}
}

// applyURI copies the address from uri, a redis:// or rediss:// URL or a
// bare host:port. Credentials and DB in a URL override the flat settings.
func applyURI(opts *redis.UniversalOptions, uri string) error {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil
	}
	if !strings.HasPrefix(uri, "redis://") && !strings.HasPrefix(uri, "rediss://") {
		opts.Addrs = []string{uri}
		return nil
	}

	parsed, err := redis.ParseURL(uri)
	if err != nil {
		return fmt.Errorf("parse REDIS_URI: %w", err)
	}
	opts.Addrs = []string{parsed.Addr}
	opts.Username = parsed.Username
	opts.TLSConfig = parsed.TLSConfig
	if parsed.Password != "" {
		opts.Password = parsed.Password
	}
	if parsed.DB != 0 {
		opts.DB = parsed.DB
	}
	return nil
}

// normalizeAddrs trims entries, drops blanks and appends defaultPort to
// hosts given without one.
func normalizeAddrs(raw []string, defaultPort string) []string {
	out := make([]string, 0, len(raw))
	for _, addr := range raw {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if defaultPort != "" {
			if _, _, err := net.SplitHostPort(addr); err != nil {
				addr = net.JoinHostPort(addr, defaultPort)
			}
		}
		out = append(out, addr)
	}
	return out
}

// redactAddr strips credentials from a redis URL or user@host address.
func redactAddr(addr string) string {
	if u, err := url.Parse(addr); err == nil && u.User != nil {
		return u.Redacted()
	}
	if i := strings.LastIndex(addr, "@"); i > -1 {
		return addr[i+1:]
	}
	return addr
}
