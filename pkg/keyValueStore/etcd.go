package keyValueStore

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdStore keeps the input and output values as plain etcd keys, optionally under a prefix.
type EtcdStore struct {
	cli       *clientv3.Client
	endpoints []string
	prefix    string
	opTimeout time.Duration
	logger    *slog.Logger
}

// NewEtcdStore creates the etcd client. The client dials lazily; Connect probes it with Status.
func NewEtcdStore(opts Options, logger *slog.Logger) (*EtcdStore, error) {
	opts.applyDefaults()
	if len(opts.Endpoints) == 0 {
		return nil, errors.New("keyValueStore: at least one etcd endpoint is required")
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   opts.Endpoints,
		DialTimeout: opts.ConnectTimeout,
	})
	if err != nil {
		return nil, err
	}

	return &EtcdStore{
		cli:       cli,
		endpoints: opts.Endpoints,
		prefix:    normalizePrefix(opts.Prefix),
		opTimeout: opts.OperationTimeout,
		logger:    logger,
	}, nil
}

func (s *EtcdStore) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	resp, err := s.cli.Get(ctx, s.key(key))
	if err != nil {
		return "", false, err
	}
	if len(resp.Kvs) == 0 || len(resp.Kvs[0].Value) == 0 {
		return "", false, nil
	}
	return string(resp.Kvs[0].Value), true, nil
}

func (s *EtcdStore) Set(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	_, err := s.cli.Put(ctx, s.key(key), value)
	return err
}

// Ping asks the first endpoint for its status.
func (s *EtcdStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	_, err := s.cli.Status(ctx, s.endpoints[0])
	return err
}

func (s *EtcdStore) Close() error {
	if s == nil || s.cli == nil {
		return nil
	}
	return s.cli.Close()
}

func (s *EtcdStore) key(k string) string {
	return s.prefix + k
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}
