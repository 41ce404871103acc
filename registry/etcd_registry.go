// Package registry provides service discovery. The etcd implementation stores
// one key per instance:
//
//	Key:   /envelope-rpc/{ServiceName}/{Addr}
//	Value: JSON-encoded ServiceInstance
//
// Keys are bound to a TTL lease so a crashed server drops out on its own.
package registry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	clientv3 "go.etcd.io/etcd/client/v3"

	"envelope-rpc/logger"
)

const keyPrefix = "/envelope-rpc/"

type EtcdRegistry struct {
	client *clientv3.Client // Safe for concurrent use
	log    zerolog.Logger
}

func NewEtcdRegistry(endpoints []string, dialTimeout time.Duration) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c, log: logger.WithComponent("registry")}, nil
}

func serviceKey(serviceName, addr string) string {
	return keyPrefix + serviceName + "/" + addr
}

// Register stores instance under a lease of ttl seconds and keeps the lease
// alive in the background. The lease ID stays local so one EtcdRegistry can
// serve several servers.
func (r *EtcdRegistry) Register(serviceName string, instance ServiceInstance, ttl int64) error {
	ctx := context.TODO()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, serviceKey(serviceName, instance.Addr), string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}

	go func() {
		for range ch {
		}
		r.log.Debug().Str("service", serviceName).Str("addr", instance.Addr).Msg("lease keepalive stopped")
	}()
	return nil
}

func (r *EtcdRegistry) Deregister(serviceName string, addr string) error {
	_, err := r.client.Delete(context.TODO(), serviceKey(serviceName, addr))
	return err
}

// Watch emits the full instance list of serviceName after every change under
// its prefix.
func (r *EtcdRegistry) Watch(serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	prefix := keyPrefix + serviceName + "/"

	go func() {
		defer close(ch)
		watchChan := r.client.Watch(context.TODO(), prefix, clientv3.WithPrefix())
		for range watchChan {
			instances, err := r.Discover(serviceName)
			if err != nil {
				r.log.Warn().Err(err).Str("service", serviceName).Msg("discover after watch event failed")
				continue
			}
			ch <- instances
		}
	}()

	return ch
}

func (r *EtcdRegistry) Discover(serviceName string) ([]ServiceInstance, error) {
	resp, err := r.client.Get(context.TODO(), keyPrefix+serviceName+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance ServiceInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			r.log.Warn().Str("key", string(kv.Key)).Err(err).Msg("skipping malformed instance")
			continue
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
