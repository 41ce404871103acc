package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"sync"

	"envelope-rpc/message"
	"envelope-rpc/registry"
)

// HashKeyProp is the request prop whose value keys the hash ring. Calls
// without it hash on their service method.
const HashKeyProp = "hash_key"

// ConsistentHashBalancer maps a call to an instance through a hash ring with
// virtual nodes, so the same key keeps landing on the same instance while the
// instance set is stable. The ring is rebuilt when the set changes.
type ConsistentHashBalancer struct {
	mu       sync.Mutex
	replicas int
	members  string // Joined addrs the ring was built from
	ring     []uint32
	nodes    map[uint32]string // Hash → addr
}

func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{replicas: 100}
}

func (b *ConsistentHashBalancer) rebuild(instances []registry.ServiceInstance, members string) {
	b.ring = b.ring[:0]
	b.nodes = make(map[uint32]string, len(instances)*b.replicas)
	for _, inst := range instances {
		for i := 0; i < b.replicas; i++ {
			hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", inst.Addr, i)))
			b.ring = append(b.ring, hash)
			b.nodes[hash] = inst.Addr
		}
	}
	sort.Slice(b.ring, func(i, j int) bool { return b.ring[i] < b.ring[j] })
	b.members = members
}

// HashKey returns the ring key for req.
func HashKey(req *message.Request) string {
	if v, ok := req.RequestProp(HashKeyProp); ok {
		return v.String()
	}
	return req.ServiceMethod()
}

func (b *ConsistentHashBalancer) Pick(req *message.Request, instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	addrs := make([]string, len(instances))
	for i, inst := range instances {
		addrs[i] = inst.Addr
	}
	sort.Strings(addrs)
	members := strings.Join(addrs, ",")

	b.mu.Lock()
	if members != b.members {
		b.rebuild(instances, members)
	}
	hash := crc32.ChecksumIEEE([]byte(HashKey(req)))
	idx := sort.Search(len(b.ring), func(i int) bool { return b.ring[i] >= hash })
	if idx == len(b.ring) {
		idx = 0
	}
	addr := b.nodes[b.ring[idx]]
	b.mu.Unlock()

	for i := range instances {
		if instances[i].Addr == addr {
			return &instances[i], nil
		}
	}
	return nil, fmt.Errorf("consistent hash: %s left the ring", addr)
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
