// Package loadbalance picks one service instance per call.
//
// Strategies:
//   - RoundRobin:      equal-capacity, stateless instances
//   - WeightedRandom:  instances with different capacity
//   - ConsistentHash:  affinity, keyed on the call envelope
package loadbalance

import (
	"errors"

	"envelope-rpc/message"
	"envelope-rpc/registry"
)

var ErrNoInstances = errors.New("no instances available")

// Balancer is called once per call and must be safe for concurrent use.
type Balancer interface {
	Pick(req *message.Request, instances []registry.ServiceInstance) (*registry.ServiceInstance, error)
	Name() string
}
