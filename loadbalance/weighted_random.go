package loadbalance

import (
	"math/rand"

	"envelope-rpc/message"
	"envelope-rpc/registry"
)

// WeightedRandomBalancer picks proportionally to Weight. Non-positive weights
// count as 1 so a misconfigured instance is still reachable.
type WeightedRandomBalancer struct{}

func weightOf(inst *registry.ServiceInstance) int {
	if inst.Weight <= 0 {
		return 1
	}
	return inst.Weight
}

func (b *WeightedRandomBalancer) Pick(_ *message.Request, instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	totalWeight := 0
	for i := range instances {
		totalWeight += weightOf(&instances[i])
	}

	r := rand.Intn(totalWeight)
	for i := range instances {
		r -= weightOf(&instances[i])
		if r < 0 {
			return &instances[i], nil
		}
	}
	return &instances[len(instances)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
