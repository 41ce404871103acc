package loadbalance

import (
	"errors"
	"fmt"
	"testing"

	"envelope-rpc/message"
	"envelope-rpc/registry"
)

var testInstances = []registry.ServiceInstance{
	{Addr: ":8001", Weight: 10, Version: "1.0.0"},
	{Addr: ":8002", Weight: 5, Version: "1.0.0"},
	{Addr: ":8003", Weight: 10, Version: "1.0.0"},
}

func keyed(key string) *message.Request {
	req := message.NewRequest("Arith", "Add")
	req.AddRequestProp(HashKeyProp, message.StringValue(key))
	return req
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}
	req := message.NewRequest("Arith", "Add")

	results := make([]string, 3)
	for i := 0; i < 3; i++ {
		inst, err := b.Pick(req, testInstances)
		if err != nil {
			t.Fatal(err)
		}
		results[i] = inst.Addr
	}
	if results[0] == results[1] || results[1] == results[2] {
		t.Fatalf("expect distinct picks, got %v", results)
	}

	inst, _ := b.Pick(req, testInstances)
	if inst.Addr != results[0] {
		t.Fatalf("expect wrap around to %s, got %s", results[0], inst.Addr)
	}
}

func TestEmptyInstances(t *testing.T) {
	req := message.NewRequest("Arith", "Add")
	for _, b := range []Balancer{&RoundRobinBalancer{}, &WeightedRandomBalancer{}, NewConsistentHashBalancer()} {
		if _, err := b.Pick(req, nil); !errors.Is(err, ErrNoInstances) {
			t.Fatalf("%s: expect ErrNoInstances, got %v", b.Name(), err)
		}
	}
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}
	req := message.NewRequest("Arith", "Add")

	counts := map[string]int{}
	for i := 0; i < 10000; i++ {
		inst, err := b.Pick(req, testInstances)
		if err != nil {
			t.Fatal(err)
		}
		counts[inst.Addr]++
	}

	// Weights are 10:5:10, so :8001 should see about twice the traffic of :8002.
	ratio := float64(counts[":8001"]) / float64(counts[":8002"])
	if ratio < 1.5 || ratio > 2.5 {
		t.Fatalf("weight ratio :8001/:8002 = %.2f, expect ~2.0", ratio)
	}
}

func TestWeightedRandomZeroWeights(t *testing.T) {
	b := &WeightedRandomBalancer{}
	instances := []registry.ServiceInstance{{Addr: ":1"}, {Addr: ":2"}}
	if _, err := b.Pick(message.NewRequest("Arith", "Add"), instances); err != nil {
		t.Fatalf("zero weights should still pick, got %v", err)
	}
}

func TestConsistentHash(t *testing.T) {
	b := NewConsistentHashBalancer()

	inst1, _ := b.Pick(keyed("user-123"), testInstances)
	inst2, _ := b.Pick(keyed("user-123"), testInstances)
	if inst1.Addr != inst2.Addr {
		t.Fatalf("same key mapped to different instances: %s vs %s", inst1.Addr, inst2.Addr)
	}

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		inst, err := b.Pick(keyed(fmt.Sprintf("key-%d", i)), testInstances)
		if err != nil {
			t.Fatal(err)
		}
		seen[inst.Addr] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expect at least 2 different instances, got %d", len(seen))
	}
}

func TestConsistentHashRebuildsOnChange(t *testing.T) {
	b := NewConsistentHashBalancer()
	first, _ := b.Pick(keyed("user-1"), testInstances)

	var remaining []registry.ServiceInstance
	for _, inst := range testInstances {
		if inst.Addr != first.Addr {
			remaining = append(remaining, inst)
		}
	}
	next, err := b.Pick(keyed("user-1"), remaining)
	if err != nil {
		t.Fatal(err)
	}
	if next.Addr == first.Addr {
		t.Fatalf("removed instance %s still picked", first.Addr)
	}
}

func TestHashKeyFallsBackToServiceMethod(t *testing.T) {
	if got := HashKey(message.NewRequest("Arith", "Add")); got != "Arith.Add" {
		t.Fatalf("expect Arith.Add, got %s", got)
	}
	req := message.NewRequest("Arith", "Add")
	req.AddRequestProp(HashKeyProp, message.IntValue(42))
	if got := HashKey(req); got != "42" {
		t.Fatalf("expect 42, got %s", got)
	}
}
