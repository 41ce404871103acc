package registry

import (
	"context"
	"testing"
	"time"
)

// newTestRegistry skips when no etcd answers on localhost:2379.
func newTestRegistry(t *testing.T) *EtcdRegistry {
	t.Helper()
	reg, err := NewEtcdRegistry([]string{"localhost:2379"}, time.Second)
	if err != nil {
		t.Skipf("etcd unavailable: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := reg.client.Status(ctx, "localhost:2379"); err != nil {
		reg.Close()
		t.Skipf("etcd unavailable: %v", err)
	}
	return reg
}

func TestRegisterAndDiscover(t *testing.T) {
	reg := newTestRegistry(t)
	defer reg.Close()

	inst1 := ServiceInstance{Addr: "127.0.0.1:8001", Weight: 10, Version: "1.0.0", AppName: "calc"}
	inst2 := ServiceInstance{Addr: "127.0.0.1:8002", Weight: 5, Version: "1.2.0", AppName: "calc"}

	if err := reg.Register("Arith", inst1, 10); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register("Arith", inst2, 10); err != nil {
		t.Fatal(err)
	}

	instances, err := reg.Discover("Arith")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 2 {
		t.Fatalf("expect 2 instances, got %d", len(instances))
	}

	if err := reg.Deregister("Arith", inst1.Addr); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	instances, err = reg.Discover("Arith")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 1 || instances[0].Addr != inst2.Addr {
		t.Fatalf("expect only %s after deregister, got %v", inst2.Addr, instances)
	}

	reg.Deregister("Arith", inst2.Addr)
}
