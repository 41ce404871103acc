package registry

// ServiceInstance is one reachable server for a service.
type ServiceInstance struct {
	Addr    string `json:"addr"`
	Weight  int    `json:"weight"`            // Weight for load balancing
	Version string `json:"version,omitempty"` // Semantic version of the deployed service
	AppName string `json:"appName,omitempty"` // Application hosting the service, matched against the target app
}

type Registry interface {
	Register(serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(serviceName string, addr string) error
	Discover(serviceName string) ([]ServiceInstance, error)
	Watch(serviceName string) <-chan []ServiceInstance
}
