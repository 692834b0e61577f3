package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dreamware/quorra/internal/cluster"
	"github.com/dreamware/quorra/internal/coordinator"
	"github.com/dreamware/quorra/internal/health"
	"github.com/dreamware/quorra/internal/httpapi"
)

type server struct {
	self      cluster.Node
	registry  *coordinator.Registry
	monitor   *health.Monitor
	terminate func()
}

// CentralInfo is the payload of GET /info/ on the central node.
type CentralInfo struct {
	Name    string       `json:"name"`
	Address string       `json:"address"`
	Nodes   []NodeStatus `json:"nodes"`
}

// NodeStatus is a registered node and the outcome of its last health check.
// Health is nil until the node was checked once.
type NodeStatus struct {
	Name    string             `json:"name"`
	Address string             `json:"address"`
	Healthy bool               `json:"healthy"`
	Health  *health.NodeHealth `json:"health,omitempty"`
}

func newServer(self cluster.Node, registry *coordinator.Registry, monitor *health.Monitor, terminate func()) *server {
	return &server{
		self:      self,
		registry:  registry,
		monitor:   monitor,
		terminate: terminate,
	}
}

func (s *server) routes() http.Handler {
	r := httpapi.NewRouter(s.self, s.terminate)
	r.Get("/register/", s.handleList)
	r.Put("/register/", s.handleRegister)
	r.Get("/info/", s.handleInfo)
	httpapi.MountUnsupported(r, "central")
	return r
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var n cluster.Node
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		cluster.WriteError(w, "bad json")
		return
	}
	if err := s.registry.Register(r.Context(), n); err != nil {
		cluster.WriteError(w, err.Error())
		return
	}
	cluster.WriteOK(w, nil)
}

func (s *server) handleList(w http.ResponseWriter, r *http.Request) {
	all, err := s.registry.List(r.Context())
	if err != nil {
		cluster.WriteError(w, err.Error())
		return
	}
	cluster.WriteOK(w, all)
}

func (s *server) handleInfo(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.registry.Nodes(r.Context())
	if err != nil {
		cluster.WriteError(w, err.Error())
		return
	}
	checks := s.monitor.GetAllNodeHealth()

	info := CentralInfo{
		Name:    s.self.Name,
		Address: s.self.Address,
		Nodes:   make([]NodeStatus, 0, len(nodes)),
	}
	for _, n := range nodes {
		info.Nodes = append(info.Nodes, NodeStatus{
			Name:    n.Name,
			Address: n.Address,
			Healthy: s.monitor.IsHealthy(n.Name),
			Health:  checks[n.Name],
		})
	}
	cluster.WriteOK(w, info)
}

// nodes is the health monitor's node provider.
func (s *server) nodes() []cluster.Node {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	nodes, err := s.registry.Nodes(ctx)
	if err != nil {
		Logger.Errorf("health check skipped: %v", err)
		return nil
	}
	return nodes
}

// evict is the health monitor's unhealthy callback.
func (s *server) evict(n cluster.Node) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.registry.Evict(ctx, n.Name); err != nil {
		Logger.Errorf("evict %s: %v", n.Name, err)
	}
}
