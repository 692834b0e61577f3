package main

import (
	"encoding/json"
	"net/http"

	"github.com/dreamware/quorra/internal/cluster"
	"github.com/dreamware/quorra/internal/health"
	"github.com/dreamware/quorra/internal/httpapi"
	"github.com/dreamware/quorra/internal/peer"
	"github.com/dreamware/quorra/internal/replica"
)

type server struct {
	peer      *peer.Peer
	terminate func()
}

// NodeInfo is the payload of GET /info/. LeaderHealth is the last check
// of the leader, absent when the node leads itself.
type NodeInfo struct {
	Name         string             `json:"name"`
	Address      string             `json:"address"`
	Leader       string             `json:"leader"`
	LeaderHealth *health.NodeHealth `json:"leader_health,omitempty"`
	Phase        string             `json:"phase"`
	Replica      replica.Info       `json:"replica"`
}

func newServer(p *peer.Peer, terminate func()) *server {
	return &server{peer: p, terminate: terminate}
}

func (s *server) routes() http.Handler {
	r := httpapi.NewRouter(s.peer.View.Self(), s.terminate)
	r.Get("/data/", s.handleListData)
	r.Put("/data/", s.handlePutData)
	r.Put("/proposal/", s.handleProposal)
	r.Put("/prepare/", s.handlePrepare)
	r.Put("/submit/", s.handleSubmit)
	r.Put("/rollback/", s.handleRollback)
	r.Get("/leader/", s.handleLeader)
	r.Get("/info/", s.handleInfo)
	httpapi.MountUnsupported(r, "peer")
	return r
}

// decodeRecord reads and validates the record in the request body. It writes
// the error envelope and returns false when the record is unusable.
func decodeRecord(w http.ResponseWriter, r *http.Request) (cluster.Record, bool) {
	var rec cluster.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		cluster.WriteError(w, "bad json")
		return rec, false
	}
	if err := cluster.ValidateRecord(rec); err != nil {
		cluster.WriteError(w, err.Error())
		return rec, false
	}
	return rec, true
}

func writeErr(w http.ResponseWriter, err error) {
	if err != nil {
		cluster.WriteError(w, err.Error())
		return
	}
	cluster.WriteOK(w, nil)
}

func (s *server) handleListData(w http.ResponseWriter, r *http.Request) {
	records, err := s.peer.Replica.Records(r.Context())
	if err != nil {
		cluster.WriteError(w, err.Error())
		return
	}
	cluster.WriteOK(w, records)
}

// handlePutData hands a client write to the leader.
func (s *server) handlePutData(w http.ResponseWriter, r *http.Request) {
	rec, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	res := s.peer.Propose(r.Context(), rec)
	switch res.Outcome {
	case cluster.OK:
		cluster.WriteOK(w, nil)
	case cluster.Unreachable:
		Logger.Warningf("forward %s to leader: %s", rec.ID, res.Msg)
		cluster.WriteError(w, "leader unreachable")
	default:
		cluster.WriteError(w, res.Msg)
	}
}

func (s *server) handleProposal(w http.ResponseWriter, r *http.Request) {
	rec, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	if !s.peer.View.IsLeader() {
		cluster.WriteError(w, "not leader")
		return
	}
	writeErr(w, s.peer.Committer.Commit(r.Context(), rec))
}

func (s *server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	rec, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	writeErr(w, s.peer.Replica.Prepare(r.Context(), rec))
}

func (s *server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	rec, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	writeErr(w, s.peer.Replica.Submit(r.Context(), rec.ID))
}

func (s *server) handleRollback(w http.ResponseWriter, r *http.Request) {
	rec, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	writeErr(w, s.peer.Replica.Rollback(r.Context(), rec))
}

func (s *server) handleLeader(w http.ResponseWriter, _ *http.Request) {
	cluster.WriteOK(w, cluster.LeaderInfo{Leader: s.peer.View.Leader()})
}

func (s *server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.peer.Replica.Info(r.Context())
	if err != nil {
		cluster.WriteError(w, err.Error())
		return
	}
	self := s.peer.View.Self()
	cluster.WriteOK(w, NodeInfo{
		Name:         self.Name,
		Address:      self.Address,
		Leader:       s.peer.View.Leader(),
		LeaderHealth: s.peer.Supervisor.LeaderHealth(),
		Phase:        s.peer.Committer.Phase().String(),
		Replica:      info,
	})
}
