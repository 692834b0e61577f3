// Package httpapi holds the HTTP plumbing shared by the central and peer
// binaries: the router with its middleware, the handlers every node serves
// and the capability errors for verbs a node does not implement.
package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lni/dragonboat/v4/logger"

	"github.com/dreamware/quorra/internal/cluster"
)

var Logger = logger.GetLogger("http")

// Route is one RPC verb of the cluster protocol.
type Route struct {
	Verb    string
	Path    string
	Methods []string
}

// Routes lists every verb a node may serve. A node mounts the ones it
// implements and answers the rest with a capability error.
var Routes = []Route{
	{"register", "/register/", []string{http.MethodGet, http.MethodPut}},
	{"data", "/data/", []string{http.MethodGet, http.MethodPut}},
	{"proposal", "/proposal/", []string{http.MethodPut}},
	{"prepare", "/prepare/", []string{http.MethodPut}},
	{"submit", "/submit/", []string{http.MethodPut}},
	{"rollback", "/rollback/", []string{http.MethodPut}},
	{"ping", "/ping/", []string{http.MethodGet}},
	{"leader", "/leader/", []string{http.MethodGet}},
	{"info", "/info/", []string{http.MethodGet}},
	{"kill", "/kill/", []string{http.MethodGet}},
}

// NewRouter returns a router with the shared middleware, /metrics and the
// verbs every node serves (ping and kill).
func NewRouter(self cluster.Node, terminate func()) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/ping/", Ping(self))
	r.Get("/kill/", Kill(terminate))
	r.Get("/metrics", Metrics)
	return r
}

// MountUnsupported answers every verb in Routes that r does not serve with a
// capability error naming role.
func MountUnsupported(r chi.Router, role string) {
	for _, route := range Routes {
		for _, method := range route.Methods {
			if r.Match(chi.NewRouteContext(), method, route.Path) {
				continue
			}
			r.Method(method, route.Path, Unsupported(route.Verb, role))
		}
	}
}

// Unsupported answers with a capability error.
func Unsupported(verb, role string) http.HandlerFunc {
	msg := fmt.Sprintf("%s is not supported by %s nodes", verb, role)
	return func(w http.ResponseWriter, _ *http.Request) {
		cluster.WriteError(w, msg)
	}
}

// Ping answers with the identity of the node.
func Ping(self cluster.Node) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		cluster.WriteOK(w, self)
	}
}

// Kill answers ok and then calls terminate.
func Kill(terminate func()) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		Logger.Warningf("kill requested by %s", r.RemoteAddr)
		cluster.WriteOK(w, nil)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		go terminate()
	}
}

// Metrics writes the process metrics in Prometheus text format.
func Metrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	metrics.WritePrometheus(w, true)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		Logger.Debugf("%s %s %d %v [%s]", r.Method, r.URL.Path, ww.Status(), time.Since(start), middleware.GetReqID(r.Context()))
	})
}
