package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("cluster")

// Outcome classifies the result of a single RPC.
type Outcome int

const (
	// OK means the peer answered with result "ok".
	OK Outcome = iota
	// Unreachable covers network errors, timeouts, non-2xx statuses and
	// bodies that are not a valid envelope.
	Unreachable
	// Rejected means the peer answered with result "error".
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case Unreachable:
		return "unreachable"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Result is what every peer client verb reports.
type Result struct {
	Outcome Outcome
	Msg     string
}

// Ok reports whether the call succeeded.
func (r Result) Ok() bool {
	return r.Outcome == OK
}

func (r Result) String() string {
	if r.Msg == "" {
		return r.Outcome.String()
	}
	return fmt.Sprintf("%s: %s", r.Outcome, r.Msg)
}

// Client issues the cluster RPC verbs against peers and the central node.
// It is safe for concurrent use.
type Client struct {
	http *http.Client
}

// NewClient creates a client whose calls give up after timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{http: &http.Client{Timeout: timeout}}
}

// call performs one RPC and decodes the envelope's data into data when the
// peer answered "ok".
func (c *Client) call(ctx context.Context, method, addr, path string, body any, data any) Result {
	url := URL(addr, path)

	var resp Response
	if err := doJSON(ctx, c.http, method, url, body, &resp); err != nil {
		Logger.Debugf("%s %s failed: %v", method, url, err)
		return Result{Outcome: Unreachable, Msg: err.Error()}
	}

	switch resp.Result {
	case ResultOK:
	case ResultError:
		return Result{Outcome: Rejected, Msg: resp.Msg}
	default:
		return Result{Outcome: Unreachable, Msg: fmt.Sprintf("malformed response from %s", url)}
	}

	if data != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, data); err != nil {
			return Result{Outcome: Unreachable, Msg: fmt.Sprintf("malformed data from %s: %v", url, err)}
		}
	}
	return Result{Outcome: OK}
}

// Ping checks that the node at addr is alive. Anything but an "ok" answer
// counts as a failure.
func (c *Client) Ping(ctx context.Context, addr string) bool {
	return c.call(ctx, http.MethodGet, addr, "/ping/", nil, nil).Ok()
}

// Register upserts n in the registry of the central node.
func (c *Client) Register(ctx context.Context, central string, n Node) Result {
	res := c.call(ctx, http.MethodPut, central, "/register/", n, nil)
	Logger.Debugf("register %s@%s: %s", n.Name, n.Address, res)
	return res
}

// Nodes lists the registry of the central node as name -> address.
func (c *Client) Nodes(ctx context.Context, central string) (map[string]string, Result) {
	nodes := map[string]string{}
	res := c.call(ctx, http.MethodGet, central, "/register/", nil, &nodes)
	if !res.Ok() {
		return nil, res
	}
	return nodes, res
}

// Data fetches every committed record of the node at addr.
func (c *Client) Data(ctx context.Context, addr string) ([]Record, Result) {
	var records []Record
	res := c.call(ctx, http.MethodGet, addr, "/data/", nil, &records)
	if !res.Ok() {
		return nil, res
	}
	return records, res
}

// Propose hands a record to the leader at addr.
func (c *Client) Propose(ctx context.Context, addr string, rec Record) Result {
	return c.call(ctx, http.MethodPut, addr, "/proposal/", rec, nil)
}

// Prepare stages rec on the node at addr.
func (c *Client) Prepare(ctx context.Context, addr string, rec Record) Result {
	return c.call(ctx, http.MethodPut, addr, "/prepare/", rec, nil)
}

// Submit promotes the staged copy of rec on the node at addr.
func (c *Client) Submit(ctx context.Context, addr string, rec Record) Result {
	return c.call(ctx, http.MethodPut, addr, "/submit/", rec, nil)
}

// Rollback discards rec from the staging area of the node at addr.
func (c *Client) Rollback(ctx context.Context, addr string, rec Record) Result {
	return c.call(ctx, http.MethodPut, addr, "/rollback/", rec, nil)
}

// Leader asks the node at addr which node it believes to be the leader.
// An empty name means it has no belief.
func (c *Client) Leader(ctx context.Context, addr string) (string, Result) {
	var info LeaderInfo
	res := c.call(ctx, http.MethodGet, addr, "/leader/", nil, &info)
	return info.Leader, res
}

// Terminate asks the node at addr to kill itself. The answer is ignored.
func (c *Client) Terminate(ctx context.Context, addr string) {
	res := c.call(ctx, http.MethodGet, addr, "/kill/", nil, nil)
	Logger.Warningf("terminate %s: %s", addr, res)
}
