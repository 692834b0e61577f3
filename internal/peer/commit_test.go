package peer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/quorra/internal/cluster"
	"github.com/dreamware/quorra/internal/replica"
)

func rec(id string) cluster.Record {
	return cluster.Record{ID: id, Raw: "raw-" + id, Signature: "sig-" + id}
}

// newCluster creates n registered peers with n1 as leader everywhere.
func newCluster(t *testing.T, names ...string) (*fakeNet, []*Peer) {
	t.Helper()
	f := newFakeNet()
	peers := make([]*Peer, 0, len(names))
	for _, name := range names {
		p := f.addPeer(name)
		f.register(p)
		peers = append(peers, p)
	}
	for _, p := range peers {
		p.View.SetLeader(names[0])
		p.View.SetKnown(f.registry)
	}
	return f, peers
}

func recordIDs(t *testing.T, p *Peer) []string {
	t.Helper()
	records, err := p.Replica.Records(context.Background())
	require.NoError(t, err)
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}

func assertNothingStaged(t *testing.T, peers []*Peer) {
	t.Helper()
	for _, p := range peers {
		info, err := p.Replica.Info(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, info.Staged, "%s has staged records", p.View.Self().Name)
	}
}

// TestCommitThreePeers is the basic replication scenario
func TestCommitThreePeers(t *testing.T) {
	ctx := context.Background()
	_, peers := newCluster(t, "n1", "n2", "n3")
	leader := peers[0]

	require.NoError(t, leader.Committer.Commit(ctx, rec("a")))
	assert.Equal(t, PhaseCommitted, leader.Committer.Phase())

	for _, p := range peers {
		assert.Equal(t, []string{"a"}, recordIDs(t, p), p.View.Self().Name)
	}
	assertNothingStaged(t, peers)
}

// TestCommitDuplicate checks a committed id is refused before any peer is
// contacted
func TestCommitDuplicate(t *testing.T) {
	ctx := context.Background()
	f, peers := newCluster(t, "n1", "n2", "n3")
	leader := peers[0]

	require.NoError(t, leader.Committer.Commit(ctx, rec("a")))
	prepares := len(f.prepares)

	err := leader.Committer.Commit(ctx, rec("a"))
	assert.ErrorIs(t, err, replica.ErrDuplicateID)
	assert.Equal(t, "dup id!", err.Error())
	assert.Equal(t, prepares, len(f.prepares))

	for _, p := range peers {
		assert.Equal(t, []string{"a"}, recordIDs(t, p))
	}
}

// TestCommitUnreachablePeer checks a registered but dead peer aborts the
// proposal everywhere
func TestCommitUnreachablePeer(t *testing.T) {
	ctx := context.Background()
	f, peers := newCluster(t, "n1", "n2", "n3")
	f.mu.Lock()
	f.registry["n4"] = "n4:9000"
	f.mu.Unlock()

	err := peers[0].Committer.Commit(ctx, rec("a"))
	assert.ErrorIs(t, err, ErrPrepareRollbackSuccess)
	assert.Equal(t, "prepare failed, rollback success!", err.Error())
	assert.Equal(t, PhaseAborted, peers[0].Committer.Phase())

	for _, p := range peers {
		assert.Empty(t, recordIDs(t, p))
	}
	assertNothingStaged(t, peers)
	assert.Empty(t, f.terminatedAddrs())
}

// TestCommitPrepareRejected checks rollback covers exactly the prepared peers
func TestCommitPrepareRejected(t *testing.T) {
	ctx := context.Background()
	f, peers := newCluster(t, "n1", "n2", "n3")
	require.NoError(t, peers[2].Replica.Prepare(ctx, rec("a")))

	err := peers[0].Committer.Commit(ctx, rec("a"))
	assert.ErrorIs(t, err, ErrPrepareRollbackSuccess)

	// n3 refused with its own staged copy, which must survive the rollback
	info, err := peers[2].Replica.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Staged)
	assertNothingStaged(t, peers[:2])
	assert.Empty(t, f.terminatedAddrs())
}

// TestCommitAbandonedStage checks a record left staged by a proposal that
// never finished is not committed by the next one
func TestCommitAbandonedStage(t *testing.T) {
	ctx := context.Background()
	_, peers := newCluster(t, "n1", "n2", "n3")
	for _, p := range peers {
		p.Replica.StageTimeout = 100 * time.Millisecond
	}

	// a previous leader staged x on n2 and n3, then went away
	require.NoError(t, peers[1].Replica.Prepare(ctx, rec("x")))
	require.NoError(t, peers[2].Replica.Prepare(ctx, rec("x")))

	err := peers[0].Committer.Commit(ctx, rec("y"))
	assert.ErrorIs(t, err, ErrPrepareRollbackSuccess)
	for _, p := range peers {
		assert.Empty(t, recordIDs(t, p), p.View.Self().Name)
	}

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, peers[0].Committer.Commit(ctx, rec("y")))
	require.NoError(t, peers[0].Committer.Commit(ctx, rec("x")))

	for _, p := range peers {
		assert.Equal(t, []string{"y", "x"}, recordIDs(t, p), p.View.Self().Name)
	}
	assertNothingStaged(t, peers)
}

// TestCommitPrepareRollbackFails checks a peer that cannot roll back is
// terminated
func TestCommitPrepareRollbackFails(t *testing.T) {
	ctx := context.Background()
	f, peers := newCluster(t, "n1", "n2", "n3")
	f.failPrepare["n3:9000"] = "disk full"
	f.failRollback["n2:9000"] = "disk full"

	err := peers[0].Committer.Commit(ctx, rec("a"))
	assert.ErrorIs(t, err, ErrPrepareRollbackFailed)
	assert.Equal(t, "prepare failed, rollback failed!", err.Error())
	assert.Equal(t, []string{"n2:9000"}, f.terminatedAddrs())
	assertNothingStaged(t, peers[:1])
}

// TestCommitSubmitFails checks a failed submit compensates the peers that
// already promoted the record
func TestCommitSubmitFails(t *testing.T) {
	ctx := context.Background()
	f, peers := newCluster(t, "n1", "n2", "n3")
	f.failSubmit["n3:9000"] = "io error"

	err := peers[0].Committer.Commit(ctx, rec("a"))
	assert.ErrorIs(t, err, ErrSubmitRollbackSuccess)
	assert.Equal(t, "submit failed, rollback success!", err.Error())

	for _, p := range peers {
		assert.Empty(t, recordIDs(t, p), p.View.Self().Name)
	}
	assertNothingStaged(t, peers)
}

func TestCommitSubmitRollbackFails(t *testing.T) {
	ctx := context.Background()
	f, peers := newCluster(t, "n1", "n2", "n3")
	f.failSubmit["n2:9000"] = "io error"
	f.failRollback["n3:9000"] = "io error"

	err := peers[0].Committer.Commit(ctx, rec("a"))
	assert.ErrorIs(t, err, ErrSubmitRollbackFailed)
	assert.Equal(t, []string{"n3:9000"}, f.terminatedAddrs())
	assert.Empty(t, recordIDs(t, peers[0]))
}

// TestCommitBusy checks that a second proposal is refused while one runs
func TestCommitBusy(t *testing.T) {
	_, peers := newCluster(t, "n1")
	c := peers[0].Committer

	c.admission.Lock()
	err := c.Commit(context.Background(), rec("a"))
	c.admission.Unlock()
	assert.ErrorIs(t, err, ErrBusy)

	assert.NoError(t, c.Commit(context.Background(), rec("a")))
}

// TestCommitConcurrent checks concurrent proposals never interleave
func TestCommitConcurrent(t *testing.T) {
	ctx := context.Background()
	_, peers := newCluster(t, "n1", "n2", "n3")

	var wg sync.WaitGroup
	var mu sync.Mutex
	committed := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			err := peers[0].Committer.Commit(ctx, rec(id))
			if err == nil {
				mu.Lock()
				committed++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrBusy)
		}(string(rune('a' + i)))
	}
	wg.Wait()

	for _, p := range peers {
		assert.Len(t, recordIDs(t, p), committed)
	}
	assertNothingStaged(t, peers)
}

// TestCommitCentralDown checks the cached membership is used
func TestCommitCentralDown(t *testing.T) {
	ctx := context.Background()
	f, peers := newCluster(t, "n1", "n2")
	f.centralDown = true

	require.NoError(t, peers[0].Committer.Commit(ctx, rec("a")))
	assert.Equal(t, []string{"a"}, recordIDs(t, peers[1]))
}

func TestCommitInvalidRecord(t *testing.T) {
	_, peers := newCluster(t, "n1")
	assert.Error(t, peers[0].Committer.Commit(context.Background(), cluster.Record{Raw: "x"}))
}

// TestPropose checks followers forward to the leader
func TestPropose(t *testing.T) {
	ctx := context.Background()
	_, peers := newCluster(t, "n1", "n2")

	res := peers[1].Propose(ctx, rec("a"))
	require.True(t, res.Ok(), res.String())
	assert.Equal(t, []string{"a"}, recordIDs(t, peers[0]))
	assert.Equal(t, []string{"a"}, recordIDs(t, peers[1]))

	res = peers[1].Propose(ctx, rec("a"))
	assert.Equal(t, cluster.Rejected, res.Outcome)
	assert.Equal(t, "dup id!", res.Msg)

	peers[1].View.SetLeader("")
	res = peers[1].Propose(ctx, rec("b"))
	assert.Equal(t, ErrNoLeader.Error(), res.Msg)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "rolling back", PhaseRollingBack.String())
	assert.Equal(t, "unknown", Phase(99).String())
}
