package peer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/quorra/internal/cluster"
)

func TestTally(t *testing.T) {
	tests := []struct {
		name    string
		beliefs []string
		want    string
	}{
		{"no beliefs", nil, ""},
		{"single", []string{"n1"}, "n1"},
		{"clear majority", []string{"n1", "n2", "n1"}, "n1"},
		{"tie goes to last seen", []string{"n1", "n2"}, "n2"},
		{"tie after reordering", []string{"n2", "n1", "n1", "n2"}, "n1"},
		{"top group of three", []string{"n3", "n1", "n2", "n1", "n2", "n3"}, "n2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tally(tt.beliefs))
		})
	}
}

func TestFallback(t *testing.T) {
	tests := []struct {
		name   string
		counts map[string]int
		want   string
	}{
		{"empty", nil, ""},
		{"most records", map[string]int{"n1": 3, "n2": 1, "n3": 2}, "n1"},
		{"tie goes to greatest name", map[string]int{"n1": 2, "n2": 2, "n0": 1}, "n2"},
		{"all empty", map[string]int{"n1": 0, "n2": 0, "n3": 0}, "n3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Fallback(tt.counts))
		})
	}
}

// TestElectionProperties checks the tie-break rules hold for any input
func TestElectionProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	toNames := func(ids []int) []string {
		out := make([]string, len(ids))
		for i, id := range ids {
			out[i] = fmt.Sprintf("n%d", id)
		}
		return out
	}

	properties.Property("tally winner has the top vote count", prop.ForAll(
		func(ids []int) bool {
			beliefs := toNames(ids)
			winner := Tally(beliefs)
			if len(beliefs) == 0 {
				return winner == ""
			}
			counts := map[string]int{}
			for _, b := range beliefs {
				counts[b]++
			}
			for _, n := range counts {
				if n > counts[winner] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 4)),
	))

	properties.Property("tally winner is the last first-seen candidate of the top group", prop.ForAll(
		func(ids []int) bool {
			beliefs := toNames(ids)
			winner := Tally(beliefs)
			counts := map[string]int{}
			var order []string
			for _, b := range beliefs {
				if counts[b] == 0 {
					order = append(order, b)
				}
				counts[b]++
			}
			seenWinner := false
			for _, c := range order {
				if c == winner {
					seenWinner = true
					continue
				}
				if seenWinner && counts[c] == counts[winner] {
					return false
				}
			}
			return winner == "" || seenWinner
		},
		gen.SliceOf(gen.IntRange(0, 4)),
	))

	properties.Property("fallback picks the greatest name among the largest counts", prop.ForAll(
		func(sizes []int) bool {
			counts := map[string]int{}
			for i, n := range sizes {
				counts[fmt.Sprintf("n%02d", i)] = n
			}
			winner := Fallback(counts)
			if len(counts) == 0 {
				return winner == ""
			}
			for name, n := range counts {
				if n > counts[winner] || (n == counts[winner] && name > winner) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 3)),
	))

	properties.TestingRun(t)
}

func TestRoundSingleNode(t *testing.T) {
	f := newFakeNet()
	p := f.addPeer("n1")
	f.register(p)

	leader, ok := p.Elector.Round(context.Background())
	require.True(t, ok)
	assert.Equal(t, "n1", leader)
	assert.Equal(t, "", p.View.Leader(), "a round does not change the belief")
}

func TestRoundReRegisters(t *testing.T) {
	f := newFakeNet()
	p := f.addPeer("n1")

	_, ok := p.Elector.Round(context.Background())
	assert.False(t, ok)

	nodes, _ := f.Nodes(context.Background(), centralAddr)
	assert.Equal(t, "n1:9000", nodes["n1"])

	// registered on a stale address counts as missing
	f.mu.Lock()
	f.registry["n1"] = "old:1"
	f.mu.Unlock()
	_, ok = p.Elector.Round(context.Background())
	assert.False(t, ok)
	nodes, _ = f.Nodes(context.Background(), centralAddr)
	assert.Equal(t, "n1:9000", nodes["n1"])
}

func TestRoundCentralDown(t *testing.T) {
	f := newFakeNet()
	p := f.addPeer("n1")
	f.register(p)
	f.centralDown = true

	_, ok := p.Elector.Round(context.Background())
	assert.False(t, ok)
}

func TestRoundFollowsPlurality(t *testing.T) {
	f := newFakeNet()
	p1, p2, p3 := f.addPeer("n1"), f.addPeer("n2"), f.addPeer("n3")
	for _, p := range []*Peer{p1, p2, p3} {
		f.register(p)
	}
	p1.View.SetLeader("n1")
	p2.View.SetLeader("n1")

	leader, ok := p3.Elector.Round(context.Background())
	require.True(t, ok)
	assert.Equal(t, "n1", leader)
	assert.Len(t, p3.View.Known(), 3, "round refreshes the cached membership")
}

func TestRoundUnreachableWinnerFallsBack(t *testing.T) {
	ctx := context.Background()
	f := newFakeNet()
	p1, p2, p3 := f.addPeer("n1"), f.addPeer("n2"), f.addPeer("n3")
	for _, p := range []*Peer{p1, p2, p3} {
		f.register(p)
	}
	p2.View.SetLeader("n1")
	p3.View.SetLeader("n1")
	f.setDown("n1:9000", true)

	_, err := p2.Replica.Load(ctx, []cluster.Record{{ID: "a"}, {ID: "b"}})
	require.NoError(t, err)

	leader, ok := p3.Elector.Round(ctx)
	require.True(t, ok)
	assert.Equal(t, "n2", leader, "reachable node with most records")
}

func TestRoundIgnoresEvictedWinner(t *testing.T) {
	f := newFakeNet()
	p1, p2 := f.addPeer("n1"), f.addPeer("n2")
	f.register(p1)
	f.register(p2)
	p1.View.SetLeader("n9")
	p2.View.SetLeader("n9")

	leader, ok := p1.Elector.Round(context.Background())
	require.True(t, ok)
	assert.Equal(t, "n2", leader)
}

func TestElect(t *testing.T) {
	f := newFakeNet()
	p := f.addPeer("n1")

	// first round registers, second elects
	leader, err := p.Elector.Elect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "n1", leader)
	assert.True(t, p.View.IsLeader())
}

func TestElectCancelled(t *testing.T) {
	f := newFakeNet()
	p := f.addPeer("n1")
	f.centralDown = true

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := p.Elector.Elect(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "", p.View.Leader())
}

// TestElectConvergence checks that nodes with the same view pick the same
// leader even when they elect at the same time
func TestElectConvergence(t *testing.T) {
	f := newFakeNet()
	peers := []*Peer{f.addPeer("n1"), f.addPeer("n2"), f.addPeer("n3")}
	for _, p := range peers {
		f.register(p)
	}

	results := make(chan string, len(peers))
	for _, p := range peers {
		go func(p *Peer) {
			leader, err := p.Elector.Elect(context.Background())
			assert.NoError(t, err)
			results <- leader
		}(p)
	}

	for range peers {
		assert.Equal(t, "n3", <-results)
	}
}
