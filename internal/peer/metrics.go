package peer

import "github.com/VictoriaMetrics/metrics"

var (
	electionRounds   = metrics.GetOrCreateCounter(`quorra_election_rounds_total`)
	electionFallback = metrics.GetOrCreateCounter(`quorra_election_fallbacks_total`)
	leaderChanges    = metrics.GetOrCreateCounter(`quorra_leader_changes_total`)

	proposals      = metrics.GetOrCreateCounter(`quorra_proposals_total`)
	proposalsBusy  = metrics.GetOrCreateCounter(`quorra_proposals_rejected_total{reason="busy"}`)
	proposalsDup   = metrics.GetOrCreateCounter(`quorra_proposals_rejected_total{reason="duplicate"}`)
	commits        = metrics.GetOrCreateCounter(`quorra_commits_total`)
	aborts         = metrics.GetOrCreateCounter(`quorra_aborts_total`)
	terminations   = metrics.GetOrCreateCounter(`quorra_terminations_total`)
	commitDuration = metrics.GetOrCreateSummary(`quorra_commit_duration_seconds`)

	bootstrapLoaded = metrics.GetOrCreateCounter(`quorra_bootstrap_records_total`)
)
