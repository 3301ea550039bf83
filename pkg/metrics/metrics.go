// Package metrics exposes the Prometheus instrumentation surface the
// transaction and block engines and the query layer report into: transaction
// validation outcomes, blocks created, votes cast, and election status
// transitions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the collector registry every metric below registers into,
// and the one the reference daemon serves on its metrics endpoint. Using
// an explicit registry rather than the global default keeps package-level
// state out of prometheus.DefaultRegisterer.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

// TransactionsValidated counts Validate calls by outcome ("ok" or
// "invalid").
var TransactionsValidated = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ledger",
	Subsystem: "txn",
	Name:      "validated_total",
	Help:      "Transactions validated, partitioned by outcome.",
}, []string{"outcome"})

// BlocksCreated counts CreateBlock calls.
var BlocksCreated = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "ledger",
	Subsystem: "block",
	Name:      "created_total",
	Help:      "Blocks created by this node.",
})

// VotesCast counts CastVote calls, partitioned by whether the vote
// declared the block valid.
var VotesCast = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ledger",
	Subsystem: "block",
	Name:      "votes_cast_total",
	Help:      "Votes cast by this node, partitioned by is_valid.",
}, []string{"is_valid"})

// ElectionTransitions counts the block.Status computed each time the query
// layer resolves a block's election, partitioned by status; a block is
// counted again on every lookup, and UNDECIDED is counted like the others.
var ElectionTransitions = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ledger",
	Subsystem: "block",
	Name:      "election_transitions_total",
	Help:      "Block election outcomes observed, partitioned by status.",
}, []string{"status"})
