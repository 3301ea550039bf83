package block

import (
	"context"
	"testing"
	"time"

	"github.com/chainledger/core/pkg/consensus"
	"github.com/chainledger/core/pkg/crypto"
	"github.com/chainledger/core/pkg/model"
	"github.com/chainledger/core/pkg/store"
)

func fixedClock() time.Time { return time.Unix(1700000000, 0) }

func newTestEngine(t *testing.T) (*Engine, crypto.PublicKey, crypto.PrivateKey) {
	t.Helper()
	pub, priv, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	plugin := &consensus.DefaultPlugin{Now: fixedClock, UUID: func() string { return "fixed" }}
	e := NewEngine(store.NewMemory(), plugin, nil, pub, priv, nil)
	e.Now = fixedClock
	return e, pub, priv
}

func TestCreateGenesisBlock(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	b, err := e.CreateGenesisBlock(ctx)
	if err != nil {
		t.Fatalf("create genesis: %v", err)
	}
	if b.BlockNumber == nil || *b.BlockNumber != 0 {
		t.Fatalf("expected block_number 0, got %+v", b.BlockNumber)
	}
	if len(b.Block.Transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(b.Block.Transactions))
	}

	if _, err := e.CreateGenesisBlock(ctx); err != ErrGenesisBlockAlreadyExists {
		t.Fatalf("expected ErrGenesisBlockAlreadyExists, got %v", err)
	}
}

func TestCreateBlockRejectsEmpty(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if _, err := e.CreateBlock(nil); err != ErrEmptyBlock {
		t.Fatalf("expected ErrEmptyBlock, got %v", err)
	}
}

func TestHasPreviousVoteDetectsImproperVote(t *testing.T) {
	e, pub, _ := newTestEngine(t)
	otherPub, otherPriv, _ := crypto.GenerateKeypair()

	vote, err := model.SignVote(otherPub, otherPriv, model.VoteBody{IsBlockValid: true, Timestamp: "1"})
	if err != nil {
		t.Fatalf("sign vote: %v", err)
	}
	// Forge the vote as if cast by self, with a signature that won't verify.
	vote.NodePubkey = pub

	b := model.Block{Votes: []model.Vote{vote}}
	if _, err := e.HasPreviousVote(b); err != ErrImproperVote {
		t.Fatalf("expected ErrImproperVote, got %v", err)
	}
}

func TestCastVoteAndWriteVoteIdempotent(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	b, err := e.CreateGenesisBlock(ctx)
	if err != nil {
		t.Fatalf("create genesis: %v", err)
	}

	vote, err := e.CastVote(b, "", true, nil)
	if err != nil {
		t.Fatalf("cast vote: %v", err)
	}
	if err := e.WriteVote(ctx, b, vote, 0); err != nil {
		t.Fatalf("write vote: %v", err)
	}
	if err := e.WriteVote(ctx, b, vote, 0); err != nil {
		t.Fatalf("write vote again: %v", err)
	}

	stored, ok, err := e.Store.Bigchain().GetBlock(ctx, b.ID)
	if err != nil || !ok {
		t.Fatalf("get block: ok=%v err=%v", ok, err)
	}
	if len(stored.Votes) != 1 {
		t.Fatalf("expected exactly 1 vote, got %d", len(stored.Votes))
	}
}

func TestElectionStatusTieBreak(t *testing.T) {
	voters := make([]crypto.PublicKey, 4)
	votes := make([]model.Vote, 4)
	for i := range voters {
		pub, priv, _ := crypto.GenerateKeypair()
		voters[i] = pub
		valid := i%2 == 0
		v, err := model.SignVote(pub, priv, model.VoteBody{IsBlockValid: valid, Timestamp: "1"})
		if err != nil {
			t.Fatalf("sign vote %d: %v", i, err)
		}
		votes[i] = v
	}
	b := model.Block{Block: model.BlockBody{Voters: voters}, Votes: votes}
	if got := ElectionStatus(b); got != StatusInvalid {
		t.Fatalf("expected tie-break INVALID, got %s", got)
	}
}

func TestElectionStatusBoundaries(t *testing.T) {
	mkVotes := func(n int, trueCount int) ([]crypto.PublicKey, []model.Vote) {
		voters := make([]crypto.PublicKey, n)
		var votes []model.Vote
		for i := 0; i < n; i++ {
			pub, priv, _ := crypto.GenerateKeypair()
			voters[i] = pub
			if i < trueCount {
				v, _ := model.SignVote(pub, priv, model.VoteBody{IsBlockValid: true, Timestamp: "1"})
				votes = append(votes, v)
			}
		}
		return voters, votes
	}

	voters, votes := mkVotes(5, 3)
	b := model.Block{Block: model.BlockBody{Voters: voters}, Votes: votes}
	if got := ElectionStatus(b); got != StatusValid {
		t.Fatalf("expected VALID for 3/5 true votes, got %s", got)
	}

	voters2, votes2 := mkVotes(5, 0)
	var invalidVotes []model.Vote
	for i := 0; i < 3; i++ {
		pub, priv, _ := crypto.GenerateKeypair()
		voters2[i] = pub
		v, _ := model.SignVote(pub, priv, model.VoteBody{IsBlockValid: false, Timestamp: "1"})
		invalidVotes = append(invalidVotes, v)
	}
	b2 := model.Block{Block: model.BlockBody{Voters: voters2}, Votes: append(votes2, invalidVotes...)}
	if got := ElectionStatus(b2); got != StatusInvalid {
		t.Fatalf("expected INVALID for 3/5 false votes, got %s", got)
	}
}
