package asset

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/chainledger/core/pkg/consensus"
	"github.com/chainledger/core/pkg/crypto"
	"github.com/chainledger/core/pkg/model"
	"github.com/chainledger/core/pkg/query"
	"github.com/chainledger/core/pkg/store"
	"github.com/chainledger/core/pkg/txn"
)

func newTestAssetEngine(t *testing.T) (*Engine, *store.Memory, crypto.PublicKey, crypto.PrivateKey) {
	t.Helper()
	self, selfPriv, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate node keypair: %v", err)
	}
	mem := store.NewMemory()
	q := query.New(mem, self)
	txnEngine := txn.NewEngine(mem, consensus.NewDefaultPlugin(), q, self, nil)
	e := NewEngine(mem, txnEngine, q, self, selfPriv, nil)
	return e, mem, self, selfPriv
}

// acceptPending moves every backlog transaction into a single unanimously
// VALID block, simulating the external voter loop for test purposes. Each
// accepted block is timestamped one second after the previous one, so the
// most recent asset transaction is always the one in the latest block.
func acceptPending(t *testing.T, mem *store.Memory, self crypto.PublicKey, selfPriv crypto.PrivateKey) model.Block {
	t.Helper()
	ctx := context.Background()
	pending, err := mem.Backlog().AllTransactions(ctx)
	if err != nil {
		t.Fatalf("list backlog: %v", err)
	}
	if len(pending) == 0 {
		t.Fatal("no pending transactions to accept")
	}
	accepted, err := mem.Bigchain().Count(ctx)
	if err != nil {
		t.Fatalf("count bigchain: %v", err)
	}

	b := model.Block{
		Block: model.BlockBody{
			Timestamp:    strconv.Itoa(1700000000 + accepted),
			Transactions: pending,
			NodePubkey:   self,
			Voters:       []crypto.PublicKey{self},
		},
	}
	id, err := b.ComputeID()
	if err != nil {
		t.Fatalf("compute block id: %v", err)
	}
	b.ID = id
	vote, err := model.SignVote(self, selfPriv, model.VoteBody{VotingForBlock: b.ID, IsBlockValid: true, Timestamp: "1700000001"})
	if err != nil {
		t.Fatalf("sign vote: %v", err)
	}
	b.Votes = append(b.Votes, vote)

	if err := mem.Bigchain().InsertBlock(ctx, b, store.DurabilityHard); err != nil {
		t.Fatalf("insert block: %v", err)
	}
	for _, tx := range pending {
		if err := mem.Backlog().DeleteTransaction(ctx, tx.ID); err != nil {
			t.Fatalf("delete backlog transaction: %v", err)
		}
	}
	return b
}

func TestCreateAssetUniqueness(t *testing.T) {
	e, mem, self, selfPriv := newTestAssetEngine(t)
	ctx := context.Background()

	ownerA, _, _ := crypto.GenerateKeypair()
	ownerB, _, _ := crypto.GenerateKeypair()

	if _, err := e.CreateAsset(ctx, ownerA, model.Payload{"asset": "H"}); err != nil {
		t.Fatalf("create asset for A: %v", err)
	}
	acceptPending(t, mem, self, selfPriv)

	_, err := e.CreateAsset(ctx, ownerB, model.Payload{"asset": "H"})
	if !errors.Is(err, ErrInvalidAsset) {
		t.Fatalf("expected ErrInvalidAsset for duplicate asset hash, got %v", err)
	}
}

func TestAssetOwnerAfterTransfer(t *testing.T) {
	e, mem, self, selfPriv := newTestAssetEngine(t)
	ctx := context.Background()

	ownerA, ownerAPriv, _ := crypto.GenerateKeypair()
	ownerB, _, _ := crypto.GenerateKeypair()

	createdTx, err := e.CreateAsset(ctx, ownerA, model.Payload{"asset": "H2"})
	if err != nil {
		t.Fatalf("create asset: %v", err)
	}
	acceptPending(t, mem, self, selfPriv)

	owners, err := e.Owner(ctx, "H2")
	if err != nil {
		t.Fatalf("owner: %v", err)
	}
	if len(owners) != 1 || owners[0] != ownerA {
		t.Fatalf("expected owner A, got %v", owners)
	}

	input := model.Input{TxID: createdTx.ID, CID: 0}
	if _, err := e.TransferAsset(ctx, ownerA, ownerAPriv, ownerB, input); err != nil {
		t.Fatalf("transfer asset: %v", err)
	}
	acceptPending(t, mem, self, selfPriv)

	owners, err = e.Owner(ctx, "H2")
	if err != nil {
		t.Fatalf("owner after transfer: %v", err)
	}
	if len(owners) != 1 || owners[0] != ownerB {
		t.Fatalf("expected owner B after transfer, got %v", owners)
	}
}

func TestDestroyAssetMarksDestroyed(t *testing.T) {
	e, mem, self, selfPriv := newTestAssetEngine(t)
	ctx := context.Background()

	ownerA, ownerAPriv, _ := crypto.GenerateKeypair()

	if _, err := e.CreateAsset(ctx, ownerA, model.Payload{"asset": "H3"}); err != nil {
		t.Fatalf("create asset: %v", err)
	}
	acceptPending(t, mem, self, selfPriv)

	if _, err := e.DestroyAsset(ctx, ownerA, ownerAPriv, "H3"); err != nil {
		t.Fatalf("destroy asset: %v", err)
	}
	acceptPending(t, mem, self, selfPriv)

	_, err := e.LastTxByAsset(ctx, "H3")
	if !errors.Is(err, ErrInvalidAsset) {
		t.Fatalf("expected ErrInvalidAsset for destroyed asset, got %v", err)
	}
}
