package query

import (
	"context"
	"errors"
	"testing"

	"github.com/chainledger/core/pkg/block"
	"github.com/chainledger/core/pkg/consensus"
	"github.com/chainledger/core/pkg/crypto"
	"github.com/chainledger/core/pkg/model"
	"github.com/chainledger/core/pkg/store"
)

type harness struct {
	store  *store.Memory
	plugin *consensus.DefaultPlugin
	query  *Query
	nodeP  crypto.PublicKey
	nodeS  crypto.PrivateKey
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	nodeP, nodeS, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate node keypair: %v", err)
	}
	mem := store.NewMemory()
	return &harness{
		store:  mem,
		plugin: consensus.NewDefaultPlugin(),
		query:  New(mem, nodeP),
		nodeP:  nodeP,
		nodeS:  nodeS,
	}
}

// acceptBlock builds a single-transaction block, signs it, and votes it
// VALID unanimously across the given voters (including self).
func (h *harness) acceptBlock(t *testing.T, txs []model.Transaction, voters []crypto.PublicKey, voterKeys map[string]crypto.PrivateKey) model.Block {
	t.Helper()
	b := model.Block{
		Block: model.BlockBody{
			Timestamp:    "1700000000",
			Transactions: txs,
			NodePubkey:   h.nodeP,
			Voters:       voters,
		},
	}
	id, err := b.ComputeID()
	if err != nil {
		t.Fatalf("compute block id: %v", err)
	}
	b.ID = id

	for _, v := range voters {
		priv := voterKeys[string(v)]
		vote, err := model.SignVote(v, priv, model.VoteBody{VotingForBlock: b.ID, IsBlockValid: true, Timestamp: "1700000001"})
		if err != nil {
			t.Fatalf("sign vote: %v", err)
		}
		b.Votes = append(b.Votes, vote)
	}
	if err := h.store.Bigchain().InsertBlock(context.Background(), b, store.DurabilitySoft); err != nil {
		t.Fatalf("insert block: %v", err)
	}
	return b
}

func (h *harness) createSigned(t *testing.T, owner crypto.PublicKey, ownerPriv crypto.PrivateKey, payload model.Payload) model.Transaction {
	t.Helper()
	tx, err := h.plugin.CreateTransaction([]crypto.PublicKey{owner}, []crypto.PublicKey{owner}, nil, model.OperationCreate, payload)
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	tx, err = h.plugin.SignTransaction(tx, ownerPriv)
	if err != nil {
		t.Fatalf("sign transaction: %v", err)
	}
	return tx
}

func TestGetTransactionResolvesValidBlock(t *testing.T) {
	h := newHarness(t)
	ownerP, ownerS, _ := crypto.GenerateKeypair()
	tx := h.createSigned(t, ownerP, ownerS, model.Payload{"category": "asset"})

	voters := []crypto.PublicKey{h.nodeP}
	keys := map[string]crypto.PrivateKey{string(h.nodeP): h.nodeS}
	h.acceptBlock(t, []model.Transaction{tx}, voters, keys)

	got, err := h.query.GetTransaction(context.Background(), tx.ID)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if got == nil || got.ID != tx.ID {
		t.Fatalf("expected to resolve transaction %s, got %+v", tx.ID, got)
	}
}

func TestSpentDetectsDoubleSpend(t *testing.T) {
	h := newHarness(t)
	ownerP, ownerS, _ := crypto.GenerateKeypair()
	receiver1, _, _ := crypto.GenerateKeypair()
	receiver2, _, _ := crypto.GenerateKeypair()

	createTx := h.createSigned(t, ownerP, ownerS, model.Payload{"category": "asset"})

	voterA, voterAPriv, _ := crypto.GenerateKeypair()
	voterB, voterBPriv, _ := crypto.GenerateKeypair()
	voters := []crypto.PublicKey{voterA, voterB}
	keys := map[string]crypto.PrivateKey{string(voterA): voterAPriv, string(voterB): voterBPriv}
	h.acceptBlock(t, []model.Transaction{createTx}, voters, keys)

	input := model.Input{TxID: createTx.ID, CID: 0}
	transfer1, err := h.plugin.CreateTransaction([]crypto.PublicKey{ownerP}, []crypto.PublicKey{receiver1}, &input, model.OperationTransfer, model.Payload{"category": "asset"})
	if err != nil {
		t.Fatalf("create transfer1: %v", err)
	}
	transfer1, _ = h.plugin.SignTransaction(transfer1, ownerS)

	transfer2, err := h.plugin.CreateTransaction([]crypto.PublicKey{ownerP}, []crypto.PublicKey{receiver2}, &input, model.OperationTransfer, model.Payload{"category": "asset"})
	if err != nil {
		t.Fatalf("create transfer2: %v", err)
	}
	transfer2, _ = h.plugin.SignTransaction(transfer2, ownerS)

	h.acceptBlock(t, []model.Transaction{transfer1}, voters, keys)
	h.acceptBlock(t, []model.Transaction{transfer2}, voters, keys)

	_, err = h.query.Spent(context.Background(), input)
	if !errors.Is(err, ErrDoubleSpend) {
		t.Fatalf("expected ErrDoubleSpend, got %v", err)
	}
}

func TestOwnedIDsAfterTransfer(t *testing.T) {
	h := newHarness(t)
	ownerA, ownerAPriv, _ := crypto.GenerateKeypair()
	ownerB, _, _ := crypto.GenerateKeypair()

	createTx := h.createSigned(t, ownerA, ownerAPriv, model.Payload{"category": "asset"})
	voters := []crypto.PublicKey{h.nodeP}
	keys := map[string]crypto.PrivateKey{string(h.nodeP): h.nodeS}
	h.acceptBlock(t, []model.Transaction{createTx}, voters, keys)

	ctx := context.Background()
	ownedA, err := h.query.OwnedIDs(ctx, ownerA)
	if err != nil {
		t.Fatalf("owned ids A: %v", err)
	}
	if len(ownedA) != 1 {
		t.Fatalf("expected A to own 1 output, got %d", len(ownedA))
	}

	input := model.Input{TxID: createTx.ID, CID: 0}
	transferTx, err := h.plugin.CreateTransaction([]crypto.PublicKey{ownerA}, []crypto.PublicKey{ownerB}, &input, model.OperationTransfer, model.Payload{"category": "asset"})
	if err != nil {
		t.Fatalf("create transfer: %v", err)
	}
	transferTx, _ = h.plugin.SignTransaction(transferTx, ownerAPriv)
	h.acceptBlock(t, []model.Transaction{transferTx}, voters, keys)

	ownedA, err = h.query.OwnedIDs(ctx, ownerA)
	if err != nil {
		t.Fatalf("owned ids A after transfer: %v", err)
	}
	if len(ownedA) != 0 {
		t.Fatalf("expected A to own nothing after transfer, got %d", len(ownedA))
	}

	ownedB, err := h.query.OwnedIDs(ctx, ownerB)
	if err != nil {
		t.Fatalf("owned ids B: %v", err)
	}
	if len(ownedB) != 1 {
		t.Fatalf("expected B to own 1 output, got %d", len(ownedB))
	}
}

func TestUnvotedBlocksExcludesGenesisAtHead(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	genesisTx, err := h.plugin.CreateTransaction([]crypto.PublicKey{h.nodeP}, []crypto.PublicKey{h.nodeP}, nil, model.OperationGenesis, model.Payload{"message": block.GenesisMessage})
	if err != nil {
		t.Fatalf("create genesis tx: %v", err)
	}
	genesisTx, _ = h.plugin.SignTransaction(genesisTx, h.nodeS)
	genesisBlock := model.Block{
		Block: model.BlockBody{Timestamp: "1", Transactions: []model.Transaction{genesisTx}, NodePubkey: h.nodeP, Voters: []crypto.PublicKey{h.nodeP}},
	}
	id, _ := genesisBlock.ComputeID()
	genesisBlock.ID = id
	zero := uint64(0)
	genesisBlock.BlockNumber = &zero
	if err := h.store.Bigchain().InsertBlock(ctx, genesisBlock, store.DurabilityHard); err != nil {
		t.Fatalf("insert genesis: %v", err)
	}

	unvoted, err := h.query.UnvotedBlocks(ctx)
	if err != nil {
		t.Fatalf("unvoted blocks: %v", err)
	}
	if len(unvoted) != 0 {
		t.Fatalf("expected genesis excluded from unvoted blocks, got %d", len(unvoted))
	}
}
