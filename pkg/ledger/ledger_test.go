package ledger

import (
	"errors"
	"testing"

	"github.com/chainledger/core/pkg/config"
	"github.com/chainledger/core/pkg/crypto"
	"github.com/chainledger/core/pkg/store"
)

func TestNewRejectsMissingKeypair(t *testing.T) {
	cfg := &config.Config{ConsensusPlugin: "default"}
	_, err := New(cfg, store.NewMemory())
	if !errors.Is(err, ErrKeypairNotFound) {
		t.Fatalf("expected ErrKeypairNotFound, got %v", err)
	}
}

func TestNewRejectsUnknownPlugin(t *testing.T) {
	pub, priv, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	cfg := &config.Config{
		KeypairPublic:   string(pub),
		KeypairPrivate:  string(priv),
		ConsensusPlugin: "bft-exotic",
	}
	_, err = New(cfg, store.NewMemory())
	if !errors.Is(err, ErrUnknownConsensusPlugin) {
		t.Fatalf("expected ErrUnknownConsensusPlugin, got %v", err)
	}
}

func TestNewWiresEngines(t *testing.T) {
	pub, priv, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	cfg := &config.Config{
		KeypairPublic:  string(pub),
		KeypairPrivate: string(priv),
	}
	l, err := New(cfg, store.NewMemory())
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	if l.Txn == nil || l.Block == nil || l.Query == nil || l.Currency == nil || l.Asset == nil {
		t.Fatal("expected every domain engine to be wired")
	}
	if l.Self != pub {
		t.Fatalf("expected self %s, got %s", pub, l.Self)
	}
}
