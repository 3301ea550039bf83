// Package ledger wires a node's configuration, store, consensus plugin,
// and federation membership into a single handle exposing every domain
// operation, mirroring the construction seam the original system exposes
// to its RPC/voter layer (§2, §6.3).
package ledger

import (
	"fmt"

	"github.com/chainledger/core/pkg/asset"
	"github.com/chainledger/core/pkg/block"
	"github.com/chainledger/core/pkg/config"
	"github.com/chainledger/core/pkg/consensus"
	"github.com/chainledger/core/pkg/crypto"
	"github.com/chainledger/core/pkg/currency"
	"github.com/chainledger/core/pkg/query"
	"github.com/chainledger/core/pkg/store"
	"github.com/chainledger/core/pkg/txn"
)

// Ledger is one node's handle onto every ledger operation: transaction
// construction and validation, block creation and voting, query
// resolution, and the currency/asset domain operations built on top.
type Ledger struct {
	Store store.Store
	Self  crypto.PublicKey

	Plugin   consensus.Plugin
	Query    *query.Query
	Txn      *txn.Engine
	Block    *block.Engine
	Currency *currency.Engine
	Asset    *asset.Engine
}

// New constructs a Ledger from cfg and st. It resolves cfg's consensus
// plugin name, decodes the node's keypair (failing ErrKeypairNotFound if
// either half is absent, per §6.3/§7), and wires every domain engine
// against the same Store, Plugin, and federation keyring.
func New(cfg *config.Config, st store.Store) (*Ledger, error) {
	if cfg.KeypairPublic == "" || cfg.KeypairPrivate == "" {
		return nil, ErrKeypairNotFound
	}
	self := crypto.PublicKey(cfg.KeypairPublic)
	selfPriv := crypto.PrivateKey(cfg.KeypairPrivate)
	if _, err := self.Bytes(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeypairNotFound, err)
	}
	if _, err := selfPriv.Bytes(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeypairNotFound, err)
	}

	plugin, err := resolvePlugin(cfg.ConsensusPlugin)
	if err != nil {
		return nil, err
	}

	federation := make([]crypto.PublicKey, 0, len(cfg.Keyring))
	for _, k := range cfg.Keyring {
		federation = append(federation, crypto.PublicKey(k))
	}

	q := query.New(st, self)
	txnEngine := txn.NewEngine(st, plugin, q, self, federation)
	blockEngine := block.NewEngine(st, plugin, q, self, selfPriv, federation)
	currencyEngine := currency.NewEngine(st, txnEngine, self, selfPriv)
	assetEngine := asset.NewEngine(st, txnEngine, q, self, selfPriv, federation)

	return &Ledger{
		Store:    st,
		Self:     self,
		Plugin:   plugin,
		Query:    q,
		Txn:      txnEngine,
		Block:    blockEngine,
		Currency: currencyEngine,
		Asset:    assetEngine,
	}, nil
}

func resolvePlugin(name string) (consensus.Plugin, error) {
	switch name {
	case "", "default":
		return consensus.NewDefaultPlugin(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownConsensusPlugin, name)
	}
}
