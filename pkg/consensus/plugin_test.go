package consensus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chainledger/core/pkg/crypto"
	"github.com/chainledger/core/pkg/model"
)

type fakeResolver struct {
	byID  map[crypto.Hash]*model.Transaction
	spent map[model.Input]*model.Transaction
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{byID: map[crypto.Hash]*model.Transaction{}, spent: map[model.Input]*model.Transaction{}}
}

func (f *fakeResolver) GetTransaction(_ context.Context, txid crypto.Hash) (*model.Transaction, error) {
	return f.byID[txid], nil
}

func (f *fakeResolver) Spent(_ context.Context, input model.Input) (*model.Transaction, error) {
	return f.spent[input], nil
}

func testPlugin() *DefaultPlugin {
	return &DefaultPlugin{
		Now:  func() time.Time { return time.Unix(1700000000, 0) },
		UUID: func() string { return "fixed-uuid" },
	}
}

func TestCreateSignValidateRoundtrip(t *testing.T) {
	plugin := testPlugin()
	nodePub, _, _ := crypto.GenerateKeypair()
	ownerPub, ownerPriv, _ := crypto.GenerateKeypair()

	tx, err := plugin.CreateTransaction([]crypto.PublicKey{ownerPub}, []crypto.PublicKey{ownerPub}, nil, model.OperationCreate, model.Payload{"category": "asset"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	idBeforeSign := tx.ID

	signed, err := plugin.SignTransaction(tx, ownerPriv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if signed.ID != idBeforeSign {
		t.Fatalf("signing changed id: before=%s after=%s", idBeforeSign, signed.ID)
	}

	if err := plugin.ValidateFulfillments(signed); err != nil {
		t.Fatalf("validate fulfillments: %v", err)
	}

	resolver := newFakeResolver()
	if err := plugin.ValidateTransaction(context.Background(), resolver, signed); err != nil {
		t.Fatalf("validate transaction: %v", err)
	}
	_ = nodePub
}

func TestValidateTransactionRejectsTamperedID(t *testing.T) {
	plugin := testPlugin()
	ownerPub, ownerPriv, _ := crypto.GenerateKeypair()

	tx, _ := plugin.CreateTransaction([]crypto.PublicKey{ownerPub}, []crypto.PublicKey{ownerPub}, nil, model.OperationCreate, model.Payload{"category": "asset"})
	signed, _ := plugin.SignTransaction(tx, ownerPriv)
	signed.ID = "deadbeef"

	err := plugin.ValidateTransaction(context.Background(), newFakeResolver(), signed)
	if !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
}

func TestValidateTransactionRejectsDoubleSpendInput(t *testing.T) {
	plugin := testPlugin()
	ownerPub, ownerPriv, _ := crypto.GenerateKeypair()
	receiverPub, _, _ := crypto.GenerateKeypair()

	createTx, _ := plugin.CreateTransaction([]crypto.PublicKey{ownerPub}, []crypto.PublicKey{ownerPub}, nil, model.OperationCreate, model.Payload{"category": "asset"})
	createTx, _ = plugin.SignTransaction(createTx, ownerPriv)

	resolver := newFakeResolver()
	resolver.byID[createTx.ID] = &createTx

	input := model.Input{TxID: createTx.ID, CID: 0}
	transferTx, err := plugin.CreateTransaction([]crypto.PublicKey{ownerPub}, []crypto.PublicKey{receiverPub}, &input, model.OperationTransfer, model.Payload{"category": "asset"})
	if err != nil {
		t.Fatalf("create transfer: %v", err)
	}
	transferTx, _ = plugin.SignTransaction(transferTx, ownerPriv)

	alreadySpentBy := model.Transaction{ID: "other-tx"}
	resolver.spent[input] = &alreadySpentBy

	err = plugin.ValidateTransaction(context.Background(), resolver, transferTx)
	if !errors.Is(err, ErrTransactionDoesNotExist) {
		t.Fatalf("expected double-spend rejection, got %v", err)
	}
}

func TestValidateTransactionRejectsWrongOwner(t *testing.T) {
	plugin := testPlugin()
	ownerPub, _, _ := crypto.GenerateKeypair()
	wrongPub, wrongPriv, _ := crypto.GenerateKeypair()
	receiverPub, _, _ := crypto.GenerateKeypair()

	createTx, _ := plugin.CreateTransaction([]crypto.PublicKey{ownerPub}, []crypto.PublicKey{ownerPub}, nil, model.OperationCreate, model.Payload{"category": "asset"})

	resolver := newFakeResolver()
	resolver.byID[createTx.ID] = &createTx

	input := model.Input{TxID: createTx.ID, CID: 0}
	transferTx, _ := plugin.CreateTransaction([]crypto.PublicKey{wrongPub}, []crypto.PublicKey{receiverPub}, &input, model.OperationTransfer, model.Payload{"category": "asset"})
	transferTx, _ = plugin.SignTransaction(transferTx, wrongPriv)

	err := plugin.ValidateTransaction(context.Background(), resolver, transferTx)
	if !errors.Is(err, ErrTransactionOwnerError) {
		t.Fatalf("expected ErrTransactionOwnerError, got %v", err)
	}
}

func TestMultiOwnerConditionSymmetry(t *testing.T) {
	pubA, _, _ := crypto.GenerateKeypair()
	pubB, _, _ := crypto.GenerateKeypair()
	cond := model.Condition{
		CID:       0,
		NewOwners: []crypto.PublicKey{pubA, pubB},
		Condition: model.ConditionBody{Details: model.ConditionDetails{
			Type:      model.DetailsTypeThreshold,
			Threshold: 2,
			Subconditions: []model.ConditionDetails{
				{Type: model.DetailsTypeEd25519, PublicKey: pubA},
				{Type: model.DetailsTypeEd25519, PublicKey: pubB},
			},
		}},
	}
	if !ownedByExactly(cond, []crypto.PublicKey{pubA, pubB}) {
		t.Fatal("expected multi-owner condition to recognize both owners")
	}
	strangerPub, _, _ := crypto.GenerateKeypair()
	if ownedByExactly(cond, []crypto.PublicKey{strangerPub}) {
		t.Fatal("condition must not recognize a non-owner")
	}
	if ownedByExactly(cond, []crypto.PublicKey{pubA}) {
		t.Fatal("a strict subset of a multi-owner condition's owners must not satisfy it alone")
	}
}

// TestValidateTransactionRejectsPartialMultiOwnerClaim guards against the
// asymmetry where declaring current_owners as a strict subset of a
// threshold condition's recognized owners (one signer out of a 2-of-2) was
// wrongly treated as authorization by that signer alone.
func TestValidateTransactionRejectsPartialMultiOwnerClaim(t *testing.T) {
	plugin := testPlugin()
	pubA, privA, _ := crypto.GenerateKeypair()
	pubB, _, _ := crypto.GenerateKeypair()
	receiverPub, _, _ := crypto.GenerateKeypair()

	createTx, _ := plugin.CreateTransaction([]crypto.PublicKey{pubA}, []crypto.PublicKey{pubA, pubB}, nil, model.OperationCreate, model.Payload{"category": "asset"})

	resolver := newFakeResolver()
	resolver.byID[createTx.ID] = &createTx

	input := model.Input{TxID: createTx.ID, CID: 0}
	transferTx, _ := plugin.CreateTransaction([]crypto.PublicKey{pubA}, []crypto.PublicKey{receiverPub}, &input, model.OperationTransfer, model.Payload{"category": "asset"})
	transferTx, _ = plugin.SignTransaction(transferTx, privA)

	err := plugin.ValidateTransaction(context.Background(), resolver, transferTx)
	if !errors.Is(err, ErrTransactionOwnerError) {
		t.Fatalf("expected ErrTransactionOwnerError for partial multi-owner claim, got %v", err)
	}
}
