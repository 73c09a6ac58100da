package codec_test

import (
	"testing"

	"github.com/tangle-go/client/pkg/codec"
	"github.com/tangle-go/client/pkg/core"
	"github.com/tangle-go/client/pkg/tangleerr"
	"github.com/tangle-go/client/pkg/util"
)

func randMessageId() core.MessageId {
	id, err := core.NewMessageIdFromHex("aa11bb22cc33dd44ee55ff660011223344556677889900aabbccddeeff001122")
	if err != nil {
		panic(err)
	}
	return id
}

func sampleTransactionMessage() core.Message {
	addr, _ := core.NewEd25519Address(make([]byte, 32))
	essence := core.TransactionEssence{
		Inputs: []core.UTXOInput{
			{TransactionId: randMessageId(), Index: 0},
		},
		Outputs: []core.SignatureLockedSingleOutput{
			{Address: addr, Amount: 100},
		},
	}
	tx := core.Transaction{
		Essence:      essence,
		UnlockBlocks: []core.UnlockBlock{core.SignatureUnlock([32]byte{1}, [64]byte{2})},
	}
	return core.Message{
		Parent1: randMessageId(),
		Parent2: randMessageId(),
		Payload: core.TransactionPayload(&tx),
		Nonce:   918273645,
	}
}

func TestRoundTripTransactionMessage(t *testing.T) {
	msg := sampleTransactionMessage()
	encoded := codec.EncodeMessage(msg)
	decoded, err := codec.DecodeMessage(encoded)
	util.AssertNoErr(t, err)
	util.Assert(t, decoded.Parent1.Eq(msg.Parent1), "parent1 mismatch")
	util.Assert(t, decoded.Parent2.Eq(msg.Parent2), "parent2 mismatch")
	util.Assert(t, decoded.Nonce == msg.Nonce, "nonce mismatch")
	util.Assert(t, decoded.Payload.Kind == core.PayloadTransaction, "payload kind mismatch")
	util.Assert(t, len(decoded.Payload.Transaction.UnlockBlocks) == 1, "unlock block count mismatch")
	util.Assert(t, codec.MessageId(decoded) == codec.MessageId(msg), "message id mismatch after round trip")
}

func TestRoundTripIndexationMessage(t *testing.T) {
	ix := core.Indexation{Index: "topic", Data: []byte("hello tangle")}
	msg := core.Message{
		Parent1: randMessageId(),
		Parent2: randMessageId(),
		Payload: core.IndexationPayload(&ix),
		Nonce:   1,
	}
	encoded := codec.EncodeMessage(msg)
	decoded, err := codec.DecodeMessage(encoded)
	util.AssertNoErr(t, err)
	util.Assert(t, decoded.Payload.Kind == core.PayloadIndexation, "payload kind mismatch")
	util.Assert(t, decoded.Payload.Indexation.Index == "topic", "indexation key mismatch")
	util.Assert(t, string(decoded.Payload.Indexation.Data) == "hello tangle", "indexation data mismatch")
}

func TestDecodeRejectsUnknownPayloadDiscriminant(t *testing.T) {
	e := codec.NewEncoder()
	e.WriteMessageId(randMessageId())
	e.WriteMessageId(randMessageId())
	e.WriteUint8(99) // unknown discriminant
	e.WriteUint64(0)
	_, err := codec.DecodeMessage(e.Bytes())
	util.Assert(t, err != nil, "expected decode error on unknown discriminant")
	util.Assert(t, tangleerrIsMalformed(err), "expected MalformedMessage, got %v", err)
}

func TestDecodeRejectsLengthPrefixOverrun(t *testing.T) {
	e := codec.NewEncoder()
	e.WriteMessageId(randMessageId())
	e.WriteMessageId(randMessageId())
	e.WriteUint8(2) // indexation discriminant
	e.WriteUint16(60000) // claims 60000-byte key, far beyond remaining buffer
	_, err := codec.DecodeMessage(e.Bytes())
	util.Assert(t, err != nil, "expected decode error on length overrun")
}

func TestDecodeRejectsZeroAmountOutput(t *testing.T) {
	addr, _ := core.NewEd25519Address(make([]byte, 32))
	e := codec.NewEncoder()
	e.WriteMessageId(randMessageId())
	e.WriteMessageId(randMessageId())
	e.WriteUint8(0) // transaction discriminant
	e.WriteUint16(1)
	e.WriteMessageId(randMessageId())
	e.WriteUint16(0)
	e.WriteUint16(1)
	e.WriteAddress(addr)
	e.WriteUint64(0) // zero amount, invalid
	e.WriteBool(false)
	e.WriteUint16(1)
	e.WriteUint8(0)
	e.WriteFixed(make([]byte, 32))
	e.WriteFixed(make([]byte, 64))
	e.WriteUint64(0)
	_, err := codec.DecodeMessage(e.Bytes())
	util.Assert(t, err != nil, "expected decode error on zero-amount output")
}

func TestDecodeRejectsUnlockCountMismatch(t *testing.T) {
	addr, _ := core.NewEd25519Address(make([]byte, 32))
	essence := core.TransactionEssence{
		Inputs:  []core.UTXOInput{{TransactionId: randMessageId(), Index: 0}},
		Outputs: []core.SignatureLockedSingleOutput{{Address: addr, Amount: 1}},
	}
	e := codec.NewEncoder()
	e.WriteMessageId(randMessageId())
	e.WriteMessageId(randMessageId())
	e.WriteUint8(0)
	essenceBytes := codec.EncodeEssence(essence)
	e.WriteFixed(essenceBytes)
	e.WriteUint16(0) // zero unlock blocks, but essence has 1 input
	e.WriteUint64(0)
	_, err := codec.DecodeMessage(e.Bytes())
	util.Assert(t, err != nil, "expected decode error on unlock/input count mismatch")
}

func TestEssenceHashChangesWithContent(t *testing.T) {
	addr, _ := core.NewEd25519Address(make([]byte, 32))
	essenceA := core.TransactionEssence{
		Inputs:  []core.UTXOInput{{TransactionId: randMessageId(), Index: 0}},
		Outputs: []core.SignatureLockedSingleOutput{{Address: addr, Amount: 1}},
	}
	essenceB := essenceA
	essenceB.Outputs = []core.SignatureLockedSingleOutput{{Address: addr, Amount: 2}}
	util.Assert(t, codec.EssenceHash(essenceA) != codec.EssenceHash(essenceB), "essence hash did not change with amount")
}

func tangleerrIsMalformed(err error) bool {
	te, ok := err.(*tangleerr.Error)
	return ok && te.Kind == tangleerr.KindMalformedMessage
}
