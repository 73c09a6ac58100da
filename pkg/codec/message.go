package codec

import (
	"github.com/tangle-go/client/pkg/core"
	"github.com/tangle-go/client/pkg/tangleerr"
)

// payloadKind discriminants, fixed on the wire.
const (
	discTransaction uint8 = 0
	discMilestone   uint8 = 1
	discIndexation  uint8 = 2
)

const (
	discUnlockSignature uint8 = 0
	discUnlockReference uint8 = 1
)

// EncodeMessage produces the canonical byte form of a Message:
// parent1, parent2, payload, nonce.
func EncodeMessage(m core.Message) []byte {
	e := NewEncoder()
	e.WriteMessageId(m.Parent1)
	e.WriteMessageId(m.Parent2)
	encodePayload(e, m.Payload)
	e.WriteUint64(m.Nonce)
	return e.Bytes()
}

// DecodeMessage parses the canonical byte form of a Message, failing
// with KindMalformedMessage on any structural violation.
func DecodeMessage(data []byte) (core.Message, error) {
	d := NewDecoder(data)
	m := core.Message{
		Parent1: d.ReadMessageId(),
		Parent2: d.ReadMessageId(),
	}
	m.Payload = decodePayload(d)
	m.Nonce = d.ReadUint64()
	if d.err != nil {
		return core.Message{}, d.err
	}
	if d.Remaining() != 0 {
		return core.Message{}, tangleerr.New(tangleerr.KindMalformedMessage, "trailing bytes after message: %d", d.Remaining())
	}
	return m, nil
}

// MessageId computes the Blake2b-256 digest of a Message's canonical
// encoding (spec §4.1: message_id(Message) = Blake2b-256(encode(Message))).
func MessageId(m core.Message) core.MessageId {
	sum := Blake2b256(EncodeMessage(m))
	return core.MessageId(sum)
}

func encodePayload(e *Encoder, p core.Payload) {
	switch p.Kind {
	case core.PayloadTransaction:
		e.WriteUint8(discTransaction)
		encodeTransaction(e, *p.Transaction)
	case core.PayloadMilestone:
		e.WriteUint8(discMilestone)
		encodeMilestone(e, *p.Milestone)
	case core.PayloadIndexation:
		e.WriteUint8(discIndexation)
		encodeIndexation(e, *p.Indexation)
	}
}

func decodePayload(d *Decoder) core.Payload {
	disc := d.ReadUint8()
	if d.err != nil {
		return core.Payload{}
	}
	switch disc {
	case discTransaction:
		t := decodeTransaction(d)
		return core.TransactionPayload(&t)
	case discMilestone:
		m := decodeMilestone(d)
		return core.MilestonePayload(&m)
	case discIndexation:
		i := decodeIndexation(d)
		return core.IndexationPayload(&i)
	default:
		d.fail("unknown payload discriminant: %d", disc)
		return core.Payload{}
	}
}

func encodeTransaction(e *Encoder, t core.Transaction) {
	encodeEssence(e, t.Essence)
	e.WriteUint16(uint16(len(t.UnlockBlocks)))
	for _, u := range t.UnlockBlocks {
		switch u.Kind {
		case core.UnlockSignature:
			e.WriteUint8(discUnlockSignature)
			e.WriteFixed(u.PublicKey[:])
			e.WriteFixed(u.Signature[:])
		case core.UnlockReference:
			e.WriteUint8(discUnlockReference)
			e.WriteUint16(u.Reference)
		}
	}
}

func decodeTransaction(d *Decoder) core.Transaction {
	essence := decodeEssence(d)
	n := d.ReadUint16()
	if d.err != nil {
		return core.Transaction{}
	}
	if int(n) != len(essence.Inputs) {
		d.fail("unlock block count %d does not match input count %d", n, len(essence.Inputs))
		return core.Transaction{}
	}
	unlocks := make([]core.UnlockBlock, n)
	for i := range unlocks {
		disc := d.ReadUint8()
		if d.err != nil {
			return core.Transaction{}
		}
		switch disc {
		case discUnlockSignature:
			var pub [32]byte
			copy(pub[:], d.ReadFixed(32))
			var sig [64]byte
			copy(sig[:], d.ReadFixed(64))
			unlocks[i] = core.SignatureUnlock(pub, sig)
		case discUnlockReference:
			unlocks[i] = core.ReferenceUnlock(d.ReadUint16())
		default:
			d.fail("unknown unlock block discriminant: %d", disc)
			return core.Transaction{}
		}
	}
	if d.err != nil {
		return core.Transaction{}
	}
	return core.Transaction{Essence: essence, UnlockBlocks: unlocks}
}

func encodeEssence(e *Encoder, essence core.TransactionEssence) {
	e.WriteUint16(uint16(len(essence.Inputs)))
	for _, in := range essence.Inputs {
		e.WriteMessageId(in.TransactionId)
		e.WriteUint16(in.Index)
	}
	e.WriteUint16(uint16(len(essence.Outputs)))
	for _, out := range essence.Outputs {
		e.WriteAddress(out.Address)
		e.WriteUint64(out.Amount)
	}
	if essence.Indexation != nil {
		e.WriteBool(true)
		encodeIndexation(e, *essence.Indexation)
	} else {
		e.WriteBool(false)
	}
}

func decodeEssence(d *Decoder) core.TransactionEssence {
	numInputs := d.ReadUint16()
	if d.err != nil {
		return core.TransactionEssence{}
	}
	if numInputs == 0 || int(numInputs) > core.MaxTransactionFieldCount {
		d.fail("input count %d outside permitted range 1..=%d", numInputs, core.MaxTransactionFieldCount)
		return core.TransactionEssence{}
	}
	inputs := make([]core.UTXOInput, numInputs)
	for i := range inputs {
		txId := d.ReadMessageId()
		index := d.ReadUint16()
		if d.err != nil {
			return core.TransactionEssence{}
		}
		if index > core.MaxUTXOInputIndex {
			d.fail("utxo input index %d exceeds max %d", index, core.MaxUTXOInputIndex)
			return core.TransactionEssence{}
		}
		inputs[i] = core.UTXOInput{TransactionId: txId, Index: index}
	}

	numOutputs := d.ReadUint16()
	if d.err != nil {
		return core.TransactionEssence{}
	}
	if numOutputs == 0 || int(numOutputs) > core.MaxTransactionFieldCount {
		d.fail("output count %d outside permitted range 1..=%d", numOutputs, core.MaxTransactionFieldCount)
		return core.TransactionEssence{}
	}
	outputs := make([]core.SignatureLockedSingleOutput, numOutputs)
	for i := range outputs {
		addr := d.ReadAddress()
		amount := d.ReadUint64()
		if d.err != nil {
			return core.TransactionEssence{}
		}
		if amount == 0 {
			d.fail("output %d has zero amount", i)
			return core.TransactionEssence{}
		}
		outputs[i] = core.SignatureLockedSingleOutput{Address: addr, Amount: amount}
	}

	hasIndexation := d.ReadBool()
	if d.err != nil {
		return core.TransactionEssence{}
	}
	var indexation *core.Indexation
	if hasIndexation {
		ix := decodeIndexation(d)
		indexation = &ix
	}
	if d.err != nil {
		return core.TransactionEssence{}
	}
	return core.TransactionEssence{Inputs: inputs, Outputs: outputs, Indexation: indexation}
}

// EncodeEssence exposes the essence encoder for callers that only need
// the essence bytes (e.g. to hash it), without wrapping in a Transaction.
func EncodeEssence(essence core.TransactionEssence) []byte {
	e := NewEncoder()
	encodeEssence(e, essence)
	return e.Bytes()
}

// EssenceHash computes Blake2b-256(encode(TransactionEssence)), the
// value each Ed25519 unlock signs (spec §4.1).
func EssenceHash(essence core.TransactionEssence) [32]byte {
	return Blake2b256(EncodeEssence(essence))
}

func encodeIndexation(e *Encoder, i core.Indexation) {
	e.WriteString(i.Index)
	e.WriteBytes(i.Data)
}

func decodeIndexation(d *Decoder) core.Indexation {
	key := d.ReadString()
	data := d.ReadBytes()
	if d.err != nil {
		return core.Indexation{}
	}
	if len(key) == 0 || len(key) > core.MaxIndexationKeyLen {
		d.fail("indexation key length %d outside permitted range 1..=%d", len(key), core.MaxIndexationKeyLen)
		return core.Indexation{}
	}
	if len(data) > core.MaxIndexationDataLen {
		d.fail("indexation data length %d exceeds max %d", len(data), core.MaxIndexationDataLen)
		return core.Indexation{}
	}
	return core.Indexation{Index: key, Data: data}
}

func encodeMilestone(e *Encoder, m core.Milestone) {
	e.WriteUint32(m.Index)
	e.WriteMessageId(m.MessageId)
	e.WriteUint64(uint64(m.Timestamp))
}

func decodeMilestone(d *Decoder) core.Milestone {
	m := core.Milestone{
		Index:     d.ReadUint32(),
		MessageId: d.ReadMessageId(),
		Timestamp: int64(d.ReadUint64()),
	}
	return m
}
