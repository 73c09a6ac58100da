package core

// PayloadKind tags the variant carried by a Message or embedded inside
// a TransactionEssence (where only Indexation is permitted).
type PayloadKind uint8

const (
	PayloadTransaction PayloadKind = iota
	PayloadMilestone
	PayloadIndexation
)

// Payload is the tagged variant {Transaction, Milestone, Indexation}
// from spec §3. Exactly one of the three fields is populated,
// according to Kind.
type Payload struct {
	Kind        PayloadKind
	Transaction *Transaction
	Milestone   *Milestone
	Indexation  *Indexation
}

func TransactionPayload(t *Transaction) Payload {
	return Payload{Kind: PayloadTransaction, Transaction: t}
}

func MilestonePayload(m *Milestone) Payload {
	return Payload{Kind: PayloadMilestone, Milestone: m}
}

func IndexationPayload(i *Indexation) Payload {
	return Payload{Kind: PayloadIndexation, Indexation: i}
}

// Message is a node in the Tangle: two parents, one payload, and a
// nonce whose canonical encoding satisfies the network's PoW target.
type Message struct {
	Parent1 MessageId
	Parent2 MessageId
	Payload Payload
	Nonce   uint64
}

// UnlockBlockKind tags whether an UnlockBlock carries its own
// Signature or merely References an earlier one.
type UnlockBlockKind uint8

const (
	UnlockSignature UnlockBlockKind = iota
	UnlockReference
)

// UnlockBlock unlocks the input at the same index within a
// Transaction's essence.inputs. A Signature unlock carries the
// Ed25519 public key and signature over the essence hash; a Reference
// unlock points at the index of an earlier Signature unlock that
// already proves ownership of the same address (spec §3 Transaction,
// §4.5.5 step 6: "subsequent inputs emit a Reference").
type UnlockBlock struct {
	Kind      UnlockBlockKind
	PublicKey [32]byte // Signature only
	Signature [64]byte // Signature only
	Reference uint16   // Reference only: index into unlock_blocks
}

func SignatureUnlock(publicKey [32]byte, signature [64]byte) UnlockBlock {
	return UnlockBlock{Kind: UnlockSignature, PublicKey: publicKey, Signature: signature}
}

func ReferenceUnlock(index uint16) UnlockBlock {
	return UnlockBlock{Kind: UnlockReference, Reference: index}
}

// Transaction is {essence, unlock_blocks}. Invariant:
// len(unlock_blocks) == len(essence.Inputs), enforced by the codec on
// decode and by the transfer engine on encode.
type Transaction struct {
	Essence      TransactionEssence
	UnlockBlocks []UnlockBlock
}

// TransactionEssence is the signed body of a Transaction: ordered
// inputs, ordered outputs, and an optional embedded Indexation
// payload. sum(outputs.Amount) must not exceed the sum of the inputs'
// resolved amounts, and every amount must be strictly positive.
type TransactionEssence struct {
	Inputs     []UTXOInput
	Outputs    []SignatureLockedSingleOutput
	Indexation *Indexation // optional; only Indexation may embed here
}

// MaxTransactionFieldCount bounds inputs and outputs per essence
// (spec §3 TransactionEssence: "1..=127").
const MaxTransactionFieldCount = 127

// MaxUTXOInputIndex bounds UTXOInput.Index (spec §3: "u16 in 0..=126").
const MaxUTXOInputIndex = 126

// UTXOInput references one output of an earlier transaction by its
// TransactionId and the output's position within that transaction.
type UTXOInput struct {
	TransactionId MessageId
	Index         uint16
}

// SignatureLockedSingleOutput pays Amount to Address. Amount must be
// strictly positive.
type SignatureLockedSingleOutput struct {
	Address Address
	Amount  uint64
}

// MaxIndexationKeyLen/MaxIndexationDataLen bound Indexation fields
// (spec §3: key "1..=64 bytes", data "≤ 32 KiB").
const (
	MaxIndexationKeyLen  = 64
	MaxIndexationDataLen = 32 * 1024
)

// Indexation tags arbitrary Data under a UTF-8 Index key, letting a
// consumer filter messages by topic without parsing a Transaction.
type Indexation struct {
	Index string
	Data  []byte
}

// OutputMetadata is a read-only snapshot a node reports for one output
// (spec §3). Clients never mutate it; it is replaced wholesale by the
// next query.
type OutputMetadata struct {
	MessageId     MessageId
	TransactionId MessageId
	OutputIndex   uint16
	IsSpent       bool
	Address       Address
	Amount        uint64
}

// MilestoneFeature lists optional capabilities a node may report in
// NodeInfo.Features (spec §4.3 get_info response shape).
type MilestoneFeature string

// NodeInfo mirrors the shape of GET /api/v1/info (spec §4.3 / §4.6).
type NodeInfo struct {
	Name                     string
	Version                  string
	IsHealthy                bool
	CoordinatorPublicKey     string
	LatestMilestoneMessageId MessageId
	LatestMilestoneIndex     uint32
	SolidMilestoneMessageId  MessageId
	SolidMilestoneIndex      uint32
	PruningIndex             uint32
	Features                 []MilestoneFeature
	Network                  Network
	MinPowScore              float64
}

// Milestone mirrors the shape of GET /api/v1/milestones/{index}.
type Milestone struct {
	Index     uint32
	MessageId MessageId
	Timestamp int64
}
