package core

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// MessageId is a 32-byte Blake2b-256 digest. Reused for MessageId and
// TransactionId — both are "some Blake2b-256 digest over canonical
// bytes" per spec §3/§4.1 (the essence hash stays a plain [32]byte), and
// giving them one comparable, hex-stringable type keeps the codec and
// the transfer engine from juggling raw [32]byte everywhere (mirrors
// the teacher's own HashT, which plays the equivalent multi-purpose
// role for block/tx/merkle ids).
type MessageId [32]byte

// ZeroMessageId is the all-zero id used as a placeholder parent for the
// first messages in a Tangle.
var ZeroMessageId = MessageId{}

func NewMessageIdFromBytes(b []byte) (MessageId, error) {
	if len(b) != 32 {
		return MessageId{}, fmt.Errorf("cannot build message id from %d bytes", len(b))
	}
	var out MessageId
	copy(out[:], b)
	return out, nil
}

func NewMessageIdFromHex(s string) (MessageId, error) {
	if len(s) != 64 {
		return MessageId{}, fmt.Errorf("cannot parse message id from length %d", len(s))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return MessageId{}, err
	}
	return NewMessageIdFromBytes(raw)
}

func (m MessageId) String() string {
	return hex.EncodeToString(m[:])
}

func (m MessageId) Bytes() []byte {
	out := make([]byte, 32)
	copy(out, m[:])
	return out
}

func (m MessageId) Eq(other MessageId) bool {
	return m == other
}

func (m MessageId) IsZero() bool {
	return m == MessageId{}
}

func (m MessageId) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *MessageId) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := NewMessageIdFromHex(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
