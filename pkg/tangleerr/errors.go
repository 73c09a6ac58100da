// Package tangleerr defines the flat error taxonomy shared by every
// component of the client: node pool, transfer engine, retry controller,
// subscription multiplexer.
package tangleerr

import "fmt"

// Kind tags an Error with one of the categories the client promises to
// surface. Callers are expected to branch on Kind via errors.Is against
// tangleerr.Of(kind), not by string-matching Error().
type Kind string

const (
	// Configuration
	KindNoNodesConfigured Kind = "no_nodes_configured"
	KindInvalidTimeout    Kind = "invalid_timeout"
	KindInvalidNetwork    Kind = "invalid_network"

	// Validation
	KindInvalidSeed        Kind = "invalid_seed"
	KindInvalidBip32Path   Kind = "invalid_bip32_path"
	KindInvalidAddress     Kind = "invalid_address"
	KindInvalidSendRequest Kind = "invalid_send_request"
	KindMalformedMessage   Kind = "malformed_message"

	// Ledger logic
	KindInsufficientBalance Kind = "insufficient_balance"
	KindAlreadyConfirmed    Kind = "already_confirmed"
	KindNoActionNeeded      Kind = "no_action_needed"
	KindNoUnspentOutput     Kind = "no_unspent_output"

	// Network / node
	KindNoSyncedNodes      Kind = "no_synced_nodes"
	KindTimeout            Kind = "timeout"
	KindTransport          Kind = "transport"
	KindHttpStatus         Kind = "http_status"
	KindMalformedResponse  Kind = "malformed_response"
	KindQuorumFailed       Kind = "quorum_failed"
	KindAddressQueryFailed Kind = "address_query_failed"

	// Subscription
	KindInvalidTopic      Kind = "invalid_topic"
	KindBrokerUnreachable Kind = "broker_unreachable"

	// Lifecycle
	KindCancelled Kind = "cancelled"
)

// Error is the concrete error type returned by the client's operations
// (a few low-level helpers in pkg/core and pkg/stateadapter return plain
// fmt errors). It always carries a Kind so callers can branch with
// errors.Is(err, tangleerr.Of(kind)) via the Is method below.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// Optional payload fields, populated only by the Kind that names them.
	HttpStatusCode int
	Address        string
	MessageId      *[32]byte
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is(err, tangleerr.New(KindX, "")) match purely on Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an Error with no wrapped cause.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error that carries cause as its Unwrap target.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Of returns a sentinel Error of the given kind, suitable as the target
// of an errors.Is call: errors.Is(err, tangleerr.Of(tangleerr.KindTimeout)).
func Of(kind Kind) *Error {
	return &Error{Kind: kind}
}

// HttpStatus builds the HttpStatus{code} variant from spec §7.
func HttpStatus(code int) *Error {
	return &Error{
		Kind:           KindHttpStatus,
		Message:        fmt.Sprintf("received http status %d", code),
		HttpStatusCode: code,
	}
}

// AddressQueryFailed builds the AddressQueryFailed{address} variant.
func AddressQueryFailed(address string, cause error) *Error {
	return &Error{
		Kind:    KindAddressQueryFailed,
		Message: fmt.Sprintf("address query failed: %s", address),
		Cause:   cause,
		Address: address,
	}
}

// Cancelled builds the Cancelled variant, optionally carrying the
// MessageId of a message that may have reached the network before
// cancellation (spec §5: "leaves no residue" vs "may leave the message
// in the network").
func Cancelled(messageId *[32]byte, cause error) *Error {
	return &Error{
		Kind:      KindCancelled,
		Message:   "operation cancelled",
		Cause:     cause,
		MessageId: messageId,
	}
}
