// Package mocknode is an in-process stand-in for a node's REST surface,
// used only by this module's own tests. It is adapted from the
// teacher's legacy src/p2p/endpoints.go gin router: the same
// router-group-per-resource layout, rebuilt to answer the handful of
// GET/POST routes internal/nodeclient.Client actually calls.
package mocknode

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/tangle-go/client/pkg/core"
)

// Output is the fixture shape for one address's known output.
type Output struct {
	MessageId     core.MessageId
	TransactionId core.MessageId
	OutputIndex   uint16
	IsSpent       bool
	Address       core.Address
	Amount        uint64
}

// Server is a fully scriptable fake node, driven by whatever test sets
// on its exported fields before or during a request.
type Server struct {
	mu sync.Mutex

	IsHealthy   bool
	Network     core.Network
	Features    []string
	MinPowScore float64
	Tip1, Tip2  core.MessageId

	// AddressOutputs maps an address string to its known outputs; an
	// address absent from this map reports zero outputs.
	AddressOutputs map[string][]Output

	// PostedMessages accumulates every raw body submitted to
	// POST /api/v1/messages, in arrival order.
	PostedMessages [][]byte

	// NextPostedMessageId is returned for the next PostMessage call; if
	// zero-valued, a deterministic id derived from the post count is used.
	NextPostedMessageId core.MessageId

	// Messages maps a messageId hex string to its raw canonical encoding,
	// for GetMessageRaw/GetMessageData fixtures.
	Messages map[string][]byte

	// Metadata maps a messageId hex string to the metadata response
	// fixture retry tests script directly.
	Metadata map[string]MessageMetadata

	httpServer *httptest.Server
}

// MessageMetadata is the fixture shape for one message's metadata.
type MessageMetadata struct {
	IsSolid               bool
	IsReferenced          bool
	ReferencedByMilestone *uint32
	ShouldPromote         bool
	ShouldReattach        bool
}

// New builds a Server with a single healthy node's typical defaults and
// starts it listening on a local port. Call Close when done.
func New(network core.Network) *Server {
	s := &Server{
		IsHealthy:      true,
		Network:        network,
		Features:       []string{"pow"},
		MinPowScore:    0,
		AddressOutputs: make(map[string][]Output),
		Messages:       make(map[string][]byte),
		Metadata:       make(map[string]MessageMetadata),
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.GET("/health", s.handleHealth)
	router.GET("/api/v1/info", s.handleInfo)
	router.GET("/api/v1/tips", s.handleTips)
	router.POST("/api/v1/messages", s.handlePostMessage)
	router.GET("/api/v1/addresses/:address/balance", s.handleAddressBalance)
	router.GET("/api/v1/addresses/:address/outputs", s.handleAddressOutputs)
	router.GET("/api/v1/messages/:id/metadata", s.handleMessageMetadata)
	router.GET("/api/v1/messages/:id/raw", s.handleMessageRaw)
	s.httpServer = httptest.NewServer(router)
	return s
}

// SetMessage registers the raw canonical encoding a GetMessageRaw/
// GetMessageData call for id should return.
func (s *Server) SetMessage(id core.MessageId, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages[id.String()] = raw
}

// SetMetadata registers the metadata fixture a retry call against id
// should observe.
func (s *Server) SetMetadata(id core.MessageId, md MessageMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Metadata[id.String()] = md
}

func (s *Server) handleMessageMetadata(c *gin.Context) {
	id := c.Param("id")
	s.mu.Lock()
	md, ok := s.Metadata[id]
	s.mu.Unlock()
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"messageId":                  id,
		"isSolid":                    md.IsSolid,
		"isReferenced":               md.IsReferenced,
		"referencedByMilestoneIndex": md.ReferencedByMilestone,
		"shouldPromote":              md.ShouldPromote,
		"shouldReattach":             md.ShouldReattach,
	})
}

func (s *Server) handleMessageRaw(c *gin.Context) {
	id := c.Param("id")
	s.mu.Lock()
	raw, ok := s.Messages[id]
	s.mu.Unlock()
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", raw)
}

// URL is the base URL to hand to nodeclient.New.
func (s *Server) URL() string { return s.httpServer.URL }

func (s *Server) Close() { s.httpServer.Close() }

// SetOutputs replaces the fixture outputs known for address.
func (s *Server) SetOutputs(address string, outputs []Output) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AddressOutputs[address] = outputs
}

func (s *Server) handleHealth(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"isHealthy": s.IsHealthy})
}

func (s *Server) handleInfo(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{
		"name":                     "mocknode",
		"version":                  "0.0.0",
		"isHealthy":                s.IsHealthy,
		"coordinatorPublicKey":     "",
		"latestMilestoneMessageId": core.ZeroMessageId.String(),
		"latestMilestoneIndex":     0,
		"solidMilestoneMessageId":  core.ZeroMessageId.String(),
		"solidMilestoneIndex":      0,
		"pruningIndex":             0,
		"features":                 s.Features,
		"network":                  s.Network.String(),
		"minPowScore":              s.MinPowScore,
	})
}

func (s *Server) handleTips(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{
		"tip1MessageId": s.Tip1.String(),
		"tip2MessageId": s.Tip2.String(),
	})
}

func (s *Server) handlePostMessage(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.PostedMessages = append(s.PostedMessages, raw)
	id := s.NextPostedMessageId
	if id.IsZero() {
		b := make([]byte, 32)
		b[0] = byte(len(s.PostedMessages))
		id, _ = core.NewMessageIdFromBytes(b)
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"messageId": id.String()})
}

func (s *Server) handleAddressBalance(c *gin.Context) {
	address := c.Param("address")
	s.mu.Lock()
	outputs := s.AddressOutputs[address]
	s.mu.Unlock()
	total := uint64(0)
	for _, o := range outputs {
		if !o.IsSpent {
			total += o.Amount
		}
	}
	c.JSON(http.StatusOK, gin.H{"balance": total})
}

func (s *Server) handleAddressOutputs(c *gin.Context) {
	address := c.Param("address")
	s.mu.Lock()
	outputs := s.AddressOutputs[address]
	s.mu.Unlock()
	encoded := make([]gin.H, len(outputs))
	for i, o := range outputs {
		encoded[i] = gin.H{
			"messageId":     o.MessageId.String(),
			"transactionId": o.TransactionId.String(),
			"outputIndex":   o.OutputIndex,
			"isSpent":       o.IsSpent,
			"address":       o.Address.String(),
			"amount":        o.Amount,
		}
	}
	c.JSON(http.StatusOK, gin.H{"outputs": encoded})
}

// MustEncodeJSON is a small test helper for hand-building non-fixture
// response bodies in malformed-response test cases.
func MustEncodeJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("mocknode: encoding fixture: %v", err))
	}
	return b
}
