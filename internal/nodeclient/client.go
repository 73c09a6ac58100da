// Package nodeclient exposes one typed Go method per node REST
// endpoint (spec §4.3). Each call carries a per-operation timeout
// supplied by the caller and is adapted from the teacher's
// internal/rest/client.GetParse[K] — a small generic "GET and decode
// JSON" helper — generalized here to take a context (for the
// per-operation timeout and cancellation) and to classify failures
// into the Timeout/Transport/HttpStatus/MalformedResponse taxonomy
// spec §4.3 requires instead of returning a bare error.
package nodeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/tangle-go/client/pkg/core"
	"github.com/tangle-go/client/pkg/tangleerr"
)

// Client issues typed HTTP calls against a single node's REST API.
// One Client is bound to one node's base URL; internal/nodepool owns
// the mapping from Node to Client.
type Client struct {
	baseUrl    string
	httpClient *http.Client
}

// New builds a Client for the node at baseUrl (scheme + host, no
// trailing slash required).
func New(baseUrl string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseUrl:    strings.TrimRight(baseUrl, "/"),
		httpClient: httpClient,
	}
}

func (c *Client) url(path string) string {
	return c.baseUrl + path
}

// classifyErr maps a raw network/read error into the taxonomy spec
// §4.3 names: Timeout for an expired deadline, Transport otherwise.
// Non-2XX responses are turned into HttpStatus by the callers, not here.
func classifyErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return tangleerr.Wrap(tangleerr.KindTimeout, err, "request timed out")
	}
	return tangleerr.Wrap(tangleerr.KindTransport, err, "request failed")
}

// doJSON issues req, decodes a 2XX JSON body into a new T, and
// classifies any failure per spec §4.3.
func doJSON[T any](c *Client, ctx context.Context, method, path string, body []byte) (T, error) {
	var out T
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), bytesReader(body))
	if err != nil {
		return out, tangleerr.Wrap(tangleerr.KindTransport, err, "building request")
	}
	req.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return out, classifyErr(err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, classifyErr(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, tangleerr.HttpStatus(resp.StatusCode)
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return out, tangleerr.Wrap(tangleerr.KindMalformedResponse, err, "decoding %s response", path)
	}
	return out, nil
}

func bytesReader(body []byte) io.Reader {
	if body == nil {
		return nil
	}
	return bytes.NewReader(body)
}

// --- GET /health ---

type healthResp struct {
	Healthy bool `json:"isHealthy"`
}

func (c *Client) GetHealth(ctx context.Context) (bool, error) {
	resp, err := doJSON[healthResp](c, ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return false, err
	}
	return resp.Healthy, nil
}

// --- GET /api/v1/info ---

type infoResp struct {
	Name                     string   `json:"name"`
	Version                  string   `json:"version"`
	IsHealthy                bool     `json:"isHealthy"`
	CoordinatorPublicKey     string   `json:"coordinatorPublicKey"`
	LatestMilestoneMessageId string   `json:"latestMilestoneMessageId"`
	LatestMilestoneIndex     uint32   `json:"latestMilestoneIndex"`
	SolidMilestoneMessageId  string   `json:"solidMilestoneMessageId"`
	SolidMilestoneIndex      uint32   `json:"solidMilestoneIndex"`
	PruningIndex             uint32   `json:"pruningIndex"`
	Features                 []string `json:"features"`
	Network                  string   `json:"network"`
	MinPowScore              float64  `json:"minPowScore"`
}

func (c *Client) GetInfo(ctx context.Context) (core.NodeInfo, error) {
	resp, err := doJSON[infoResp](c, ctx, http.MethodGet, "/api/v1/info", nil)
	if err != nil {
		return core.NodeInfo{}, err
	}
	network, err := core.ParseNetwork(resp.Network)
	if err != nil {
		return core.NodeInfo{}, tangleerr.Wrap(tangleerr.KindMalformedResponse, err, "parsing network")
	}
	latest, err := core.NewMessageIdFromHex(resp.LatestMilestoneMessageId)
	if err != nil {
		return core.NodeInfo{}, tangleerr.Wrap(tangleerr.KindMalformedResponse, err, "parsing latestMilestoneMessageId")
	}
	solid, err := core.NewMessageIdFromHex(resp.SolidMilestoneMessageId)
	if err != nil {
		return core.NodeInfo{}, tangleerr.Wrap(tangleerr.KindMalformedResponse, err, "parsing solidMilestoneMessageId")
	}
	features := make([]core.MilestoneFeature, len(resp.Features))
	for i, f := range resp.Features {
		features[i] = core.MilestoneFeature(f)
	}
	return core.NodeInfo{
		Name:                     resp.Name,
		Version:                  resp.Version,
		IsHealthy:                resp.IsHealthy,
		CoordinatorPublicKey:     resp.CoordinatorPublicKey,
		LatestMilestoneMessageId: latest,
		LatestMilestoneIndex:     resp.LatestMilestoneIndex,
		SolidMilestoneMessageId:  solid,
		SolidMilestoneIndex:      resp.SolidMilestoneIndex,
		PruningIndex:             resp.PruningIndex,
		Features:                 features,
		Network:                  network,
		MinPowScore:              resp.MinPowScore,
	}, nil
}

// --- GET /api/v1/tips ---

type tipsResp struct {
	Tip1 string `json:"tip1MessageId"`
	Tip2 string `json:"tip2MessageId"`
}

func (c *Client) GetTips(ctx context.Context) (core.MessageId, core.MessageId, error) {
	resp, err := doJSON[tipsResp](c, ctx, http.MethodGet, "/api/v1/tips", nil)
	if err != nil {
		return core.MessageId{}, core.MessageId{}, err
	}
	tip1, err := core.NewMessageIdFromHex(resp.Tip1)
	if err != nil {
		return core.MessageId{}, core.MessageId{}, tangleerr.Wrap(tangleerr.KindMalformedResponse, err, "parsing tip1")
	}
	tip2, err := core.NewMessageIdFromHex(resp.Tip2)
	if err != nil {
		return core.MessageId{}, core.MessageId{}, tangleerr.Wrap(tangleerr.KindMalformedResponse, err, "parsing tip2")
	}
	return tip1, tip2, nil
}

// --- POST /api/v1/messages ---

type postMessageResp struct {
	MessageId string `json:"messageId"`
}

// PostMessage submits the canonical binary encoding of a message and
// returns the id the node assigned it.
func (c *Client) PostMessage(ctx context.Context, raw []byte) (core.MessageId, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/api/v1/messages"), bytes.NewReader(raw))
	if err != nil {
		return core.MessageId{}, tangleerr.Wrap(tangleerr.KindTransport, err, "building request")
	}
	req.Header.Set("X-Request-Id", uuid.NewString())
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.MessageId{}, classifyErr(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.MessageId{}, classifyErr(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return core.MessageId{}, tangleerr.HttpStatus(resp.StatusCode)
	}
	var parsed postMessageResp
	if err := json.Unmarshal(body, &parsed); err != nil {
		return core.MessageId{}, tangleerr.Wrap(tangleerr.KindMalformedResponse, err, "decoding post_message response")
	}
	id, err := core.NewMessageIdFromHex(parsed.MessageId)
	if err != nil {
		return core.MessageId{}, tangleerr.Wrap(tangleerr.KindMalformedResponse, err, "parsing returned messageId")
	}
	return id, nil
}

// --- GET /api/v1/outputs/{outputId} ---

type outputResp struct {
	MessageId     string `json:"messageId"`
	TransactionId string `json:"transactionId"`
	OutputIndex   uint16 `json:"outputIndex"`
	IsSpent       bool   `json:"isSpent"`
	Address       string `json:"address"`
	Amount        uint64 `json:"amount"`
}

func (c *Client) GetOutput(ctx context.Context, outputId string) (core.OutputMetadata, error) {
	resp, err := doJSON[outputResp](c, ctx, http.MethodGet, "/api/v1/outputs/"+outputId, nil)
	if err != nil {
		return core.OutputMetadata{}, err
	}
	return parseOutputMetadata(resp)
}

func parseOutputMetadata(resp outputResp) (core.OutputMetadata, error) {
	msgId, err := core.NewMessageIdFromHex(resp.MessageId)
	if err != nil {
		return core.OutputMetadata{}, tangleerr.Wrap(tangleerr.KindMalformedResponse, err, "parsing output messageId")
	}
	txId, err := core.NewMessageIdFromHex(resp.TransactionId)
	if err != nil {
		return core.OutputMetadata{}, tangleerr.Wrap(tangleerr.KindMalformedResponse, err, "parsing output transactionId")
	}
	addr, err := core.ParseAddress(resp.Address)
	if err != nil {
		return core.OutputMetadata{}, tangleerr.Wrap(tangleerr.KindMalformedResponse, err, "parsing output address")
	}
	return core.OutputMetadata{
		MessageId:     msgId,
		TransactionId: txId,
		OutputIndex:   resp.OutputIndex,
		IsSpent:       resp.IsSpent,
		Address:       addr,
		Amount:        resp.Amount,
	}, nil
}

// --- GET /api/v1/addresses/{addr}/balance and /outputs ---

type balanceResp struct {
	Balance uint64 `json:"balance"`
}

func (c *Client) GetAddressBalance(ctx context.Context, address string) (uint64, error) {
	resp, err := doJSON[balanceResp](c, ctx, http.MethodGet, "/api/v1/addresses/"+address+"/balance", nil)
	if err != nil {
		return 0, tangleerr.AddressQueryFailed(address, err)
	}
	return resp.Balance, nil
}

type addressOutputsResp struct {
	Outputs []outputResp `json:"outputs"`
}

// GetAddressOutputs implements the find_outputs primitive spec §4.5.1
// describes the scan loop querying.
func (c *Client) GetAddressOutputs(ctx context.Context, address string) ([]core.OutputMetadata, error) {
	resp, err := doJSON[addressOutputsResp](c, ctx, http.MethodGet, "/api/v1/addresses/"+address+"/outputs", nil)
	if err != nil {
		return nil, tangleerr.AddressQueryFailed(address, err)
	}
	out := make([]core.OutputMetadata, len(resp.Outputs))
	for i, o := range resp.Outputs {
		parsed, err := parseOutputMetadata(o)
		if err != nil {
			return nil, tangleerr.AddressQueryFailed(address, err)
		}
		out[i] = parsed
	}
	return out, nil
}

// --- GET /api/v1/messages/{id} and sub-resources ---

type messageMetadataResp struct {
	MessageId             string  `json:"messageId"`
	IsSolid               bool    `json:"isSolid"`
	IsReferenced          bool    `json:"isReferenced"`
	ReferencedByMilestone *uint32 `json:"referencedByMilestoneIndex"`
	ShouldPromote         bool    `json:"shouldPromote"`
	ShouldReattach        bool    `json:"shouldReattach"`
}

// MessageMetadata is the decoded shape of GET /messages/{id}/metadata.
// ReferencedByMilestone is nil when the node has not yet confirmed the
// message, matching spec §4.6 step 2's "referenced_by_milestone_index
// is set" test.
type MessageMetadata struct {
	MessageId             core.MessageId
	IsSolid               bool
	IsReferenced          bool
	ReferencedByMilestone *uint32
	ShouldPromote         bool
	ShouldReattach        bool
}

func (c *Client) GetMessageMetadata(ctx context.Context, id core.MessageId) (MessageMetadata, error) {
	resp, err := doJSON[messageMetadataResp](c, ctx, http.MethodGet, "/api/v1/messages/"+id.String()+"/metadata", nil)
	if err != nil {
		return MessageMetadata{}, err
	}
	parsedId, err := core.NewMessageIdFromHex(resp.MessageId)
	if err != nil {
		return MessageMetadata{}, tangleerr.Wrap(tangleerr.KindMalformedResponse, err, "parsing metadata messageId")
	}
	return MessageMetadata{
		MessageId:             parsedId,
		IsSolid:               resp.IsSolid,
		IsReferenced:          resp.IsReferenced,
		ReferencedByMilestone: resp.ReferencedByMilestone,
		ShouldPromote:         resp.ShouldPromote,
		ShouldReattach:        resp.ShouldReattach,
	}, nil
}

// GetMessageRaw fetches the canonical binary encoding of a message.
func (c *Client) GetMessageRaw(ctx context.Context, id core.MessageId) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/api/v1/messages/"+id.String()+"/raw"), nil)
	if err != nil {
		return nil, tangleerr.Wrap(tangleerr.KindTransport, err, "building request")
	}
	req.Header.Set("X-Request-Id", uuid.NewString())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyErr(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, tangleerr.HttpStatus(resp.StatusCode)
	}
	return body, nil
}

// GetMessageData fetches and decodes a message via the codec.
func (c *Client) GetMessageData(ctx context.Context, id core.MessageId, decode func([]byte) (core.Message, error)) (core.Message, error) {
	raw, err := c.GetMessageRaw(ctx, id)
	if err != nil {
		return core.Message{}, err
	}
	msg, err := decode(raw)
	if err != nil {
		return core.Message{}, tangleerr.Wrap(tangleerr.KindMalformedResponse, err, "decoding message body")
	}
	return msg, nil
}

type messageChildrenResp struct {
	ChildrenMessageIds []string `json:"childrenMessageIds"`
}

func (c *Client) GetMessageChildren(ctx context.Context, id core.MessageId) ([]core.MessageId, error) {
	resp, err := doJSON[messageChildrenResp](c, ctx, http.MethodGet, "/api/v1/messages/"+id.String()+"/children", nil)
	if err != nil {
		return nil, err
	}
	out := make([]core.MessageId, len(resp.ChildrenMessageIds))
	for i, s := range resp.ChildrenMessageIds {
		parsed, err := core.NewMessageIdFromHex(s)
		if err != nil {
			return nil, tangleerr.Wrap(tangleerr.KindMalformedResponse, err, "parsing child messageId %d", i)
		}
		out[i] = parsed
	}
	return out, nil
}

// --- GET /api/v1/milestones/{index} ---

type milestoneResp struct {
	Index     uint32 `json:"index"`
	MessageId string `json:"messageId"`
	Timestamp int64  `json:"timestamp"`
}

func (c *Client) GetMilestone(ctx context.Context, index uint32) (core.Milestone, error) {
	resp, err := doJSON[milestoneResp](c, ctx, http.MethodGet, fmt.Sprintf("/api/v1/milestones/%d", index), nil)
	if err != nil {
		return core.Milestone{}, err
	}
	msgId, err := core.NewMessageIdFromHex(resp.MessageId)
	if err != nil {
		return core.Milestone{}, tangleerr.Wrap(tangleerr.KindMalformedResponse, err, "parsing milestone messageId")
	}
	return core.Milestone{Index: resp.Index, MessageId: msgId, Timestamp: resp.Timestamp}, nil
}
