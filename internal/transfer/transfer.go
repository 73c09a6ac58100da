// Package transfer implements the value-transfer pipeline (spec §4.5):
// gap-limited address scanning, balance/output queries, essence
// assembly, signing, proof-of-work attachment, and submission. The
// input-selection and change-output construction is adapted from the
// teacher's core.MakeOutboundTx — walk controlled funds from
// wealthiest (there) or lowest-index (here, since spec §4.5.5 calls
// for "a greedy walk from index 0") until the target is covered, then
// append a single change output.
package transfer

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/tangle-go/client/internal/nodeclient"
	"github.com/tangle-go/client/internal/nodepool"
	"github.com/tangle-go/client/pkg/codec"
	"github.com/tangle-go/client/pkg/core"
	"github.com/tangle-go/client/pkg/crypto"
	"github.com/tangle-go/client/pkg/pow"
	"github.com/tangle-go/client/pkg/tangleerr"
)

// SendRequest is the full option set for Send (spec §4.5.5's decision
// table). Value > 0 with Seed and Address set sends a transaction, with
// an embedded Indexation when IndexationKey is set; Value == 0 with
// IndexationKey set sends an Indexation-only message; any other
// combination fails with InvalidSendRequest.
type SendRequest struct {
	Seed           *core.Seed
	Address        *core.Address
	Value          uint64
	Path           core.BIP32Path
	Inputs         []InputSelection // user-supplied input selection; nil means greedy-walk from index 0
	IndexationKey  string
	IndexationData []byte
	LocalPow       bool
	MinPowScore    float64
}

// Engine runs the address-scan and send pipeline against a node pool.
type Engine struct {
	pool     *nodepool.Pool
	params   core.Params
	powScore float64 // not read or written; attachAndSubmit takes the score from the request or the selected node
}

func New(pool *nodepool.Pool, params core.Params) *Engine {
	return &Engine{pool: pool, params: params}
}

// scanStep is one address at one index within a wallet chain.
type scanStep struct {
	Index   uint32
	Address core.Address
	Outputs []core.OutputMetadata
	Err     error
}

// scanWindow derives and queries a gap-limit window of addresses
// starting at start, issuing all queries concurrently and joining
// before the caller decides whether to slide (spec §4.5.1: "issues its
// 20 balance probes concurrently and join before deciding to slide").
func (e *Engine) scanWindow(ctx context.Context, seed core.Seed, chain core.BIP32Path, start uint32) ([]scanStep, error) {
	if err := chain.Validate(); err != nil {
		return nil, err
	}
	if chain.Depth() != 2 {
		return nil, tangleerr.New(tangleerr.KindInvalidBip32Path, "wallet chain path must have depth 2, got %d", chain.Depth())
	}
	gapLimit := e.params.GapLimit
	steps := make([]scanStep, gapLimit)
	var wg sync.WaitGroup
	for i := 0; i < gapLimit; i++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			index := start + uint32(offset)
			path := chain.AddressPath(index)
			addr, err := crypto.DeriveAddress(seed, path)
			if err != nil {
				steps[offset] = scanStep{Index: index, Err: err}
				return
			}
			outputs, err := nodepool.Do(e.pool, func(_ nodepool.Node, client *nodeclient.Client) ([]core.OutputMetadata, error) {
				opCtx, cancel := context.WithTimeout(ctx, e.params.DefaultOpTimeout)
				defer cancel()
				return client.GetAddressOutputs(opCtx, addr.String())
			})
			steps[offset] = scanStep{Index: index, Address: addr, Outputs: outputs, Err: err}
		}(i)
	}
	wg.Wait()
	return steps, nil
}

// GetUnspentAddress scans until an address with zero outputs (no
// history) is encountered (spec §4.5.2).
func (e *Engine) GetUnspentAddress(ctx context.Context, seed core.Seed, chain core.BIP32Path, start uint32) (core.Address, uint32, error) {
	current := start
	for {
		steps, err := e.scanWindow(ctx, seed, chain, current)
		if err != nil {
			return core.Address{}, 0, err
		}
		for _, step := range steps {
			if step.Err != nil {
				return core.Address{}, 0, tangleerr.AddressQueryFailed(step.Address.String(), step.Err)
			}
			if len(step.Outputs) == 0 {
				return step.Address, step.Index, nil
			}
		}
		current += uint32(e.params.GapLimit)
	}
}

// GetBalance scans and accumulates confirmed positive balances,
// terminating at the first zero-balance address (spec §4.5.3).
func (e *Engine) GetBalance(ctx context.Context, seed core.Seed, chain core.BIP32Path) (uint64, error) {
	total := uint64(0)
	current := uint32(0)
	for {
		steps, err := e.scanWindow(ctx, seed, chain, current)
		if err != nil {
			return 0, err
		}
		sort.Slice(steps, func(i, j int) bool { return steps[i].Index < steps[j].Index })
		for _, step := range steps {
			if step.Err != nil {
				return 0, tangleerr.AddressQueryFailed(step.Address.String(), step.Err)
			}
			balance := sumUnspent(step.Outputs)
			if balance == 0 {
				return total, nil
			}
			total += balance
		}
		current += uint32(e.params.GapLimit)
	}
}

func sumUnspent(outputs []core.OutputMetadata) uint64 {
	total := uint64(0)
	for _, o := range outputs {
		if !o.IsSpent {
			total += o.Amount
		}
	}
	return total
}

// GetAddressBalances is a pure fan-out to find_outputs/balance,
// validating each address before dispatch (spec §4.5.4). Quorum mode
// queries every address against quorum_size distinct nodes and votes;
// otherwise addresses are sharded across the synced set via
// ShardAcrossSynced, one query per address against its assigned node.
func (e *Engine) GetAddressBalances(ctx context.Context, addresses []core.Address) (map[string]uint64, error) {
	for _, addr := range addresses {
		if _, err := core.ParseAddress(addr.String()); err != nil {
			return nil, err
		}
	}
	if e.pool.QuorumEnabled() {
		return e.getAddressBalancesQuorum(ctx, addresses)
	}
	return e.getAddressBalancesSharded(ctx, addresses)
}

func (e *Engine) getAddressBalancesSharded(ctx context.Context, addresses []core.Address) (map[string]uint64, error) {
	addrStrings := make([]string, len(addresses))
	for i, addr := range addresses {
		addrStrings[i] = addr.String()
	}
	chunks, clients, err := e.pool.ShardAcrossSynced(addrStrings)
	if err != nil {
		return nil, err
	}
	out := make(map[string]uint64, len(addresses))
	var mu sync.Mutex
	var wg sync.WaitGroup
	errs := make(chan error, len(addresses))
	for i, chunk := range chunks {
		client := clients[i]
		for _, addrStr := range chunk {
			wg.Add(1)
			go func(addrStr string, client *nodeclient.Client) {
				defer wg.Done()
				opCtx, cancel := context.WithTimeout(ctx, e.params.DefaultOpTimeout)
				defer cancel()
				balance, err := client.GetAddressBalance(opCtx, addrStr)
				if err != nil {
					errs <- err
					return
				}
				mu.Lock()
				out[addrStr] = balance
				mu.Unlock()
			}(addrStr, client)
		}
	}
	wg.Wait()
	close(errs)
	if err := <-errs; err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) getAddressBalancesQuorum(ctx context.Context, addresses []core.Address) (map[string]uint64, error) {
	out := make(map[string]uint64, len(addresses))
	var mu sync.Mutex
	var wg sync.WaitGroup
	errs := make(chan error, len(addresses))
	for _, addr := range addresses {
		wg.Add(1)
		go func(addr core.Address) {
			defer wg.Done()
			balance, err := e.queryBalance(ctx, addr)
			if err != nil {
				errs <- err
				return
			}
			mu.Lock()
			out[addr.String()] = balance
			mu.Unlock()
		}(addr)
	}
	wg.Wait()
	close(errs)
	if err := <-errs; err != nil {
		return nil, err
	}
	return out, nil
}

// queryBalance honors quorum mode when configured, per spec §4.4/§8
// scenario 6.
func (e *Engine) queryBalance(ctx context.Context, addr core.Address) (uint64, error) {
	if !e.pool.QuorumEnabled() {
		return nodepool.Do(e.pool, func(_ nodepool.Node, client *nodeclient.Client) (uint64, error) {
			opCtx, cancel := context.WithTimeout(ctx, e.params.DefaultOpTimeout)
			defer cancel()
			return client.GetAddressBalance(opCtx, addr.String())
		})
	}
	_, clients, err := e.pool.SelectQuorum()
	if err != nil {
		return 0, err
	}
	results := make([]uint64, len(clients))
	errs := make([]error, len(clients))
	var wg sync.WaitGroup
	for i, client := range clients {
		wg.Add(1)
		go func(i int, client *nodeclient.Client) {
			defer wg.Done()
			opCtx, cancel := context.WithTimeout(ctx, e.params.DefaultOpTimeout)
			defer cancel()
			results[i], errs[i] = client.GetAddressBalance(opCtx, addr.String())
		}(i, client)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return 0, err
		}
	}
	counts := make(map[uint64]int)
	for _, r := range results {
		counts[r]++
	}
	best := uint64(0)
	bestCount := 0
	for v, c := range counts {
		if c > bestCount {
			best, bestCount = v, c
		}
	}
	if float64(bestCount)/float64(len(results)) < e.pool.QuorumThreshold() {
		return 0, tangleerr.New(tangleerr.KindQuorumFailed, "quorum disagreement on balance for %s", addr)
	}
	return best, nil
}

// selectedInput pairs one owned output with the wallet index its
// address was derived at, so Send can later sign it with that index's
// key and dedupe signature-vs-reference unlocks by address.
type selectedInput struct {
	WalletIndex uint32
	Output      core.OutputMetadata
}

// InputSelection is a caller-supplied input for Send: the output to
// spend plus the wallet-chain index its owning address was derived at,
// so Send can validate and sign it without re-deriving the address.
type InputSelection struct {
	WalletIndex uint32
	Output      core.OutputMetadata
}

// greedyWalkInputs walks addresses from index 0, accumulating owned
// outputs until the running sum reaches target, per spec §4.5.5 step 3.
func (e *Engine) greedyWalkInputs(ctx context.Context, seed core.Seed, chain core.BIP32Path, target uint64) ([]selectedInput, uint64, error) {
	var picked []selectedInput
	sum := uint64(0)
	current := uint32(0)
	for sum < target {
		steps, err := e.scanWindow(ctx, seed, chain, current)
		if err != nil {
			return nil, 0, err
		}
		sort.Slice(steps, func(i, j int) bool { return steps[i].Index < steps[j].Index })
		progressed := false
		for _, step := range steps {
			if step.Err != nil {
				return nil, 0, tangleerr.AddressQueryFailed(step.Address.String(), step.Err)
			}
			if len(step.Outputs) == 0 {
				if sum >= target {
					break
				}
				continue
			}
			progressed = true
			for _, o := range step.Outputs {
				if o.IsSpent || sum >= target {
					continue
				}
				picked = append(picked, selectedInput{WalletIndex: step.Index, Output: o})
				sum += o.Amount
			}
		}
		if sum >= target {
			break
		}
		if !progressed {
			return nil, 0, tangleerr.New(tangleerr.KindInsufficientBalance, "ran out of owned outputs before reaching %d", target)
		}
		current += uint32(e.params.GapLimit)
	}
	return picked, sum, nil
}

// Send implements the full decision table and pipeline of spec §4.5.5.
func (e *Engine) Send(ctx context.Context, req SendRequest) (core.Message, error) {
	switch {
	case req.Value == 0 && req.IndexationKey != "":
		return e.sendIndexation(ctx, req)
	case req.Seed != nil && req.Address != nil && req.Value > 0:
		return e.sendTransaction(ctx, req)
	default:
		return core.Message{}, tangleerr.New(tangleerr.KindInvalidSendRequest, "send request matches no valid combination of seed/address/value/indexation_key")
	}
}

func (e *Engine) sendIndexation(ctx context.Context, req SendRequest) (core.Message, error) {
	indexation := core.Indexation{Index: req.IndexationKey, Data: req.IndexationData}
	msg := core.Message{Payload: core.IndexationPayload(&indexation)}
	if err := e.attachAndSubmit(ctx, &msg, req); err != nil {
		return core.Message{}, err
	}
	return msg, nil
}

func (e *Engine) sendTransaction(ctx context.Context, req SendRequest) (core.Message, error) {
	if err := req.Path.Validate(); err != nil {
		return core.Message{}, err
	}
	if req.Path.Depth() != 2 {
		return core.Message{}, tangleerr.New(tangleerr.KindInvalidBip32Path, "send requires a depth-2 wallet chain path, got %d", req.Path.Depth())
	}
	if _, err := core.ParseAddress(req.Address.String()); err != nil {
		return core.Message{}, err
	}

	available, err := e.GetBalance(ctx, *req.Seed, req.Path)
	if err != nil {
		return core.Message{}, err
	}
	if available < req.Value {
		return core.Message{}, tangleerr.New(tangleerr.KindInsufficientBalance, "available %d < requested %d", available, req.Value)
	}

	var inputs []selectedInput
	var sum uint64
	highestIndex := uint32(0)
	if len(req.Inputs) > 0 {
		for _, in := range req.Inputs {
			wantAddr, err := crypto.DeriveAddress(*req.Seed, req.Path.AddressPath(in.WalletIndex))
			if err != nil {
				return core.Message{}, err
			}
			if !wantAddr.Eq(in.Output.Address) {
				return core.Message{}, tangleerr.New(tangleerr.KindInvalidSendRequest, "supplied output at wallet index %d does not belong to the derived address", in.WalletIndex)
			}
			inputs = append(inputs, selectedInput{WalletIndex: in.WalletIndex, Output: in.Output})
			sum += in.Output.Amount
		}
		if sum < req.Value {
			return core.Message{}, tangleerr.New(tangleerr.KindInsufficientBalance, "supplied inputs total %d < requested %d", sum, req.Value)
		}
	} else {
		inputs, sum, err = e.greedyWalkInputs(ctx, *req.Seed, req.Path, req.Value)
		if err != nil {
			return core.Message{}, err
		}
	}
	for _, in := range inputs {
		if in.WalletIndex > highestIndex {
			highestIndex = in.WalletIndex
		}
	}

	outputs := []core.SignatureLockedSingleOutput{{Address: *req.Address, Amount: req.Value}}
	change := sum - req.Value
	if change > 0 {
		changeAddr, _, err := e.GetUnspentAddress(ctx, *req.Seed, req.Path, highestIndex+1)
		if err != nil {
			return core.Message{}, err
		}
		outputs = append(outputs, core.SignatureLockedSingleOutput{Address: changeAddr, Amount: change})
	}

	essenceInputs := make([]core.UTXOInput, len(inputs))
	for i, in := range inputs {
		essenceInputs[i] = core.UTXOInput{TransactionId: in.Output.TransactionId, Index: in.Output.OutputIndex}
	}
	order := make([]int, len(inputs))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := essenceInputs[order[i]], essenceInputs[order[j]]
		if !a.TransactionId.Eq(b.TransactionId) {
			return bytes.Compare(a.TransactionId.Bytes(), b.TransactionId.Bytes()) < 0
		}
		return a.Index < b.Index
	})
	sortedInputs := make([]core.UTXOInput, len(order))
	sortedSelected := make([]selectedInput, len(order))
	for i, idx := range order {
		sortedInputs[i] = essenceInputs[idx]
		sortedSelected[i] = inputs[idx]
	}

	var indexation *core.Indexation
	if req.IndexationKey != "" {
		indexation = &core.Indexation{Index: req.IndexationKey, Data: req.IndexationData}
	}
	essence := core.TransactionEssence{Inputs: sortedInputs, Outputs: outputs, Indexation: indexation}
	essenceHash := codec.EssenceHash(essence)

	unlocks := make([]core.UnlockBlock, len(sortedSelected))
	firstSeen := make(map[string]int)
	for i, in := range sortedSelected {
		addrKey := in.Output.Address.String()
		if firstIdx, ok := firstSeen[addrKey]; ok {
			unlocks[i] = core.ReferenceUnlock(uint16(firstIdx))
			continue
		}
		key, derr := crypto.Derive(*req.Seed, req.Path.AddressPath(in.WalletIndex))
		if derr != nil {
			return core.Message{}, derr
		}
		signature := key.Sign(essenceHash[:])
		unlocks[i] = core.SignatureUnlock(key.PublicKey(), signature)
		firstSeen[addrKey] = i
	}

	tx := core.Transaction{Essence: essence, UnlockBlocks: unlocks}
	msg := core.Message{Payload: core.TransactionPayload(&tx)}
	if err := e.attachAndSubmit(ctx, &msg, req); err != nil {
		return core.Message{}, err
	}
	return msg, nil
}

// attachAndSubmit fetches tips, runs local PoW when requested, and
// posts the finished message, per spec §4.5.5 steps 7-9. The whole
// tips-fetch/PoW/post attempt is retried against another synced node on
// timeout/transport failure (spec §7); since the PoW-locally decision
// and the target score both depend on which node answers, a retry
// re-derives them for whichever node it lands on rather than carrying
// over the previous attempt's node.
func (e *Engine) attachAndSubmit(ctx context.Context, msg *core.Message, req SendRequest) error {
	_, err := nodepool.Do(e.pool, func(node nodepool.Node, client *nodeclient.Client) (struct{}, error) {
		tipsCtx, cancel := context.WithTimeout(ctx, e.params.GetTipsTimeout)
		parent1, parent2, err := client.GetTips(tipsCtx)
		cancel()
		if err != nil {
			return struct{}{}, err
		}
		msg.Parent1, msg.Parent2 = parent1, parent2

		// A caller asking for local PoW is always honored; otherwise fall
		// back to local PoW if the selected node can't compute it remotely.
		computeLocally := req.LocalPow || !node.RemotePow
		if computeLocally {
			score := req.MinPowScore
			if score == 0 {
				score = node.MinPowScore
			}
			if err := pow.Search(ctx, msg, pow.Options{MinScore: score, CheckpointHashes: e.params.PowCheckpointHashes}); err != nil {
				return struct{}{}, err
			}
		}

		postTimeout := e.params.PostMessageRemotePowTimeout
		if computeLocally {
			postTimeout = e.params.PostMessageTimeout
		}
		postCtx, cancel := context.WithTimeout(ctx, postTimeout)
		defer cancel()

		raw := codec.EncodeMessage(*msg)
		if _, err := client.PostMessage(postCtx, raw); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	return err
}
