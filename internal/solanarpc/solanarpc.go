// Package solanarpc fetches the cluster's vote-account roster over
// JSON-RPC, the sole external collaborator the discovery filter depends
// on.
package solanarpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"github.com/hellomoon/svlm/internal/retry"
	"github.com/hellomoon/svlm/internal/svlmerr"
)

// Entry is one roster row: a validator identity paired with its vote
// account and activated stake.
type Entry struct {
	IdentityKey    string
	VoteAccountKey string
	StakeLamports  uint64
}

// Roster is the result of a single fetch: current and delinquent entries,
// kept separate because the discovery filter's delinquent-inclusion rule
// treats them differently.
type Roster struct {
	Current    []Entry
	Delinquent []Entry
}

// Client wraps a solana-go RPC client with the roster fetch's retry and
// timeout behavior: exponential backoff (1s base, 2x multiplier, 10s
// cap, ±10% jitter), at most 3 attempts, and a default 30s call timeout.
type Client struct {
	rpc     *rpc.Client
	timeout time.Duration
}

// New builds a Client against rpcURL. timeout defaults to 30s if zero.
func New(rpcURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		rpc:     rpc.New(rpcURL),
		timeout: timeout,
	}
}

var rosterRetryConfig = retry.Config{
	MaxAttempts: 3,
	BaseBackoff: 1 * time.Second,
	MaxBackoff:  10 * time.Second,
}

// FetchVoteAccounts fetches the full current+delinquent roster in one
// call. The call must succeed end-to-end; a partial response is treated
// as a failure rather than returned with an incomplete set.
func (c *Client) FetchVoteAccounts(ctx context.Context) (Roster, error) {
	var result *rpc.GetVoteAccountsResult

	err := retry.Do(ctx, rosterRetryConfig, func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		res, rpcErr := c.rpc.GetVoteAccounts(callCtx, &rpc.GetVoteAccountsOpts{})
		if rpcErr != nil {
			return classifyRPCError(rpcErr)
		}
		result = res
		return nil
	})
	if err != nil {
		return Roster{}, err
	}

	roster := Roster{
		Current:    make([]Entry, 0, len(result.Current)),
		Delinquent: make([]Entry, 0, len(result.Delinquent)),
	}
	for _, va := range result.Current {
		roster.Current = append(roster.Current, toEntry(va))
	}
	for _, va := range result.Delinquent {
		roster.Delinquent = append(roster.Delinquent, toEntry(va))
	}
	return roster, nil
}

func toEntry(va rpc.VoteAccountsResult) Entry {
	return Entry{
		IdentityKey:    va.NodePubkey.String(),
		VoteAccountKey: va.VotePubkey.String(),
		StakeLamports:  va.ActivatedStake,
	}
}

// classifyRPCError maps a raw RPC failure to a svlmerr.Kind so the retry
// loop and the caller can both reason about it. 4xx responses other than
// 429 are terminal; everything else (network errors, 5xx, timeouts, 429,
// JSON-RPC level errors) is transient.
func classifyRPCError(err error) error {
	const op = "solanarpc.FetchVoteAccounts"
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return svlmerr.New(svlmerr.KindTimeout, op, err)
	}

	var httpErr *jsonrpc.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.Code == http.StatusTooManyRequests:
			return svlmerr.New(svlmerr.KindRateLimit, op, err)
		case httpErr.Code >= 500:
			return svlmerr.New(svlmerr.KindRPC, op, err)
		default:
			return svlmerr.New(svlmerr.KindInternal, op, fmt.Errorf("http status %d", httpErr.Code))
		}
	}

	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return svlmerr.New(svlmerr.KindRPC, op, fmt.Errorf("json-rpc error %d: %s", rpcErr.Code, rpcErr.Message))
	}

	return svlmerr.New(svlmerr.KindNetwork, op, err)
}
