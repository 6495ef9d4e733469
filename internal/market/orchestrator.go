// Package market orchestrates on-chain intents: supplying to the
// lending market, withdrawing from it, and direct wallet transfers.
// Every intent re-reads the relevant balance immediately before acting
// and awaits confirmation of each submitted call before the next step.
package market

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lendchat/lendchat/internal/logger"
	apperrors "github.com/lendchat/lendchat/pkg/errors"
	"github.com/lendchat/lendchat/pkg/types"
)

// Intent is the closed set of orchestrated operations.
type Intent int

const (
	IntentSupply Intent = iota
	IntentWithdraw
	IntentSend
)

func (i Intent) String() string {
	switch i {
	case IntentSupply:
		return "supply"
	case IntentWithdraw:
		return "withdraw"
	case IntentSend:
		return "send"
	default:
		return "unknown"
	}
}

// PendingTx identifies a submitted but unconfirmed transaction.
type PendingTx struct {
	Hash string
}

// ChainClient is the capability set the orchestrator drives. Amounts
// are smallest-unit integers; submissions return a pending transaction
// that must be passed to Await before the flow continues.
type ChainClient interface {
	NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, token, addr common.Address) (*big.Int, error)
	TokenDecimals(ctx context.Context, token common.Address) (uint8, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	MarketBalance(ctx context.Context, account common.Address) (*big.Int, error)

	SubmitApproval(ctx context.Context, key *ecdsa.PrivateKey, token, spender common.Address, amount *big.Int) (PendingTx, error)
	SubmitTransfer(ctx context.Context, key *ecdsa.PrivateKey, token, to common.Address, amount *big.Int) (PendingTx, error)
	SubmitNativeTransfer(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, amount *big.Int) (PendingTx, error)
	SubmitWrap(ctx context.Context, key *ecdsa.PrivateKey, weth common.Address, amount *big.Int) (PendingTx, error)
	SubmitMarketSupply(ctx context.Context, key *ecdsa.PrivateKey, token common.Address, amount *big.Int) (PendingTx, error)
	SubmitMarketWithdraw(ctx context.Context, key *ecdsa.PrivateKey, token common.Address, amount *big.Int) (PendingTx, error)

	Await(ctx context.Context, tx PendingTx) (string, error)
}

// Request carries one validated intent.
type Request struct {
	AccountID string
	Intent    Intent
	Amount    string
	Token     string
	From      common.Address
	// Destination is nil when funds stay in the caller's own wallet.
	Destination *common.Address
}

// Orchestrator executes intents against a chain client.
type Orchestrator struct {
	client      ChainClient
	registry    *Registry
	comet       common.Address
	callTimeout time.Duration
}

// NewOrchestrator creates an orchestrator. comet is the market
// contract, which is also the spender checked for allowances.
func NewOrchestrator(client ChainClient, registry *Registry, comet common.Address, callTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		client:      client,
		registry:    registry,
		comet:       comet,
		callTimeout: callTimeout,
	}
}

// Registry exposes the token registry for command handlers.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Execute runs one intent to completion. The caller owns the decrypted
// key and must hold the account lock for the full call.
func (o *Orchestrator) Execute(ctx context.Context, key *ecdsa.PrivateKey, req *Request) (*types.Outcome, error) {
	switch req.Intent {
	case IntentSupply:
		return o.supply(ctx, key, req)
	case IntentWithdraw:
		return o.withdraw(ctx, key, req)
	case IntentSend:
		return o.send(ctx, key, req)
	default:
		return nil, apperrors.NewWithDetail(apperrors.ErrCodeInternalError, "Unknown intent", req.Intent.String())
	}
}

// supply moves tokens from the wallet into the market: balance check,
// optional wrap for the native coin, allowance check with approval if
// short, then the supply call. Approval confirmation always precedes
// supply submission.
func (o *Orchestrator) supply(ctx context.Context, key *ecdsa.PrivateKey, req *Request) (*types.Outcome, error) {
	tok, ok := o.registry.Resolve(req.Token)
	if !ok {
		return nil, apperrors.InvalidToken(req.Token, o.registry.SupportedForTransfer())
	}
	if !o.registry.SupportedForSupply(tok) {
		return nil, apperrors.UnsupportedForMarket(tok.Symbol)
	}

	decimals, err := o.decimals(ctx, tok)
	if err != nil {
		return nil, err
	}
	amount, err := ParseAmount(req.Amount, decimals)
	if err != nil {
		return nil, err
	}

	supplyToken := tok.Address
	if tok.Native {
		// The market takes the wrapped token; wrap first, after
		// confirming the native balance covers the amount.
		balance, err := o.nativeBalance(ctx, req.From)
		if err != nil {
			return nil, err
		}
		if balance.Cmp(amount) < 0 {
			return nil, apperrors.InsufficientBalance(tok.Symbol, FormatAmount(balance, decimals), req.Amount)
		}

		wrapHash, err := o.submitAndAwait(ctx, "wrap", func(callCtx context.Context) (PendingTx, error) {
			return o.client.SubmitWrap(callCtx, key, o.registry.WETH(), amount)
		})
		if err != nil {
			return nil, err
		}
		logger.Debug(ctx, "wrapped native coin", "tx", wrapHash)
		supplyToken = o.registry.WETH()
	} else {
		balance, err := o.tokenBalance(ctx, tok.Address, req.From)
		if err != nil {
			return nil, err
		}
		if balance.Cmp(amount) < 0 {
			return nil, apperrors.InsufficientBalance(tok.Symbol, FormatAmount(balance, decimals), req.Amount)
		}
	}

	allowance, err := o.allowance(ctx, supplyToken, req.From)
	if err != nil {
		return nil, err
	}

	var approvalHash string
	if allowance.Cmp(amount) < 0 {
		approvalHash, err = o.submitAndAwait(ctx, "approve", func(callCtx context.Context) (PendingTx, error) {
			return o.client.SubmitApproval(callCtx, key, supplyToken, o.comet, amount)
		})
		if err != nil {
			if apperrors.HasCode(err, apperrors.ErrCodeTimeout) {
				return nil, err
			}
			return nil, apperrors.ApprovalFailed(err.Error())
		}
		logger.Info(ctx, "approved market spend",
			"account", logger.MaskAccountID(req.AccountID), "token", tok.Symbol)
	}

	supplyHash, err := o.submitAndAwait(ctx, "supply", func(callCtx context.Context) (PendingTx, error) {
		return o.client.SubmitMarketSupply(callCtx, key, supplyToken, amount)
	})
	if err != nil {
		// The approval, if any, stays in effect; report it so the
		// user can retry just the supply step.
		if approvalHash != "" {
			if appErr, ok := apperrors.IsAppError(err); ok {
				return nil, apperrors.NewWithDetail(appErr.Code, appErr.Message,
					fmt.Sprintf("%s; approval %s remains in effect", appErr.Detail, approvalHash))
			}
		}
		return nil, err
	}

	logger.Info(ctx, "supply confirmed",
		"account", logger.MaskAccountID(req.AccountID), "token", tok.Symbol, "tx", supplyHash)
	return &types.Outcome{TxHashes: []string{supplyHash}}, nil
}

// withdraw pulls tokens out of the market, optionally forwarding them
// to a third-party destination with a fresh wallet balance check in
// between.
func (o *Orchestrator) withdraw(ctx context.Context, key *ecdsa.PrivateKey, req *Request) (*types.Outcome, error) {
	tok, ok := o.registry.Resolve(req.Token)
	if !ok {
		return nil, apperrors.InvalidToken(req.Token, o.registry.SupportedForTransfer())
	}
	if !o.registry.SupportedForWithdraw(tok) {
		return nil, apperrors.UnsupportedForMarket(tok.Symbol)
	}

	decimals, err := o.decimals(ctx, tok)
	if err != nil {
		return nil, err
	}
	amount, err := ParseAmount(req.Amount, decimals)
	if err != nil {
		return nil, err
	}

	supplied, err := o.marketBalance(ctx, req.From)
	if err != nil {
		return nil, err
	}
	if supplied.Cmp(amount) < 0 {
		return nil, apperrors.InsufficientBalance(tok.Symbol, FormatAmount(supplied, decimals), req.Amount)
	}

	withdrawHash, err := o.submitAndAwait(ctx, "withdraw", func(callCtx context.Context) (PendingTx, error) {
		return o.client.SubmitMarketWithdraw(callCtx, key, tok.Address, amount)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "withdraw confirmed",
		"account", logger.MaskAccountID(req.AccountID), "token", tok.Symbol, "tx", withdrawHash)

	if req.Destination == nil || *req.Destination == req.From {
		return &types.Outcome{TxHashes: []string{withdrawHash}}, nil
	}

	// Forwarding: the wallet balance just increased by the withdrawn
	// amount; re-check it rather than assuming.
	balance, err := o.tokenBalance(ctx, tok.Address, req.From)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(amount) < 0 {
		return nil, apperrors.InsufficientBalance(tok.Symbol, FormatAmount(balance, decimals), req.Amount)
	}

	transferHash, err := o.submitAndAwait(ctx, "transfer", func(callCtx context.Context) (PendingTx, error) {
		return o.client.SubmitTransfer(callCtx, key, tok.Address, *req.Destination, amount)
	})
	if err != nil {
		if appErr, ok := apperrors.IsAppError(err); ok {
			return nil, apperrors.NewWithDetail(appErr.Code, appErr.Message,
				fmt.Sprintf("%s; withdraw %s already confirmed", appErr.Detail, withdrawHash))
		}
		return nil, err
	}

	logger.Info(ctx, "forward transfer confirmed",
		"account", logger.MaskAccountID(req.AccountID), "tx", transferHash)
	return &types.Outcome{TxHashes: []string{withdrawHash, transferHash}}, nil
}

// send transfers tokens directly from the wallet, no market involved.
func (o *Orchestrator) send(ctx context.Context, key *ecdsa.PrivateKey, req *Request) (*types.Outcome, error) {
	tok, ok := o.registry.Resolve(req.Token)
	if !ok {
		return nil, apperrors.InvalidToken(req.Token, o.registry.SupportedForTransfer())
	}
	if req.Destination == nil {
		return nil, apperrors.InvalidDestination("missing")
	}

	decimals, err := o.decimals(ctx, tok)
	if err != nil {
		return nil, err
	}
	amount, err := ParseAmount(req.Amount, decimals)
	if err != nil {
		return nil, err
	}

	var hash string
	if tok.Native {
		balance, err := o.nativeBalance(ctx, req.From)
		if err != nil {
			return nil, err
		}
		if balance.Cmp(amount) < 0 {
			return nil, apperrors.InsufficientBalance(tok.Symbol, FormatAmount(balance, decimals), req.Amount)
		}
		hash, err = o.submitAndAwait(ctx, "transfer", func(callCtx context.Context) (PendingTx, error) {
			return o.client.SubmitNativeTransfer(callCtx, key, *req.Destination, amount)
		})
		if err != nil {
			return nil, err
		}
	} else {
		balance, err := o.tokenBalance(ctx, tok.Address, req.From)
		if err != nil {
			return nil, err
		}
		if balance.Cmp(amount) < 0 {
			return nil, apperrors.InsufficientBalance(tok.Symbol, FormatAmount(balance, decimals), req.Amount)
		}
		hash, err = o.submitAndAwait(ctx, "transfer", func(callCtx context.Context) (PendingTx, error) {
			return o.client.SubmitTransfer(callCtx, key, tok.Address, *req.Destination, amount)
		})
		if err != nil {
			return nil, err
		}
	}

	logger.Info(ctx, "send confirmed",
		"account", logger.MaskAccountID(req.AccountID), "token", tok.Symbol, "tx", hash)
	return &types.Outcome{TxHashes: []string{hash}}, nil
}

// submitAndAwait runs one submission plus its confirmation wait, each
// under the per-call timeout.
func (o *Orchestrator) submitAndAwait(ctx context.Context, op string, submit func(context.Context) (PendingTx, error)) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	pending, err := submit(callCtx)
	cancel()
	if err != nil {
		return "", chainErr(op, err)
	}

	awaitCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	hash, err := o.client.Await(awaitCtx, pending)
	if err != nil {
		return "", chainErr(op+" confirmation", err)
	}
	return hash, nil
}

func (o *Orchestrator) decimals(ctx context.Context, tok Token) (uint8, error) {
	if tok.Native {
		return NativeDecimals, nil
	}
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	decimals, err := o.client.TokenDecimals(callCtx, tok.Address)
	if err != nil {
		return 0, chainErr("decimals", err)
	}
	return decimals, nil
}

func (o *Orchestrator) nativeBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	balance, err := o.client.NativeBalance(callCtx, addr)
	if err != nil {
		return nil, chainErr("balance", err)
	}
	return balance, nil
}

func (o *Orchestrator) tokenBalance(ctx context.Context, token, addr common.Address) (*big.Int, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	balance, err := o.client.TokenBalance(callCtx, token, addr)
	if err != nil {
		return nil, chainErr("balance", err)
	}
	return balance, nil
}

func (o *Orchestrator) allowance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	allowance, err := o.client.Allowance(callCtx, token, owner, o.comet)
	if err != nil {
		return nil, chainErr("allowance", err)
	}
	return allowance, nil
}

func (o *Orchestrator) marketBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	balance, err := o.client.MarketBalance(callCtx, addr)
	if err != nil {
		return nil, chainErr("market balance", err)
	}
	return balance, nil
}

// chainErr maps a chain client error to the typed taxonomy: deadline
// expiry becomes a timeout, AppErrors pass through, anything else is a
// call failure.
func chainErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Timeout(op)
	}
	if appErr, ok := apperrors.IsAppError(err); ok {
		return appErr
	}
	return apperrors.CallFailed(fmt.Sprintf("%s: %v", op, err))
}
