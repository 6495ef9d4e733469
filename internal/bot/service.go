// Package bot implements the conversational command core: inbound
// text is parsed into commands, pending multi-step sessions are
// resolved first, and every reply is rendered for the messaging
// channel.
package bot

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lendchat/lendchat/internal/keys"
	"github.com/lendchat/lendchat/internal/logger"
	"github.com/lendchat/lendchat/internal/market"
	"github.com/lendchat/lendchat/internal/metrics"
	"github.com/lendchat/lendchat/internal/session"
	"github.com/lendchat/lendchat/internal/storage"
	apperrors "github.com/lendchat/lendchat/pkg/errors"
	"github.com/lendchat/lendchat/pkg/types"
)

// ChainReader is the read-only chain surface the command core needs
// for balance and market queries.
type ChainReader interface {
	NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, token, addr common.Address) (*big.Int, error)
	TokenDecimals(ctx context.Context, token common.Address) (uint8, error)
	MarketBalance(ctx context.Context, account common.Address) (*big.Int, error)
	MarketRates(ctx context.Context) (utilization *big.Int, supplyRate uint64, err error)
}

// Service routes account messages to command handlers. All replies are
// strings ready for the messaging channel; failures are rendered, not
// returned.
type Service struct {
	wallets     storage.WalletStore
	cipher      *keys.Cipher
	orch        *market.Orchestrator
	reader      ChainReader
	sessions    *session.Store
	locks       *session.AccountLocks
	explorerURL string
	callTimeout time.Duration
}

// NewService wires the command core.
func NewService(
	wallets storage.WalletStore,
	cipher *keys.Cipher,
	orch *market.Orchestrator,
	reader ChainReader,
	sessions *session.Store,
	explorerURL string,
	callTimeout time.Duration,
) *Service {
	return &Service{
		wallets:     wallets,
		cipher:      cipher,
		orch:        orch,
		reader:      reader,
		sessions:    sessions,
		locks:       session.NewAccountLocks(),
		explorerURL: explorerURL,
		callTimeout: callTimeout,
	}
}

// Handle processes one inbound message and returns the reply text.
// A pending session for the account takes priority over command
// parsing, so a bare address reply completes the session instead of
// being rejected as an unknown command.
//
// The account lock is held from the session read through the last
// confirmation, so a cancellation can never race a destination
// resolution and two replies can never resolve the same session.
func (s *Service) Handle(ctx context.Context, accountID, text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return s.handleHelp()
	}

	unlock := s.locks.Lock(accountID)
	defer unlock()

	if pending := s.sessions.Get(accountID); pending != nil {
		reply, err := s.resumeSession(ctx, accountID, pending, text)
		metrics.ObserveCommand("session_"+string(pending.Kind), err)
		if err != nil {
			return renderError(err)
		}
		return reply
	}

	fields := strings.Fields(text)
	command := normalizeCommand(fields[0])
	args := fields[1:]

	reply, err := s.dispatch(ctx, accountID, command, args)
	metrics.ObserveCommand(metricLabel(command), err)
	if err != nil {
		logger.Warn(ctx, "command failed",
			"account", logger.MaskAccountID(accountID), "command", command, "error", err)
		return renderError(err)
	}
	return reply
}

func (s *Service) dispatch(ctx context.Context, accountID, command string, args []string) (string, error) {
	switch command {
	case "help":
		return s.handleHelp(), nil
	case "create":
		return s.handleCreate(ctx, accountID)
	case "import":
		return s.handleImport(ctx, accountID, args)
	case "wallet":
		return s.handleWallet(ctx, accountID)
	case "deposit":
		return s.handleDeposit(ctx, accountID)
	case "balance":
		return s.handleBalance(ctx, accountID)
	case "markets":
		return s.handleMarkets(ctx)
	case "supply":
		return s.handleSupply(ctx, accountID, args)
	case "withdraw":
		return s.handleWithdraw(ctx, accountID, args)
	case "send":
		return s.handleSend(ctx, accountID, args)
	case "cancel":
		return "Nothing to cancel.", nil
	default:
		return s.handleUnknown(command), nil
	}
}

var knownCommands = map[string]bool{
	"help": true, "create": true, "import": true, "wallet": true,
	"deposit": true, "balance": true, "markets": true,
	"supply": true, "withdraw": true, "send": true, "cancel": true,
}

// metricLabel collapses unrecognized input onto one label so user text
// never becomes a metric dimension.
func metricLabel(command string) string {
	if knownCommands[command] {
		return command
	}
	return "unknown"
}

// normalizeCommand folds greetings and aliases onto canonical command
// names.
func normalizeCommand(word string) string {
	switch strings.ToLower(word) {
	case "hi", "hello", "hey", "start", "menu", "?":
		return "help"
	case "new":
		return "create"
	case "restore", "recover":
		return "import"
	case "address":
		return "wallet"
	case "balances", "bal":
		return "balance"
	case "market", "rates", "earn":
		return "markets"
	case "lend":
		return "supply"
	case "transfer", "pay":
		return "send"
	default:
		return strings.ToLower(word)
	}
}

// resumeSession completes a pending send or withdraw once the account
// replies with a destination. "cancel" abandons the session; "me" or
// "my wallet" routes funds to the account's own address.
func (s *Service) resumeSession(ctx context.Context, accountID string, pending *types.Session, text string) (string, error) {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "cancel" {
		s.clearSession(accountID)
		return "Cancelled. Nothing was sent.", nil
	}

	record, err := s.loadWallet(ctx, accountID)
	if err != nil {
		s.clearSession(accountID)
		return "", err
	}
	from := common.HexToAddress(record.Address)

	var dest common.Address
	switch lowered {
	case "me", "my wallet", "mywallet":
		dest = from
	default:
		if !common.IsHexAddress(text) {
			// Keep the session alive so the account can retry the
			// address without re-entering the whole command.
			return "", apperrors.NewWithDetail(
				apperrors.ErrCodeInvalidDestination,
				"That doesn't look like an address",
				"reply with a 0x address, *me*, or *cancel*",
			)
		}
		dest = common.HexToAddress(text)
	}

	s.clearSession(accountID)

	intent := market.IntentSend
	if pending.Kind == types.SessionWithdraw {
		intent = market.IntentWithdraw
	}

	outcome, err := s.execute(ctx, accountID, record, &market.Request{
		AccountID:   accountID,
		Intent:      intent,
		Amount:      pending.Amount,
		Token:       pending.Token,
		From:        from,
		Destination: &dest,
	})
	if err != nil {
		return "", err
	}
	return s.renderOutcome(intent, pending.Amount, pending.Token, outcome), nil
}

// execute decrypts the account key, runs the intent and zeroizes the
// key on every path out. The caller holds the account lock.
func (s *Service) execute(ctx context.Context, accountID string, record *types.WalletRecord, req *market.Request) (*types.Outcome, error) {
	keyBytes, err := s.cipher.DecryptSecret(&types.EncryptedSecret{
		Ciphertext: record.Ciphertext,
		IV:         record.IV,
		Salt:       record.Salt,
		AuthTag:    record.AuthTag,
	}, accountID)
	if err != nil {
		return nil, err
	}
	defer keys.Zeroize(keyBytes)

	key, err := keys.PrivateKeyFromBytes(keyBytes)
	if err != nil {
		return nil, err
	}
	defer keys.ZeroizeKey(key)

	return s.orch.Execute(ctx, key, req)
}

// loadWallet fetches the account's custody record, rejecting missing
// and corrupted records before any key material is touched.
func (s *Service) loadWallet(ctx context.Context, accountID string) (*types.WalletRecord, error) {
	record, err := s.wallets.GetWallet(ctx, accountID)
	if err != nil {
		logger.Error(ctx, "wallet lookup failed", "account", logger.MaskAccountID(accountID), "error", err)
		return nil, apperrors.ErrInternalError
	}
	if record == nil {
		return nil, apperrors.ErrWalletNotFound
	}
	if record.Corrupted() {
		return nil, apperrors.ErrWalletCorrupted
	}
	return record, nil
}

func (s *Service) openSession(accountID string, kind types.SessionKind, amount, token string) {
	s.sessions.Set(accountID, kind, amount, token)
}

func (s *Service) clearSession(accountID string) {
	s.sessions.Clear(accountID)
}
