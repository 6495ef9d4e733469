package bot

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lendchat/lendchat/internal/keys"
	"github.com/lendchat/lendchat/internal/logger"
	"github.com/lendchat/lendchat/internal/market"
	"github.com/lendchat/lendchat/internal/storage"
	apperrors "github.com/lendchat/lendchat/pkg/errors"
	"github.com/lendchat/lendchat/pkg/types"
)

const secondsPerYear = 31536000

const helpText = `*LendChat Wallet*

*create* - create a new wallet
*import <phrase>* - restore a wallet from its recovery phrase
*wallet* - show your address
*deposit* - how to fund your wallet
*balance* - wallet and market balances
*markets* - current lending rates
*supply <amount> <token>* - lend to the market
*withdraw <amount> <token>* - take funds out of the market
*send <amount> <token>* - transfer from your wallet

Reply *cancel* at any prompt to abort.`

func (s *Service) handleHelp() string {
	return helpText
}

func (s *Service) handleUnknown(command string) string {
	return fmt.Sprintf("I don't know *%s*. Send *help* to see what I can do.", command)
}

// handleCreate derives a fresh wallet, encrypts it and stores the
// custody record. The mnemonic appears in this one reply and nowhere
// else.
func (s *Service) handleCreate(ctx context.Context, accountID string) (string, error) {
	existing, err := s.wallets.GetWallet(ctx, accountID)
	if err != nil {
		logger.Error(ctx, "wallet lookup failed", "account", logger.MaskAccountID(accountID), "error", err)
		return "", apperrors.ErrInternalError
	}
	if existing != nil {
		return "", apperrors.ErrWalletExists
	}

	wallet, err := keys.DeriveNewWallet()
	if err != nil {
		return "", err
	}
	defer keys.Zeroize(wallet.PrivateKey)

	if err := s.storeWallet(ctx, accountID, wallet); err != nil {
		return "", err
	}

	logger.Info(ctx, "wallet created",
		"account", logger.MaskAccountID(accountID), "address", logger.MaskAddress(wallet.Address.Hex()))
	return fmt.Sprintf(
		"Your wallet is ready.\n\nAddress:\n`%s`\n\nRecovery phrase (shown only once, write it down and keep it offline):\n\n`%s`\n\nDelete this message once you've saved the phrase.",
		wallet.Address.Hex(), wallet.Mnemonic,
	), nil
}

// handleImport restores a wallet from a recovery phrase. 12 and
// 24 word phrases are both accepted; the checksum decides validity.
func (s *Service) handleImport(ctx context.Context, accountID string, args []string) (string, error) {
	if len(args) == 0 {
		return "Send *import* followed by your recovery phrase, for example:\n\n*import word1 word2 ... word12*", nil
	}

	existing, err := s.wallets.GetWallet(ctx, accountID)
	if err != nil {
		logger.Error(ctx, "wallet lookup failed", "account", logger.MaskAccountID(accountID), "error", err)
		return "", apperrors.ErrInternalError
	}
	if existing != nil {
		return "", apperrors.ErrWalletExists
	}

	mnemonic := strings.ToLower(strings.Join(args, " "))
	wallet, err := keys.ImportWallet(mnemonic)
	if err != nil {
		return "", err
	}
	defer keys.Zeroize(wallet.PrivateKey)

	if err := s.storeWallet(ctx, accountID, wallet); err != nil {
		return "", err
	}

	logger.Info(ctx, "wallet imported",
		"account", logger.MaskAccountID(accountID), "address", logger.MaskAddress(wallet.Address.Hex()))
	return fmt.Sprintf(
		"Wallet restored.\n\nAddress:\n`%s`\n\nDelete your message containing the phrase now.",
		wallet.Address.Hex(),
	), nil
}

func (s *Service) storeWallet(ctx context.Context, accountID string, wallet *keys.DerivedWallet) error {
	secret, err := s.cipher.EncryptSecret(accountID, wallet.PrivateKey)
	if err != nil {
		return err
	}

	err = s.wallets.SaveWallet(ctx, &types.WalletRecord{
		AccountID:  accountID,
		Address:    wallet.Address.Hex(),
		Ciphertext: secret.Ciphertext,
		Salt:       secret.Salt,
		IV:         secret.IV,
		AuthTag:    secret.AuthTag,
		CreatedAt:  time.Now(),
	})
	if errors.Is(err, storage.ErrWalletExists) {
		return apperrors.ErrWalletExists
	}
	if err != nil {
		logger.Error(ctx, "wallet save failed", "account", logger.MaskAccountID(accountID), "error", err)
		return apperrors.ErrInternalError
	}
	return nil
}

func (s *Service) handleWallet(ctx context.Context, accountID string) (string, error) {
	record, err := s.loadWallet(ctx, accountID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Your wallet address:\n`%s`", record.Address), nil
}

func (s *Service) handleDeposit(ctx context.Context, accountID string) (string, error) {
	record, err := s.loadWallet(ctx, accountID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"Send ETH, USDC or WETH to your wallet address:\n\n`%s`\n\nOnce the transfer confirms, *balance* will show it.",
		record.Address,
	), nil
}

// handleBalance reads the wallet's native and token balances plus the
// amount supplied to the market, all freshly from the chain.
func (s *Service) handleBalance(ctx context.Context, accountID string) (string, error) {
	record, err := s.loadWallet(ctx, accountID)
	if err != nil {
		return "", err
	}
	addr := common.HexToAddress(record.Address)

	var lines []string
	registry := s.orch.Registry()
	for _, symbol := range registry.SupportedForTransfer() {
		tok, _ := registry.Resolve(symbol)

		var balance *big.Int
		var decimals uint8
		if tok.Native {
			decimals = market.NativeDecimals
			balance, err = s.read(ctx, func(callCtx context.Context) (*big.Int, error) {
				return s.reader.NativeBalance(callCtx, addr)
			})
		} else {
			decimals, err = s.tokenDecimals(ctx, tok.Address)
			if err == nil {
				balance, err = s.read(ctx, func(callCtx context.Context) (*big.Int, error) {
					return s.reader.TokenBalance(callCtx, tok.Address, addr)
				})
			}
		}
		if err != nil {
			return "", err
		}
		lines = append(lines, fmt.Sprintf("%s: %s", symbol, market.FormatAmount(balance, decimals)))
	}

	supplied, err := s.read(ctx, func(callCtx context.Context) (*big.Int, error) {
		return s.reader.MarketBalance(callCtx, addr)
	})
	if err != nil {
		return "", err
	}
	base, _ := registry.Resolve("USDC")
	baseDecimals, err := s.tokenDecimals(ctx, base.Address)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(
		"*Wallet*\n%s\n\n*Lending market*\nSupplied: %s USDC",
		strings.Join(lines, "\n"),
		market.FormatAmount(supplied, baseDecimals),
	), nil
}

// handleMarkets reports the market's utilization and the supply APR
// implied by the current per-second rate.
func (s *Service) handleMarkets(ctx context.Context) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	utilization, rate, err := s.reader.MarketRates(callCtx)
	if err != nil {
		return "", chainReadErr("market rates", err)
	}

	annual := new(big.Int).Mul(new(big.Int).SetUint64(rate), big.NewInt(secondsPerYear))
	return fmt.Sprintf(
		"*USDC lending market*\nSupply APR: %s%%\nUtilization: %s%%\n\nUse *supply <amount> USDC* to start earning.",
		formatScaledPercent(annual),
		formatScaledPercent(utilization),
	), nil
}

func (s *Service) handleSupply(ctx context.Context, accountID string, args []string) (string, error) {
	if len(args) < 2 {
		return "Usage: *supply <amount> <token>*, for example *supply 25 USDC*", nil
	}
	amount, token := args[0], args[1]

	record, err := s.loadWallet(ctx, accountID)
	if err != nil {
		return "", err
	}

	outcome, err := s.execute(ctx, accountID, record, &market.Request{
		AccountID: accountID,
		Intent:    market.IntentSupply,
		Amount:    amount,
		Token:     token,
		From:      common.HexToAddress(record.Address),
	})
	if err != nil {
		return "", err
	}
	return s.renderOutcome(market.IntentSupply, amount, token, outcome), nil
}

// handleWithdraw runs immediately when a destination is given inline,
// otherwise it opens a session and asks for one.
func (s *Service) handleWithdraw(ctx context.Context, accountID string, args []string) (string, error) {
	if len(args) < 2 {
		return "Usage: *withdraw <amount> <token>*, for example *withdraw 10 USDC*", nil
	}
	amount, token := args[0], args[1]

	record, err := s.loadWallet(ctx, accountID)
	if err != nil {
		return "", err
	}

	if len(args) >= 3 {
		dest, err := resolveDestination(record, strings.Join(args[2:], " "))
		if err != nil {
			return "", err
		}
		outcome, err := s.execute(ctx, accountID, record, &market.Request{
			AccountID:   accountID,
			Intent:      market.IntentWithdraw,
			Amount:      amount,
			Token:       token,
			From:        common.HexToAddress(record.Address),
			Destination: dest,
		})
		if err != nil {
			return "", err
		}
		return s.renderOutcome(market.IntentWithdraw, amount, token, outcome), nil
	}

	s.openSession(accountID, types.SessionWithdraw, amount, token)
	return fmt.Sprintf(
		"Withdrawing %s %s. Where should it go?\n\nReply *me* to keep it in your wallet, an address to forward it, or *cancel*.",
		amount, strings.ToUpper(token),
	), nil
}

func (s *Service) handleSend(ctx context.Context, accountID string, args []string) (string, error) {
	if len(args) < 2 {
		return "Usage: *send <amount> <token>*, for example *send 5 USDC*", nil
	}
	amount, token := args[0], args[1]

	record, err := s.loadWallet(ctx, accountID)
	if err != nil {
		return "", err
	}

	if len(args) >= 3 {
		dest, err := resolveDestination(record, strings.Join(args[2:], " "))
		if err != nil {
			return "", err
		}
		outcome, err := s.execute(ctx, accountID, record, &market.Request{
			AccountID:   accountID,
			Intent:      market.IntentSend,
			Amount:      amount,
			Token:       token,
			From:        common.HexToAddress(record.Address),
			Destination: dest,
		})
		if err != nil {
			return "", err
		}
		return s.renderOutcome(market.IntentSend, amount, token, outcome), nil
	}

	s.openSession(accountID, types.SessionSend, amount, token)
	return fmt.Sprintf(
		"Sending %s %s. Reply with the destination address, or *cancel*.",
		amount, strings.ToUpper(token),
	), nil
}

// resolveDestination turns an inline destination argument into an
// address. A leading "to" is grammar, not data; "me" and "my wallet"
// mean the account's own wallet.
func resolveDestination(record *types.WalletRecord, arg string) (*common.Address, error) {
	arg = strings.TrimSpace(arg)
	if len(arg) > 3 && strings.EqualFold(arg[:3], "to ") {
		arg = strings.TrimSpace(arg[3:])
	}
	switch strings.ToLower(arg) {
	case "me", "my wallet", "mywallet":
		addr := common.HexToAddress(record.Address)
		return &addr, nil
	}
	if !common.IsHexAddress(arg) {
		return nil, apperrors.InvalidDestination(arg)
	}
	addr := common.HexToAddress(arg)
	return &addr, nil
}

func (s *Service) renderOutcome(intent market.Intent, amount, token string, outcome *types.Outcome) string {
	symbol := strings.ToUpper(token)

	var b strings.Builder
	switch intent {
	case market.IntentSupply:
		fmt.Fprintf(&b, "Supplied %s %s to the lending market.", amount, symbol)
	case market.IntentWithdraw:
		if len(outcome.TxHashes) > 1 {
			fmt.Fprintf(&b, "Withdrew %s %s and forwarded it.", amount, symbol)
		} else {
			fmt.Fprintf(&b, "Withdrew %s %s to your wallet.", amount, symbol)
		}
	case market.IntentSend:
		fmt.Fprintf(&b, "Sent %s %s.", amount, symbol)
	}

	for _, hash := range outcome.TxHashes {
		fmt.Fprintf(&b, "\n%s%s", s.explorerURL, hash)
	}
	return b.String()
}

// renderError maps the typed error taxonomy onto user-facing replies.
// Unknown errors never leak internals.
func renderError(err error) string {
	appErr, ok := apperrors.IsAppError(err)
	if !ok {
		return "Something went wrong. Please try again."
	}

	switch appErr.Code {
	case apperrors.ErrCodeWalletNotFound:
		return "You don't have a wallet yet. Send *create* to make one, or *import* to restore one."
	case apperrors.ErrCodeWalletExists:
		return "You already have a wallet. Send *wallet* to see its address."
	case apperrors.ErrCodeInvalidMnemonic:
		return "That recovery phrase isn't valid. Check the words and their order, then try again."
	case apperrors.ErrCodeWalletCorrupted:
		return "Your wallet record is damaged and can't be used. Restore it with *import* and your recovery phrase."
	case apperrors.ErrCodeAuthFailure:
		return "Your wallet key could not be unlocked. If this keeps happening, restore with *import*."
	case apperrors.ErrCodeTimeout:
		return "The network is taking too long. The transaction may still confirm; check *balance* in a minute before retrying."
	}

	msg := appErr.Message
	if appErr.Detail != "" {
		msg += " (" + appErr.Detail + ")"
	}
	return msg + "."
}

// read wraps a single balance read with the per-call timeout.
func (s *Service) read(ctx context.Context, fn func(context.Context) (*big.Int, error)) (*big.Int, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	value, err := fn(callCtx)
	if err != nil {
		return nil, chainReadErr("balance", err)
	}
	return value, nil
}

func (s *Service) tokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	decimals, err := s.reader.TokenDecimals(callCtx, token)
	if err != nil {
		return 0, chainReadErr("decimals", err)
	}
	return decimals, nil
}

func chainReadErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Timeout(op)
	}
	if appErr, ok := apperrors.IsAppError(err); ok {
		return appErr
	}
	return apperrors.CallFailed(fmt.Sprintf("%s: %v", op, err))
}

// formatScaledPercent renders an 1e18-scaled ratio as a percentage
// with two decimal places.
func formatScaledPercent(scaled *big.Int) string {
	bps := new(big.Int).Mul(scaled, big.NewInt(10000))
	bps.Quo(bps, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	return fmt.Sprintf("%d.%02d", bps.Int64()/100, bps.Int64()%100)
}
