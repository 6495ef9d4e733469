// Package eth implements the chain client on top of go-ethereum:
// contract reads via eth_call and EIP-1559 transaction submission with
// receipt polling.
package eth

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/lendchat/lendchat/internal/logger"
	"github.com/lendchat/lendchat/internal/market"
	"github.com/lendchat/lendchat/internal/metrics"
	apperrors "github.com/lendchat/lendchat/pkg/errors"
)

const (
	receiptPollInterval = 2 * time.Second
	gasBufferPercent    = 20
)

const erc20ABIJSON = `[
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"transfer","type":"function","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const cometABIJSON = `[
	{"name":"supply","type":"function","stateMutability":"nonpayable","inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"name":"withdraw","type":"function","stateMutability":"nonpayable","inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"getUtilization","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"getSupplyRate","type":"function","stateMutability":"view","inputs":[{"name":"utilization","type":"uint256"}],"outputs":[{"name":"","type":"uint64"}]}
]`

const wethABIJSON = `[
	{"name":"deposit","type":"function","stateMutability":"payable","inputs":[],"outputs":[]}
]`

// Client talks to one EVM endpoint. The chain ID is detected at dial
// time and reused for every signature.
type Client struct {
	eth      *ethclient.Client
	chainID  *big.Int
	comet    common.Address
	erc20ABI abi.ABI
	cometABI abi.ABI
	wethABI  abi.ABI
}

// NewClient dials the RPC endpoint and detects the chain ID.
func NewClient(ctx context.Context, rpcURL string, comet common.Address) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("detect chain id: %w", err)
	}

	erc20ABI, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	cometABI, err := abi.JSON(strings.NewReader(cometABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse comet abi: %w", err)
	}
	wethABI, err := abi.JSON(strings.NewReader(wethABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse weth abi: %w", err)
	}

	logger.Info(ctx, "chain client ready", "chain_id", chainID.String(), "market", comet.Hex())
	return &Client{
		eth:      eth,
		chainID:  chainID,
		comet:    comet,
		erc20ABI: erc20ABI,
		cometABI: cometABI,
		wethABI:  wethABI,
	}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// ChainID returns the connected network's chain ID.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// NativeBalance reads the native coin balance of an address.
func (c *Client) NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	balance, err := c.eth.BalanceAt(ctx, addr, nil)
	metrics.ObserveChainCall("native_balance", err)
	if err != nil {
		return nil, fmt.Errorf("native balance: %w", err)
	}
	return balance, nil
}

// TokenBalance reads an ERC20 balance.
func (c *Client) TokenBalance(ctx context.Context, token, addr common.Address) (*big.Int, error) {
	out, err := c.call(ctx, token, c.erc20ABI, "balanceOf", addr)
	metrics.ObserveChainCall("token_balance", err)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// TokenDecimals reads an ERC20's precision from the contract.
func (c *Client) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	out, err := c.call(ctx, token, c.erc20ABI, "decimals")
	metrics.ObserveChainCall("decimals", err)
	if err != nil {
		return 0, err
	}
	return out[0].(uint8), nil
}

// Allowance reads the spender allowance granted by owner on token.
func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	out, err := c.call(ctx, token, c.erc20ABI, "allowance", owner, spender)
	metrics.ObserveChainCall("allowance", err)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// MarketBalance reads the account's supplied base-asset balance in the
// lending market.
func (c *Client) MarketBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	out, err := c.call(ctx, c.comet, c.cometABI, "balanceOf", account)
	metrics.ObserveChainCall("market_balance", err)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// MarketRates reads the market's current utilization and the supply
// rate at that utilization. The rate is per second, scaled by 1e18.
func (c *Client) MarketRates(ctx context.Context) (utilization *big.Int, supplyRate uint64, err error) {
	out, err := c.call(ctx, c.comet, c.cometABI, "getUtilization")
	metrics.ObserveChainCall("utilization", err)
	if err != nil {
		return nil, 0, err
	}
	utilization = out[0].(*big.Int)

	out, err = c.call(ctx, c.comet, c.cometABI, "getSupplyRate", utilization)
	metrics.ObserveChainCall("supply_rate", err)
	if err != nil {
		return nil, 0, err
	}
	return utilization, out[0].(uint64), nil
}

// SubmitApproval submits an ERC20 approve for the spender.
func (c *Client) SubmitApproval(ctx context.Context, key *ecdsa.PrivateKey, token, spender common.Address, amount *big.Int) (market.PendingTx, error) {
	data, err := c.erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return market.PendingTx{}, fmt.Errorf("pack approve: %w", err)
	}
	return c.submit(ctx, "approve", key, token, nil, data)
}

// SubmitTransfer submits an ERC20 transfer.
func (c *Client) SubmitTransfer(ctx context.Context, key *ecdsa.PrivateKey, token, to common.Address, amount *big.Int) (market.PendingTx, error) {
	data, err := c.erc20ABI.Pack("transfer", to, amount)
	if err != nil {
		return market.PendingTx{}, fmt.Errorf("pack transfer: %w", err)
	}
	return c.submit(ctx, "transfer", key, token, nil, data)
}

// SubmitNativeTransfer submits a plain value transfer.
func (c *Client) SubmitNativeTransfer(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, amount *big.Int) (market.PendingTx, error) {
	return c.submit(ctx, "native_transfer", key, to, amount, nil)
}

// SubmitWrap deposits native coin into the wrapped token contract.
func (c *Client) SubmitWrap(ctx context.Context, key *ecdsa.PrivateKey, weth common.Address, amount *big.Int) (market.PendingTx, error) {
	data, err := c.wethABI.Pack("deposit")
	if err != nil {
		return market.PendingTx{}, fmt.Errorf("pack deposit: %w", err)
	}
	return c.submit(ctx, "wrap", key, weth, amount, data)
}

// SubmitMarketSupply submits a supply call to the lending market.
func (c *Client) SubmitMarketSupply(ctx context.Context, key *ecdsa.PrivateKey, token common.Address, amount *big.Int) (market.PendingTx, error) {
	data, err := c.cometABI.Pack("supply", token, amount)
	if err != nil {
		return market.PendingTx{}, fmt.Errorf("pack supply: %w", err)
	}
	return c.submit(ctx, "supply", key, c.comet, nil, data)
}

// SubmitMarketWithdraw submits a withdraw call to the lending market.
func (c *Client) SubmitMarketWithdraw(ctx context.Context, key *ecdsa.PrivateKey, token common.Address, amount *big.Int) (market.PendingTx, error) {
	data, err := c.cometABI.Pack("withdraw", token, amount)
	if err != nil {
		return market.PendingTx{}, fmt.Errorf("pack withdraw: %w", err)
	}
	return c.submit(ctx, "withdraw", key, c.comet, nil, data)
}

// Await polls for the transaction receipt until the context expires.
// A receipt with a failed status is a call failure, not a timeout.
func (c *Client) Await(ctx context.Context, tx market.PendingTx) (string, error) {
	hash := common.HexToHash(tx.Hash)
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			metrics.ObserveChainCall("await", nil)
			if receipt.Status != ethtypes.ReceiptStatusSuccessful {
				return "", apperrors.CallFailed(fmt.Sprintf("transaction %s reverted", tx.Hash))
			}
			return tx.Hash, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			metrics.ObserveChainCall("await", err)
			return "", fmt.Errorf("fetch receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			metrics.ObserveChainCall("await", ctx.Err())
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// call runs a read-only eth_call and unpacks the result.
func (c *Client) call(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	out, err := contractABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

// submit signs and broadcasts one EIP-1559 transaction.
func (c *Client) submit(ctx context.Context, op string, key *ecdsa.PrivateKey, to common.Address, value *big.Int, data []byte) (market.PendingTx, error) {
	signed, err := c.buildAndSign(ctx, key, to, value, data)
	if err != nil {
		metrics.ObserveChainCall(op, err)
		return market.PendingTx{}, err
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		metrics.ObserveChainCall(op, err)
		return market.PendingTx{}, fmt.Errorf("send transaction: %w", err)
	}

	metrics.ObserveChainCall(op, nil)
	logger.Debug(ctx, "transaction submitted", "op", op, "tx", signed.Hash().Hex())
	return market.PendingTx{Hash: signed.Hash().Hex()}, nil
}

func (c *Client) buildAndSign(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, value *big.Int, data []byte) (*ethtypes.Transaction, error) {
	from := crypto.PubkeyToAddress(key.PublicKey)

	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("fetch nonce: %w", err)
	}

	tipCap, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest tip: %w", err)
	}

	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch head: %w", err)
	}
	// feeCap = 2*baseFee + tip survives consecutive full blocks.
	feeCap := new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tipCap)

	if value == nil {
		value = new(big.Int)
	}
	gas, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	gas += gas * gasBufferPercent / 100

	tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      data,
	})

	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(c.chainID), key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signed, nil
}
