package market

import (
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NativeSymbol is the network's native coin, fixed at 18 decimals.
const NativeSymbol = "ETH"

// Token describes one transferable asset.
type Token struct {
	Symbol  string
	Address common.Address
	Native  bool
}

// Registry maps token symbols to addresses and records which assets
// the lending market accepts.
type Registry struct {
	tokens map[string]Token
	weth   common.Address
	// base is the market's base asset symbol (the only ERC20 the
	// market supplies/withdraws directly)
	base string
}

// NewRegistry builds the supported-token set: the native coin, the
// market base asset and the wrapped native token.
func NewRegistry(usdc, weth common.Address) *Registry {
	r := &Registry{
		tokens: make(map[string]Token),
		weth:   weth,
		base:   "USDC",
	}
	r.tokens[NativeSymbol] = Token{Symbol: NativeSymbol, Native: true}
	r.tokens["USDC"] = Token{Symbol: "USDC", Address: usdc}
	r.tokens["WETH"] = Token{Symbol: "WETH", Address: weth}
	return r
}

// Resolve looks up a token by symbol, case-insensitively.
func (r *Registry) Resolve(symbol string) (Token, bool) {
	tok, ok := r.tokens[strings.ToUpper(symbol)]
	return tok, ok
}

// WETH returns the wrapped-native token address used when the native
// coin is supplied to the market.
func (r *Registry) WETH() common.Address {
	return r.weth
}

// SupportedForTransfer lists every symbol accepted by send.
func (r *Registry) SupportedForTransfer() []string {
	symbols := make([]string, 0, len(r.tokens))
	for symbol := range r.tokens {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// SupportedForSupply reports whether the market accepts the token for
// supply. The native coin is accepted via wrapping.
func (r *Registry) SupportedForSupply(tok Token) bool {
	return tok.Native || tok.Symbol == r.base || tok.Symbol == "WETH"
}

// SupportedForWithdraw reports whether the token can be withdrawn from
// the market. The native coin cannot; it lives in the market only in
// wrapped form.
func (r *Registry) SupportedForWithdraw(tok Token) bool {
	return !tok.Native && (tok.Symbol == r.base || tok.Symbol == "WETH")
}
