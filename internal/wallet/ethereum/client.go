package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/biodigitss-hash/CEXMasterP/internal/wallet"
)

const (
	nativeDecimals = 18

	defaultGasLimit      = 21_000
	defaultTokenGasLimit = 80_000
)

var (
	erc20BalanceOfSelector = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
	erc20TransferSelector  = crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]
)

// Token describes an ERC-20 asset the wallet can hold. An empty Contract
// means the chain's native coin.
type Token struct {
	Contract string
	Decimals int32
}

// Options configures an Ethereum wallet client.
type Options struct {
	RPCURL     string
	PrivateKey string // hex, with or without 0x prefix
	ChainID    int64  // zero queries the node
	Tokens     map[string]Token

	GasLimit      uint64 // native transfers, default 21000
	TokenGasLimit uint64 // ERC-20 transfers, default 80000
}

// Client signs and broadcasts transfers from a single key over JSON-RPC.
type Client struct {
	eth     *ethclient.Client
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	tokens  map[string]Token

	gasLimit      uint64
	tokenGasLimit uint64

	// signMu serializes nonce fetch, signing and broadcast so concurrent
	// transfers cannot reuse a nonce.
	signMu sync.Mutex
}

// NewClient dials the RPC endpoint and derives the wallet address from the
// private key.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if opts.RPCURL == "" {
		return nil, fmt.Errorf("rpc url required")
	}
	if opts.PrivateKey == "" {
		return nil, fmt.Errorf("private key required")
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(opts.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	eth, err := ethclient.DialContext(ctx, opts.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", opts.RPCURL, err)
	}

	chainID := big.NewInt(opts.ChainID)
	if opts.ChainID == 0 {
		chainID, err = eth.ChainID(ctx)
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("query chain id: %w", err)
		}
	}

	gasLimit := opts.GasLimit
	if gasLimit == 0 {
		gasLimit = defaultGasLimit
	}
	tokenGasLimit := opts.TokenGasLimit
	if tokenGasLimit == 0 {
		tokenGasLimit = defaultTokenGasLimit
	}

	tokens := make(map[string]Token, len(opts.Tokens))
	for symbol, tok := range opts.Tokens {
		tokens[strings.ToUpper(symbol)] = tok
	}

	return &Client{
		eth:           eth,
		key:           key,
		address:       crypto.PubkeyToAddress(key.PublicKey),
		chainID:       chainID,
		tokens:        tokens,
		gasLimit:      gasLimit,
		tokenGasLimit: tokenGasLimit,
	}, nil
}

// Verify interface compliance at compile time.
var _ wallet.Client = (*Client)(nil)

// Close releases the RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// Address returns the wallet's receive address.
func (c *Client) Address() string {
	return c.address.Hex()
}

// Balance reads the spendable balance for an asset. Native coin balances
// come from BalanceAt, ERC-20 balances from a balanceOf call.
func (c *Client) Balance(ctx context.Context, asset string) (decimal.Decimal, error) {
	tok, err := c.token(asset)
	if err != nil {
		return decimal.Zero, err
	}

	if tok.Contract == "" {
		wei, err := c.eth.BalanceAt(ctx, c.address, nil)
		if err != nil {
			return decimal.Zero, fmt.Errorf("balance of %s: %w", asset, err)
		}
		return fromUnits(wei, nativeDecimals), nil
	}

	contract := common.HexToAddress(tok.Contract)
	data := make([]byte, 0, 4+32)
	data = append(data, erc20BalanceOfSelector...)
	data = append(data, common.LeftPadBytes(c.address.Bytes(), 32)...)

	out, err := c.eth.CallContract(ctx, geth.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balanceOf %s: %w", asset, err)
	}
	if len(out) == 0 {
		return decimal.Zero, fmt.Errorf("balanceOf %s: empty result", asset)
	}
	return fromUnits(new(big.Int).SetBytes(out), tok.Decimals), nil
}

// Transfer signs and broadcasts a transfer, returning the tx hash.
func (c *Client) Transfer(ctx context.Context, req wallet.TransferRequest) (string, error) {
	tok, err := c.token(req.Asset)
	if err != nil {
		return "", err
	}
	if !req.Amount.IsPositive() {
		return "", fmt.Errorf("transfer amount must be positive, got %s", req.Amount)
	}
	if !common.IsHexAddress(req.To) {
		return "", fmt.Errorf("invalid destination address %q", req.To)
	}
	to := common.HexToAddress(req.To)

	c.signMu.Lock()
	defer c.signMu.Unlock()

	nonce, err := c.eth.PendingNonceAt(ctx, c.address)
	if err != nil {
		return "", fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}

	var tx *types.Transaction
	if tok.Contract == "" {
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      c.gasLimit,
			To:       &to,
			Value:    toUnits(req.Amount, nativeDecimals),
		})
	} else {
		contract := common.HexToAddress(tok.Contract)
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      c.tokenGasLimit,
			To:       &contract,
			Value:    big.NewInt(0),
			Data:     erc20TransferData(to, toUnits(req.Amount, tok.Decimals)),
		})
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return "", fmt.Errorf("sign tx: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("broadcast tx: %w", err)
	}
	return signed.Hash().Hex(), nil
}

// Confirmations counts the blocks sealed on top of the transaction's block,
// inclusive. A tx mined in the head block has one confirmation.
func (c *Client) Confirmations(ctx context.Context, txHash string) (int64, error) {
	receipt, err := c.eth.TransactionReceipt(ctx, common.HexToHash(txHash))
	if errors.Is(err, geth.NotFound) {
		return 0, wallet.ErrTxNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("receipt %s: %w", txHash, err)
	}

	head, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("block number: %w", err)
	}

	mined := receipt.BlockNumber.Uint64()
	if head < mined {
		return 0, nil
	}
	return int64(head-mined) + 1, nil
}

func (c *Client) token(asset string) (Token, error) {
	tok, ok := c.tokens[strings.ToUpper(asset)]
	if !ok {
		return Token{}, fmt.Errorf("asset %s not configured for this wallet", asset)
	}
	return tok, nil
}

// erc20TransferData encodes a transfer(address,uint256) call.
func erc20TransferData(to common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 4+32+32)
	data = append(data, erc20TransferSelector...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return data
}

// toUnits converts a decimal amount to the token's smallest unit,
// truncating any precision below one unit.
func toUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).BigInt()
}

// fromUnits converts the token's smallest unit back to a decimal amount.
func fromUnits(units *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(units, -decimals)
}
