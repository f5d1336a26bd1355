// Package uniswap adapts a Uniswap v1 ETH/token exchange to liquidity.Pool.
// The base token is ETH and the quote is the exchange's ERC20 token.
package uniswap

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"os"
	"strings"
	"time"

	"mmkeeper/internal/errors"
	"mmkeeper/internal/liquidity"
	"mmkeeper/pkg/exception"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	ethDecimals      = 18
	defaultDeadline  = 10 * time.Minute
	defaultPollEvery = 2 * time.Second
)

var _ liquidity.Pool = (*Pool)(nil)

// Backend is the part of an Ethereum JSON-RPC client the pool needs.
// *ethclient.Client satisfies it.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var _ Backend = (*ethclient.Client)(nil)

type Option struct {
	Token    common.Address
	Exchange common.Address
	// Factory resolves Exchange when it is not set.
	Factory   common.Address
	PollEvery time.Duration
	Deadline  time.Duration
}

type Pool struct {
	backend  Backend
	key      *ecdsa.PrivateKey
	from     common.Address
	token    common.Address
	exchange common.Address
	decimals int32
	opt      Option
	logger   *zap.Logger
}

// Dial connects to rpcURL and resolves the exchange for the token.
func Dial(ctx context.Context, rpcURL string, key *ecdsa.PrivateKey, opt Option, logger *zap.Logger) (*Pool, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", rpcURL)
	}

	return NewPool(ctx, client, key, opt, logger)
}

func NewPool(ctx context.Context, backend Backend, key *ecdsa.PrivateKey, opt Option, logger *zap.Logger) (*Pool, error) {
	if backend == nil || key == nil {
		return nil, exception.ErrNilInstance
	}

	if opt.Token == (common.Address{}) {
		return nil, errors.Wrap(exception.ErrFatalConfig, "uniswap: token address is required")
	}

	if opt.PollEvery <= 0 {
		opt.PollEvery = defaultPollEvery
	}
	if opt.Deadline <= 0 {
		opt.Deadline = defaultDeadline
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{
		backend:  backend,
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		token:    opt.Token,
		exchange: opt.Exchange,
		opt:      opt,
		logger:   logger.Named("uniswap"),
	}

	if p.exchange == (common.Address{}) {
		if opt.Factory == (common.Address{}) {
			return nil, errors.Wrap(exception.ErrFatalConfig, "uniswap: exchange or factory address is required")
		}

		var exchange common.Address
		if err := p.call(ctx, factoryABI, opt.Factory, "getExchange", &exchange, opt.Token); err != nil {
			return nil, errors.Wrap(err, "uniswap: resolve exchange")
		}
		if exchange == (common.Address{}) {
			return nil, errors.Wrapf(exception.ErrVenueUnknownPair, "uniswap: no exchange for token %s", opt.Token.Hex())
		}
		p.exchange = exchange
	}

	var decimals uint8
	if err := p.call(ctx, erc20ABI, p.token, "decimals", &decimals); err != nil {
		return nil, errors.Wrap(err, "uniswap: token decimals")
	}
	p.decimals = int32(decimals)

	p.logger.Info("pool_ready",
		zap.String("account", p.from.Hex()),
		zap.String("exchange", p.exchange.Hex()),
		zap.String("token", p.token.Hex()),
	)
	return p, nil
}

// ExchangeRate is the token reserve divided by the ETH reserve.
func (p *Pool) ExchangeRate(ctx context.Context) (decimal.Decimal, error) {
	ethReserve, err := p.backend.BalanceAt(ctx, p.exchange, nil)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "uniswap: eth reserve")
	}

	var tokenReserve *big.Int
	if err := p.call(ctx, erc20ABI, p.token, "balanceOf", &tokenReserve, p.exchange); err != nil {
		return decimal.Zero, errors.Wrap(err, "uniswap: token reserve")
	}

	eth := fromUnits(ethReserve, ethDecimals)
	if !eth.IsPositive() {
		return decimal.Zero, exception.ErrLiquidityInvalidPrice
	}

	return fromUnits(tokenReserve, p.decimals).Div(eth), nil
}

func (p *Pool) Balances(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	wei, err := p.backend.BalanceAt(ctx, p.from, nil)
	if err != nil {
		return decimal.Zero, decimal.Zero, errors.Wrap(err, "uniswap: eth balance")
	}

	var tokens *big.Int
	if err := p.call(ctx, erc20ABI, p.token, "balanceOf", &tokens, p.from); err != nil {
		return decimal.Zero, decimal.Zero, errors.Wrap(err, "uniswap: token balance")
	}

	return fromUnits(wei, ethDecimals), fromUnits(tokens, p.decimals), nil
}

func (p *Pool) Position(ctx context.Context) (decimal.Decimal, error) {
	var shares *big.Int
	if err := p.call(ctx, exchangeABI, p.exchange, "balanceOf", &shares, p.from); err != nil {
		return decimal.Zero, errors.Wrap(err, "uniswap: liquidity balance")
	}

	return fromUnits(shares, ethDecimals), nil
}

// AddLiquidity deposits amount ETH plus the matching tokens. The whole token
// balance is offered as max_tokens; the exchange takes only its proportional share.
func (p *Pool) AddLiquidity(ctx context.Context, amount, minLiquidity decimal.Decimal) (string, error) {
	var maxTokens *big.Int
	if err := p.call(ctx, erc20ABI, p.token, "balanceOf", &maxTokens, p.from); err != nil {
		return "", errors.Wrap(err, "uniswap: token balance")
	}

	data, err := exchangeABI.Pack("addLiquidity", toUnits(minLiquidity, ethDecimals), maxTokens, p.deadline())
	if err != nil {
		return "", err
	}

	return p.transact(ctx, p.exchange, toUnits(amount, ethDecimals), data)
}

// RemoveLiquidity burns shares, accepting any non-zero payout.
func (p *Pool) RemoveLiquidity(ctx context.Context, shares decimal.Decimal) (string, error) {
	if !shares.IsPositive() {
		return "", exception.ErrLiquidityNoPosition
	}

	one := big.NewInt(1)
	data, err := exchangeABI.Pack("removeLiquidity", toUnits(shares, ethDecimals), one, one, p.deadline())
	if err != nil {
		return "", err
	}

	return p.transact(ctx, p.exchange, nil, data)
}

// EnsureAllowance approves the exchange to pull the token if it cannot yet.
// It waits for the approval to be mined.
func (p *Pool) EnsureAllowance(ctx context.Context) error {
	var allowance *big.Int
	if err := p.call(ctx, erc20ABI, p.token, "allowance", &allowance, p.from, p.exchange); err != nil {
		return errors.Wrap(err, "uniswap: allowance")
	}
	if allowance.Sign() > 0 {
		return nil
	}

	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	data, err := erc20ABI.Pack("approve", p.exchange, maxUint256)
	if err != nil {
		return err
	}

	tx, err := p.transact(ctx, p.token, nil, data)
	if err != nil {
		return errors.Wrap(err, "uniswap: approve")
	}
	p.logger.Info("approving_exchange", zap.String("tx", tx))
	return p.WaitConfirmed(ctx, tx)
}

// WaitConfirmed polls for the receipt until ctx is done.
func (p *Pool) WaitConfirmed(ctx context.Context, tx string) error {
	hash := common.HexToHash(tx)
	ticker := time.NewTicker(p.opt.PollEvery)
	defer ticker.Stop()

	for {
		receipt, err := p.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return errors.Wrapf(exception.ErrLiquidityTxReverted, "tx %s", tx)
			}
			return nil
		case !errors.Is(err, ethereum.NotFound):
			p.logger.Debug("receipt_lookup_failed", zap.String("tx", tx), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Pool) transact(ctx context.Context, to common.Address, value *big.Int, data []byte) (string, error) {
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := p.backend.PendingNonceAt(ctx, p.from)
	if err != nil {
		return "", errors.Wrap(err, "uniswap: nonce")
	}

	gasPrice, err := p.backend.SuggestGasPrice(ctx)
	if err != nil {
		return "", errors.Wrap(err, "uniswap: gas price")
	}

	gas, err := p.backend.EstimateGas(ctx, ethereum.CallMsg{From: p.from, To: &to, Value: value, Data: data})
	if err != nil {
		return "", errors.Wrap(err, "uniswap: estimate gas")
	}

	chainID, err := p.backend.ChainID(ctx)
	if err != nil {
		return "", errors.Wrap(err, "uniswap: chain id")
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    value,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), p.key)
	if err != nil {
		return "", errors.Wrap(err, "uniswap: sign")
	}

	if err := p.backend.SendTransaction(ctx, signed); err != nil {
		return "", errors.Wrap(err, "uniswap: send")
	}

	return signed.Hash().Hex(), nil
}

func (p *Pool) call(ctx context.Context, contract abi.ABI, to common.Address, method string, out any, args ...any) error {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return err
	}

	raw, err := p.backend.CallContract(ctx, ethereum.CallMsg{From: p.from, To: &to, Data: data}, nil)
	if err != nil {
		return err
	}

	values, err := contract.Unpack(method, raw)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return errors.Wrapf(exception.ErrVenueResponse, "%s returned nothing", method)
	}

	return assign(out, values[0])
}

func assign(out any, v any) error {
	switch dst := out.(type) {
	case **big.Int:
		if b, ok := v.(*big.Int); ok {
			*dst = b
			return nil
		}
	case *common.Address:
		if a, ok := v.(common.Address); ok {
			*dst = a
			return nil
		}
	case *uint8:
		if u, ok := v.(uint8); ok {
			*dst = u
			return nil
		}
	}
	return errors.Wrapf(exception.ErrVenueResponse, "unexpected return type %T", v)
}

func (p *Pool) deadline() *big.Int {
	return big.NewInt(time.Now().Add(p.opt.Deadline).Unix())
}

func toUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).BigInt()
}

func fromUnits(v *big.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -decimals)
}

// LoadKey reads a private key from a keystore file and its password file, or
// from a hex string when keyFile is not a path to an existing file.
func LoadKey(keyFile, passFile string) (*ecdsa.PrivateKey, error) {
	keyJSON, err := os.ReadFile(keyFile)
	if err != nil {
		key, hexErr := crypto.HexToECDSA(strings.TrimPrefix(keyFile, "0x"))
		if hexErr != nil {
			return nil, errors.Wrap(exception.ErrFatalConfig, err.Error())
		}
		return key, nil
	}

	var password string
	if passFile != "" {
		raw, err := os.ReadFile(passFile)
		if err != nil {
			return nil, errors.Wrap(exception.ErrFatalConfig, err.Error())
		}
		password = strings.TrimRight(string(raw), "\r\n")
	}

	key, err := keystore.DecryptKey(keyJSON, password)
	if err != nil {
		return nil, errors.Wrap(exception.ErrFatalConfig, "decrypt keystore: "+err.Error())
	}

	return key.PrivateKey, nil
}
