package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ratewatch/internal/rates"
)

const (
	aggregatorABIJSON = `[{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"}]`
)

var (
	aggregatorABI abi.ABI
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABIJSON))
	if err != nil {
		panic("failed to parse aggregator ABI: " + err.Error())
	}
	aggregatorABI = parsed
}

type contractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// OnChainOptions parameterise the Chainlink price feed fetcher. Feeds maps a pair
// written "BASE/TARGET" to the aggregator contract answering TARGET per BASE.
type OnChainOptions struct {
	RPCURL  string
	Feeds   map[string]string
	Timeout time.Duration
}

// OnChain reads FX rates from price feed aggregators through Ethereum RPC.
type OnChain struct {
	opts      OnChainOptions
	feeds     map[string]common.Address
	logger    zerolog.Logger
	caller    contractCaller
	clientMux sync.Mutex
}

// NewOnChain builds an on-chain fetcher.
func NewOnChain(opts OnChainOptions, logger zerolog.Logger) *OnChain {
	feeds := make(map[string]common.Address, len(opts.Feeds))
	for pair, addr := range opts.Feeds {
		feeds[strings.ToUpper(strings.TrimSpace(pair))] = common.HexToAddress(addr)
	}
	return &OnChain{
		opts:   opts,
		feeds:  feeds,
		logger: logger.With().Str("component", "onchain_fetcher").Logger(),
	}
}

// Fetch prices target against base using the direct feed, or the inverse feed
// when only TARGET/BASE is configured.
func (o *OnChain) Fetch(ctx context.Context, base, target string) (rates.Snapshot, error) {
	base = rates.NormalizeCode(base)
	target = rates.NormalizeCode(target)

	if o.opts.RPCURL == "" && o.caller == nil {
		return rates.Snapshot{}, rates.InvalidConfig("onchain", "ethereum rpc url not configured")
	}

	snapBase, quoted := base, target
	addr, ok := o.feeds[base+"/"+target]
	if !ok {
		addr, ok = o.feeds[target+"/"+base]
		snapBase, quoted = target, base
	}
	if !ok {
		return rates.Snapshot{}, rates.MissingCurrency("onchain", target)
	}

	timeout := o.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	caller, err := o.getCaller(ctx)
	if err != nil {
		return rates.Snapshot{}, rates.NetworkError("onchain dial", err)
	}

	answer, err := o.latestAnswer(ctx, caller, addr)
	if err != nil {
		return rates.Snapshot{}, err
	}

	values := map[string]decimal.Decimal{
		snapBase: decimal.NewFromInt(1),
		quoted:   answer,
	}
	return rates.NewSnapshot("chainlink:"+addr.Hex(), snapBase, values, time.Now().UTC()), nil
}

func (o *OnChain) latestAnswer(ctx context.Context, caller contractCaller, addr common.Address) (decimal.Decimal, error) {
	decimalsOut, err := o.call(ctx, caller, addr, "decimals")
	if err != nil {
		return decimal.Decimal{}, err
	}
	places, ok := decimalsOut[0].(uint8)
	if !ok {
		return decimal.Decimal{}, rates.ParseFailure("onchain", errors.New("failed to decode decimals output"))
	}

	roundOut, err := o.call(ctx, caller, addr, "latestRoundData")
	if err != nil {
		return decimal.Decimal{}, err
	}
	if len(roundOut) != 5 {
		return decimal.Decimal{}, rates.ParseFailure("onchain", errors.New("unexpected latestRoundData response"))
	}
	answer, ok := roundOut[1].(*big.Int)
	if !ok {
		return decimal.Decimal{}, rates.ParseFailure("onchain", errors.New("failed to decode latestRoundData answer"))
	}
	if answer.Sign() <= 0 {
		return decimal.Decimal{}, rates.ParseFailure("onchain", fmt.Errorf("non-positive answer %s", answer))
	}

	return decimal.NewFromBigInt(answer, -int32(places)), nil
}

func (o *OnChain) call(ctx context.Context, caller contractCaller, addr common.Address, method string) ([]interface{}, error) {
	payload, err := aggregatorABI.Pack(method)
	if err != nil {
		return nil, rates.InvalidConfig("onchain", "pack %s: %v", method, err)
	}

	res, err := caller.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return nil, rates.NetworkError("onchain "+method, err)
	}

	outputs, err := aggregatorABI.Unpack(method, res)
	if err != nil {
		return nil, rates.ParseFailure("onchain "+method, err)
	}
	if len(outputs) == 0 {
		return nil, rates.ParseFailure("onchain "+method, errors.New("empty response"))
	}
	return outputs, nil
}

func (o *OnChain) getCaller(ctx context.Context) (contractCaller, error) {
	o.clientMux.Lock()
	defer o.clientMux.Unlock()

	if o.caller != nil {
		return o.caller, nil
	}

	client, err := ethclient.DialContext(ctx, o.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	o.caller = client
	return client, nil
}

var _ Fetcher = (*OnChain)(nil)
