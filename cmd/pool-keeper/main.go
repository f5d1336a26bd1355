package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"mmkeeper/internal/feed"
	"mmkeeper/internal/lifecycle"
	"mmkeeper/internal/liquidity"
	"mmkeeper/internal/obs"
	"mmkeeper/internal/venue/uniswap"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const uniswapV1Factory = "0xc0a47dFe034B400B47bDaD5FecDa2621de6c4d95"

func main() {
	envFile := flag.String("env-file", "", "Path to a .env file (default: ./.env if present)")
	rpcURL := flag.String("rpc-url", "", "Ethereum JSON-RPC endpoint (default: $ETH_RPC_URL)")
	keyFile := flag.String("eth-key", "", "Keystore file or hex private key (default: $ETH_PRIVATE_KEY)")
	passFile := flag.String("eth-password-file", "", "Keystore password file")
	tokenAddr := flag.String("token-address", "", "ERC20 token traded against ETH")
	exchangeAddr := flag.String("exchange-address", "", "Uniswap exchange of the token (default: resolved via factory)")
	factoryAddr := flag.String("factory-address", uniswapV1Factory, "Uniswap v1 factory")
	approve := flag.Bool("approve", true, "Approve the exchange to spend the token at startup")
	priceFeed := flag.String("price-feed", "", "Reference price: fixed:<price> or a ws:// URL")
	priceFeedExpiry := flag.Duration("price-feed-expiry", 2*time.Minute, "Maximum age of a price")
	percentage := flag.String("percentage", "1", "Allowed drift between reference and pool price, in percent")
	confirmTimeout := flag.Duration("confirm-timeout", 10*time.Minute, "Maximum wait for a transaction receipt")
	tickEvery := flag.Duration("tick-interval", time.Second, "Rebalancing tick interval")
	initialDelay := flag.Duration("initial-delay", 5*time.Second, "Delay before the first tick")
	statusAddr := flag.String("status-addr", "", "Listen address of the status server (optional)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	logPath := flag.String("log-path", "", "Also write logs to this file")
	pyroscopeAddr := flag.String("pyroscope-addr", "", "Pyroscope server address (optional)")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Fatalf("load env file failed: %v", err)
		}
	} else {
		_ = godotenv.Load()
	}

	logger, err := obs.NewLogger(*debug, *logPath)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	stopProfiler, err := obs.StartProfiler("mmkeeper.pool-keeper", *pyroscopeAddr, logger)
	if err != nil {
		log.Fatalf("pyroscope start failed: %v", err)
	}
	defer stopProfiler()

	rpc := firstNonEmpty(*rpcURL, os.Getenv("ETH_RPC_URL"))
	if rpc == "" {
		log.Fatalf("--rpc-url is required")
	}
	if !common.IsHexAddress(*tokenAddr) {
		log.Fatalf("--token-address is not a valid address: %q", *tokenAddr)
	}

	pct, err := decimal.NewFromString(*percentage)
	if err != nil {
		log.Fatalf("--percentage: %v", err)
	}

	key, err := uniswap.LoadKey(firstNonEmpty(*keyFile, os.Getenv("ETH_PRIVATE_KEY")), *passFile)
	if err != nil {
		log.Fatalf("load key failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := obs.NewMetrics()

	price, priceWS, err := feed.ParsePriceSource(*priceFeed, *priceFeedExpiry, logger)
	if err != nil {
		log.Fatalf("price feed: %v", err)
	}
	if priceWS != nil {
		go priceWS.Run(ctx)
	}

	opt := uniswap.Option{
		Token:   common.HexToAddress(*tokenAddr),
		Factory: common.HexToAddress(*factoryAddr),
	}
	if *exchangeAddr != "" {
		opt.Exchange = common.HexToAddress(*exchangeAddr)
	}

	pool, err := uniswap.Dial(ctx, rpc, key, opt, logger)
	if err != nil {
		log.Fatalf("pool init failed: %v", err)
	}

	cfg := liquidity.DefaultConfig()
	cfg.Percentage = pct
	cfg.ConfirmTimeout = *confirmTimeout

	rebalancer, err := liquidity.NewRebalancer(pool, price, cfg, logger, metrics)
	if err != nil {
		log.Fatalf("rebalancer init failed: %v", err)
	}

	if *statusAddr != "" {
		go obs.NewStatusServer(*statusAddr, metrics, logger).Run(ctx)
	}

	lc := lifecycle.New(logger).
		InitialDelay(*initialDelay).
		Every(*tickEvery, func(ctx context.Context) error {
			_, _, err := rebalancer.Tick(ctx)
			return err
		})
	if *approve {
		lc.OnStartup(pool.EnsureAllowance)
	}

	if err := lc.Run(ctx); err != nil {
		log.Fatalf("pool keeper stopped: %v", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
