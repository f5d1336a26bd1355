package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"mmkeeper/internal/adapter"
	"mmkeeper/internal/adapter/enum"
	"mmkeeper/internal/bands"
	"mmkeeper/internal/feed"
	"mmkeeper/internal/history"
	"mmkeeper/internal/keeper"
	"mmkeeper/internal/lifecycle"
	"mmkeeper/internal/obs"
	"mmkeeper/internal/ops"
	"mmkeeper/internal/order"
	"mmkeeper/internal/orderbook"
	"mmkeeper/internal/venue"
	"mmkeeper/internal/venue/kraken"
	"mmkeeper/internal/venue/sim"
	"mmkeeper/pkg/backoff"
	"mmkeeper/pkg/conn"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	envFile := flag.String("env-file", "", "Path to a .env file (default: ./.env if present)")
	venueName := flag.String("venue", "kraken", "Venue adapter: kraken or sim")
	pair := flag.String("pair", "", "Trading pair, e.g. XBTUSD")
	configPath := flag.String("config", "", "Path to the bands JSON config")
	configReload := flag.Duration("config-reload-interval", 2*time.Second, "Config reload interval (0=disable)")
	priceFeed := flag.String("price-feed", "", "Price feed: fixed:<price> or a ws:// URL")
	priceFeedExpiry := flag.Duration("price-feed-expiry", 2*time.Minute, "Maximum age of a price")
	spreadFeed := flag.String("spread-feed", "", "WebSocket URL of a spread feed (optional)")
	spreadFeedExpiry := flag.Duration("spread-feed-expiry", time.Hour, "Maximum age of a spread update")
	controlFeed := flag.String("control-feed", "", "WebSocket URL of a control feed (optional)")
	controlFeedExpiry := flag.Duration("control-feed-expiry", time.Hour, "Maximum age of a control update")
	refresh := flag.Duration("refresh-frequency", 3*time.Second, "Order book refresh interval")
	tickEvery := flag.Duration("tick-interval", time.Second, "Reconciliation tick interval")
	initialDelay := flag.Duration("initial-delay", 10*time.Second, "Delay before the first tick")
	workers := flag.Int("workers", 4, "Concurrent order submissions")
	queueCap := flag.Int("queue-cap", 256, "Pending order submission capacity")
	historyDSN := flag.String("order-history-dsn", "", "Postgres DSN for order history (optional)")
	historyEvery := flag.Duration("order-history-interval", 30*time.Second, "Order history reporting interval")
	statusAddr := flag.String("status-addr", "", "Listen address of the status server (optional)")
	krakenURL := flag.String("kraken-url", "https://api.kraken.com", "Kraken REST base URL")
	krakenKey := flag.String("kraken-api-key", "", "Kraken API key (default: $KRAKEN_API_KEY)")
	krakenSecret := flag.String("kraken-secret-key", "", "Kraken API secret (default: $KRAKEN_SECRET_KEY)")
	krakenTimeout := flag.Duration("kraken-timeout", 9500*time.Millisecond, "Kraken request timeout")
	simProfile := flag.String("sim-profile", "kraken", "Quirks of the simulated venue: kraken or etoro")
	simBalances := flag.String("sim-balances", "", "Starting balances of the simulated venue, e.g. ETH=10,DAI=2000")
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

	stopProfiler, err := obs.StartProfiler("mmkeeper.keeper", *pyroscopeAddr, logger)
	if err != nil {
		log.Fatalf("pyroscope start failed: %v", err)
	}
	defer stopProfiler()

	if *pair == "" {
		log.Fatalf("--pair is required")
	}
	if *configPath == "" {
		log.Fatalf("--config is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := obs.NewMetrics()

	reloader, err := ops.NewReloader(*configPath, *configReload, logger)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *configReload > 0 {
		go reloader.Run(ctx)
	}

	price, priceWS, err := feed.ParsePriceSource(*priceFeed, *priceFeedExpiry, logger)
	if err != nil {
		log.Fatalf("price feed: %v", err)
	}
	if priceWS != nil {
		go priceWS.Run(ctx)
	}

	spread, err := optionalFeed(ctx, *spreadFeed, *spreadFeedExpiry, logger)
	if err != nil {
		log.Fatalf("spread feed: %v", err)
	}
	control, err := optionalFeed(ctx, *controlFeed, *controlFeedExpiry, logger)
	if err != nil {
		log.Fatalf("control feed: %v", err)
	}

	v, startup, err := newVenue(*venueName, *pair, venueFlags{
		krakenURL:     *krakenURL,
		krakenKey:     firstNonEmpty(*krakenKey, os.Getenv("KRAKEN_API_KEY")),
		krakenSecret:  firstNonEmpty(*krakenSecret, os.Getenv("KRAKEN_SECRET_KEY")),
		krakenTimeout: *krakenTimeout,
		simProfile:    *simProfile,
		simBalances:   *simBalances,
	}, logger)
	if err != nil {
		log.Fatalf("venue init failed: %v", err)
	}

	pool, err := order.NewPool(*workers, *queueCap)
	if err != nil {
		log.Fatalf("order pool init failed: %v", err)
	}
	go pool.Run(ctx)

	managerOpts := []orderbook.Option{
		orderbook.WithRefreshInterval(*refresh),
		orderbook.WithMetrics(metrics),
	}
	if *historyDSN != "" {
		reporter, closeDB, err := newHistory(ctx, *historyDSN, logger)
		if err != nil {
			log.Fatalf("order history init failed: %v", err)
		}
		defer closeDB()
		managerOpts = append(managerOpts, orderbook.WithHistory(reporter, *historyEvery))
	}

	book, err := orderbook.NewManager(v, pool, logger, managerOpts...)
	if err != nil {
		log.Fatalf("order book init failed: %v", err)
	}

	bandsHistory := bands.NewHistory()
	policies := keeper.PolicyFunc(func(ctx context.Context) (keeper.Policy, error) {
		b, err := bands.Provider{
			Config:  reloader.Current,
			Spread:  spread,
			Control: control,
			History: bandsHistory,
			Logger:  logger,
		}.Current(ctx)
		if err != nil {
			return nil, err
		}
		return b, nil
	})

	k, err := keeper.New(v, book, policies, price, logger, metrics)
	if err != nil {
		log.Fatalf("keeper init failed: %v", err)
	}

	if *statusAddr != "" {
		go obs.NewStatusServer(*statusAddr, metrics, logger).Run(ctx)
	}

	lc := lifecycle.New(logger).
		InitialDelay(*initialDelay).
		OnStartup(func(ctx context.Context) error {
			if err := startup(ctx); err != nil {
				return err
			}
			go book.Run(ctx)
			if err := book.WaitForRefresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		}).
		Every(*tickEvery, k.Tick).
		OnShutdown(k.Shutdown)

	if err := lc.Run(ctx); err != nil {
		log.Fatalf("keeper stopped: %v", err)
	}
}

type venueFlags struct {
	krakenURL     string
	krakenKey     string
	krakenSecret  string
	krakenTimeout time.Duration
	simProfile    string
	simBalances   string
}

func newVenue(name, pair string, f venueFlags, logger *zap.Logger) (venue.OrderBook, lifecycle.Hook, error) {
	noop := func(context.Context) error { return nil }

	switch strings.ToLower(name) {
	case "kraken":
		client, err := kraken.NewClient(kraken.ClientOption{
			BaseURL: f.krakenURL,
			Token:   adapter.NewToken(f.krakenKey, f.krakenSecret),
			Timeout: f.krakenTimeout,
			Retries: 3,
			Backoff: backoff.Default(),
		}, &http.Client{}, logger)
		if err != nil {
			return nil, nil, err
		}

		v, err := kraken.NewVenue(client, pair)
		if err != nil {
			return nil, nil, err
		}
		return v, v.Load, nil

	case "sim":
		base, quote, ok := venue.SplitPair(pair)
		if !ok {
			return nil, nil, fmt.Errorf("cannot split pair %q", pair)
		}

		profile := venue.Profile{
			Name:                  "sim",
			Base:                  base,
			Quote:                 quote,
			SymbolCase:            enum.SymbolCaseUpper,
			PricePrecision:        8,
			BalancesIncludeLocked: true,
		}
		if strings.EqualFold(f.simProfile, "etoro") {
			profile.SymbolCase = enum.SymbolCaseLower
			profile.BalancesIncludeLocked = false
		}

		balances, err := parseBalances(f.simBalances, profile.SymbolCase)
		if err != nil {
			return nil, nil, err
		}
		return sim.New(profile, balances), noop, nil

	default:
		return nil, nil, fmt.Errorf("unknown venue %q", name)
	}
}

func parseBalances(s string, symbolCase enum.SymbolCase) (adapter.Balances, error) {
	out := adapter.Balances{}
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		currency, amount, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("balance %q: want CURRENCY=AMOUNT", item)
		}

		value, err := decimal.NewFromString(strings.TrimSpace(amount))
		if err != nil {
			return nil, fmt.Errorf("balance %q: %w", item, err)
		}
		out[symbolCase.Apply(strings.TrimSpace(currency))] = value
	}

	return out, nil
}

func optionalFeed(ctx context.Context, url string, expiry time.Duration, logger *zap.Logger) (feed.Source, error) {
	if url == "" {
		return nil, nil
	}

	ws, err := feed.NewWebSocket(url, logger)
	if err != nil {
		return nil, err
	}
	go ws.Run(ctx)

	return feed.NewExpiring(ws, expiry), nil
}

func newHistory(ctx context.Context, dsn string, logger *zap.Logger) (orderbook.Reporter, func(), error) {
	opt := conn.Option{DSN: dsn}
	client, err := conn.Open(ctx, opt)
	if err != nil {
		return nil, nil, fmt.Errorf("connect %s: %w", opt.Redacted(), err)
	}

	reporter, err := history.NewReporter(client, logger)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	if err := reporter.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	return reporter, func() { _ = client.Close() }, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
