package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"

	"ema-bracket-bot/api"
	"ema-bracket-bot/backtest"
	"ema-bracket-bot/config"
	"ema-bracket-bot/daemon"
	"ema-bracket-bot/internal/utils"
	"ema-bracket-bot/logging"
	"ema-bracket-bot/status"
	"ema-bracket-bot/strategy"
	"ema-bracket-bot/types"
	"ema-bracket-bot/websocket"
)

var (
	cfg    *config.Config
	logger *logging.Logger
)

// Initialize logging with the provided configuration
func initLogging() error {
	level := logging.LogLevel(cfg.LogLevel)
	if cfg.Debug {
		level = logging.DEBUG
	}

	var err error
	logger, err = logging.NewLogger(
		cfg.LogFile,
		cfg.LogMaxSize,
		cfg.LogMaxBackups,
		cfg.LogMaxAge,
		cfg.LogCompress,
		level,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func main() {
	cfg = config.LoadConfig()

	daemonStart := flag.Bool("start-daemon", false, "Start the application as a daemon")
	daemonStop := flag.Bool("stop-daemon", false, "Stop the daemon process")
	daemonRestart := flag.Bool("restart-daemon", false, "Restart the daemon process")
	backtestFile := flag.String("backtest", "", "Replay a CSV bar file instead of trading live")
	debugFlag := flag.Bool("debug", false, "enable debug logs")
	flag.Parse()
	cfg.Debug = *debugFlag

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if *daemonStop {
		if err := daemon.StopDaemon(); err != nil {
			log.Fatalf("Failed to stop daemon: %v", err)
		}
		return
	}
	if *daemonStart || *daemonRestart {
		args := []string{}
		for _, arg := range os.Args[1:] {
			if arg != "-start-daemon" && arg != "-restart-daemon" {
				args = append(args, arg)
			}
		}
		var err error
		if *daemonRestart {
			err = daemon.RestartDaemon(args)
		} else {
			err = daemon.StartDaemon(args)
		}
		if err != nil {
			log.Fatalf("Daemon command failed: %v", err)
		}
		return
	}

	if err := initLogging(); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	logger.Info("Application starting, symbol %s interval %s", cfg.Symbol, cfg.Interval)
	if daemon.IsDaemon() {
		logger.Info("Running detached with PID %d", os.Getpid())
	}

	if *backtestFile != "" {
		runBacktest(*backtestFile)
		return
	}
	runLive()
}

// runBacktest replays a CSV bar file through the strategy against the
// paper broker and prints the summary.
func runBacktest(path string) {
	bars, err := backtest.LoadBarsCSV(path, cfg.Symbol)
	if err != nil {
		logger.Fatal("Failed to load bars: %v", err)
	}
	logger.Info("Loaded %d bars from %s", len(bars), path)

	info := backtestInstrument()
	runner, err := backtest.NewRunner(cfg, logger, info)
	if err != nil {
		logger.Fatal("Failed to build backtest runner: %v", err)
	}

	report, err := runner.Run(bars)
	if err != nil {
		logger.Fatal("Backtest failed: %v", err)
	}
	logger.Info("Backtest complete: %s", report)
	fmt.Println(report)
}

// backtestInstrument fetches live instrument metadata when credentials are
// configured and falls back to a five-decimal FX default otherwise.
func backtestInstrument() *types.InstrumentInfo {
	if cfg.APIKey != "" {
		client := api.NewRESTClient(cfg, logger)
		if info, err := client.GetInstrumentInfo(cfg.Symbol); err == nil {
			return info
		}
		logger.Warning("Instrument lookup failed, using default precision")
	}
	tick := decimal.RequireFromString("0.00001")
	return &types.InstrumentInfo{
		Symbol:         cfg.Symbol,
		QuoteCurrency:  cfg.AccountCurrency,
		TickSize:       tick,
		PricePrecision: utils.PrecisionFromTick(tick),
		MinQty:         1,
		QtyStep:        1,
	}
}

func runLive() {
	client := api.NewRESTClient(cfg, logger)

	// Fail fast on bad credentials before subscribing to anything.
	if _, err := client.FreeEquity(); err != nil {
		logger.Fatal("API authentication failed: %v", err)
	}
	logger.Info("API connection established")

	trader, err := strategy.NewTrader(cfg, logger, client, client, client)
	if err != nil {
		logger.Fatal("Failed to build strategy: %v", err)
	}
	if err := trader.OnStart(); err != nil {
		logger.Fatal("Strategy start failed: %v", err)
	}

	warmLimit := cfg.SlowEMAPeriod + cfg.ATRPeriod + 1
	if bars, err := client.GetRecentBars(cfg.Symbol, cfg.Interval, warmLimit); err != nil {
		logger.Warning("Historical warm-up unavailable: %v", err)
	} else {
		trader.WarmUp(bars)
	}

	hub := websocket.NewHub(cfg, logger)
	if err := hub.Connect(); err != nil {
		logger.Fatal("Public WS dial: %v", err)
	}
	hub.StartPingTicker()
	go hub.Run()

	statusServer := status.StartServer(cfg, trader, logger)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case quote := <-hub.Quotes():
			trader.OnQuoteTick(quote)
		case bar := <-hub.Bars():
			logger.Debug("Closed bar %s: O=%s H=%s L=%s C=%s",
				bar.Timestamp, bar.Open, bar.High, bar.Low, bar.Close)
			trader.OnBar(bar)
		case sig := <-signals:
			logger.Info("Received signal %s, shutting down gracefully...", sig)
			trader.OnStop()
			hub.Close()
			if statusServer != nil {
				statusServer.Close()
			}
			if err := logger.Sync(); err != nil {
				logger.Error("Error syncing logger: %v", err)
			}
			trader.OnDispose()
			return
		}
	}
}
