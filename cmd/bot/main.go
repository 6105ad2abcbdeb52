package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/delta_neutral/internal/config"
	"github.com/eddiefleurent/delta_neutral/internal/strategy"
)

// expiryPattern matches exchange expiry codes such as 21APR25
var expiryPattern = regexp.MustCompile(`^\d{2}[A-Z]{3}\d{2}$`)

// liveConfirmDelay gives an operator time to abort a live start
var liveConfirmDelay = 10 * time.Second

func validateExpiry(expiry string) error {
	if expiry == "" {
		return errors.New("--expiry is required (e.g. 21APR25)")
	}
	if !expiryPattern.MatchString(expiry) {
		return fmt.Errorf("invalid --expiry %q: want DDMMMYY such as 21APR25", expiry)
	}
	return nil
}

func main() {
	var expiry string
	flag.StringVar(&expiry, "expiry", "", "Option expiry to trade, DDMMMYY (e.g. 21APR25)")
	flag.Parse()

	if err := validateExpiry(expiry); err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	configPath := os.Getenv("BOT_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	err = run(cfg, expiry, logger)
	if err != nil {
		logger.WithError(err).Error("Bot stopped with error")
	} else {
		logger.Info("Bot stopped successfully")
	}
	closeLog()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, expiry string, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.WithFields(logrus.Fields{
		"mode":       cfg.Environment.Mode,
		"provider":   cfg.Exchange.Provider,
		"base_asset": cfg.Exchange.BaseAsset,
		"expiry":     expiry,
	}).Info("Starting delta-neutral bot")

	if cfg.IsPaperTrading() {
		logger.Info("PAPER TRADING MODE - orders are simulated")
	} else {
		logger.Warnf("LIVE TRADING MODE - real money at risk! Starting in %s", liveConfirmDelay)
		if err := strategy.ContextSleep(ctx, liveConfirmDelay); err != nil {
			return nil
		}
	}

	exchange, err := buildExchange(cfg, logger)
	if err != nil {
		return err
	}

	b, err := newBot(cfg, expiry, exchange, logger)
	if err != nil {
		return err
	}
	defer b.close()

	err = b.run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("Shutdown signal received")
		return nil
	}
	return err
}
