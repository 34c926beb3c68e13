package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Psychedelic/terabethia-relayer/ledger/ic"
	"github.com/Psychedelic/terabethia-relayer/metrics"
	"github.com/Psychedelic/terabethia-relayer/txrelayer"
)

func RelayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Run the poller, sender and checker with the metrics server",
		Run:   RootAction,
	}
}

func RootAction(c *cobra.Command, _ []string) {
	a, err := newApp(c, true)
	if err != nil {
		panic(err)
	}
	logger := a.logger.Sugar()

	ctx, cancel := context.WithCancel(context.Background())
	if a.cfg.Metrics.ListenAddr != "" {
		server := metrics.NewServer(a.cfg.Metrics.ListenAddr, a.registry, a.logger)
		go func() {
			if err := server.Run(ctx); err != nil {
				logger.Errorf("Metrics server stopped, error: %v", err)
			}
		}()
	}

	relayers := []txrelayer.ITxRelayer{
		txrelayer.NewPoller(a.deps, a.cfg.Poller.Interval),
		newSenderConsumer(a),
		newCheckerConsumer(a),
	}
	for _, r := range relayers {
		r.Start()
	}
	logger.Infof("Relaying from canister %s to %s as %s", a.cfg.Source.CanisterId, a.deps.Dest.Name(), a.deps.Dest.Account())
	if source, ok := a.deps.Source.(*ic.Client); ok {
		logger.Infof("Calling the canister as %s", source.Caller())
	}

	addInterruptHandler(func() {
		for _, r := range relayers {
			logger.Infof("Stopping %s...", r.Name())
			r.Stop()
			r.WaitForShutdown()
			logger.Infof("%s shutdown", r.Name())
		}
		cancel()
		a.Close()
	})
	<-interruptHandlersDone
	a.logger.Info("Shutdown complete")
}

func newSenderConsumer(a *app) *txrelayer.Consumer {
	sender := txrelayer.NewSender(a.deps, a.cfg.Sender)
	return txrelayer.NewConsumer("sender", a.deps.Outbound, sender.Handle, txrelayer.ConsumerConfig{
		Concurrency: a.cfg.Sender.Concurrency,
		WaitTime:    a.cfg.Queue.WaitTime,
		MaxBackoff:  a.cfg.Sender.MaxBackoff,
	}, a.deps)
}

func newCheckerConsumer(a *app) *txrelayer.Consumer {
	checker := txrelayer.NewChecker(a.deps)
	return txrelayer.NewConsumer("checker", a.deps.Check, checker.Handle, txrelayer.ConsumerConfig{
		Concurrency: a.cfg.Checker.Concurrency,
		WaitTime:    a.cfg.Queue.WaitTime,
		MaxBackoff:  a.cfg.Checker.MaxBackoff,
	}, a.deps)
}

// runUntilInterrupted runs a single stage until SIGINT or SIGTERM.
func runUntilInterrupted(a *app, r txrelayer.ITxRelayer) {
	logger := a.logger.Sugar()
	r.Start()

	addInterruptHandler(func() {
		logger.Infof("Stopping %s...", r.Name())
		r.Stop()
		r.WaitForShutdown()
		a.Close()
	})
	<-interruptHandlersDone
	logger.Infof("%s shutdown", r.Name())
}
