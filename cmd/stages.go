package main

import (
	"github.com/spf13/cobra"

	"github.com/Psychedelic/terabethia-relayer/txrelayer"
)

func PollCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Move new outgoing messages from the canister onto the outbound queue",
		RunE: func(c *cobra.Command, _ []string) error {
			a, err := newApp(c, false)
			if err != nil {
				return err
			}

			poller := txrelayer.NewPoller(a.deps, a.cfg.Poller.Interval)
			if once {
				defer a.Close()
				return poller.RunOnce(c.Context())
			}
			runUntilInterrupted(a, poller)
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "poll a single time and exit")
	return cmd
}

func SendCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Submit messages from the outbound queue to the destination",
		RunE: func(c *cobra.Command, _ []string) error {
			a, err := newApp(c, true)
			if err != nil {
				return err
			}
			return runConsumer(c, a, newSenderConsumer(a), once)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "handle at most one queue entry and exit")
	return cmd
}

func CheckCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Follow submitted transactions and resubmit rejected ones",
		RunE: func(c *cobra.Command, _ []string) error {
			a, err := newApp(c, true)
			if err != nil {
				return err
			}
			return runConsumer(c, a, newCheckerConsumer(a), once)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "handle at most one queue entry and exit")
	return cmd
}

func runConsumer(c *cobra.Command, a *app, consumer *txrelayer.Consumer, once bool) error {
	if !once {
		runUntilInterrupted(a, consumer)
		return nil
	}

	defer a.Close()
	handled, err := consumer.RunOnce(c.Context())
	if err != nil {
		return err
	}
	if !handled {
		c.Println("queue is empty")
	}
	return nil
}
