package main

import (
	"github.com/spf13/cobra"

	"github.com/Psychedelic/terabethia-relayer/txrelayer"
)

func ReplayCmd() *cobra.Command {
	var nonce uint64

	cmd := &cobra.Command{
		Use:   "replay <key> <hash>",
		Short: "Put a message on the outbound queue by hand",
		Long: "Put a message on the outbound queue by hand, e.g. when an enqueue failed after the " +
			"message was claimed. With --nonce the message is resubmitted with exactly that nonce.",
		Args: cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			a, err := newApp(c, false)
			if err != nil {
				return err
			}
			defer a.Close()

			var explicit *uint64
			if c.Flags().Changed("nonce") {
				explicit = &nonce
			}
			if err := txrelayer.Replay(c.Context(), a.deps, args[0], args[1], explicit); err != nil {
				return err
			}

			a.logger.Sugar().Infof("Enqueued message %s", args[0])
			return nil
		},
	}

	cmd.Flags().Uint64Var(&nonce, "nonce", 0, "resubmit with this nonce instead of the next one")
	return cmd
}
