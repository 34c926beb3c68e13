package main

import (
	"github.com/spf13/cobra"
)

func NonceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nonce",
		Short: "Inspect or repair the stored nonce of the relay account",
	}
	cmd.AddCommand(nonceShowCmd(), nonceSyncCmd())
	return cmd
}

func nonceShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the stored nonce next to the destination account nonce",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			a, err := newApp(c, true)
			if err != nil {
				return err
			}
			defer a.Close()

			stored, found, err := a.deps.Store.GetLastNonce(c.Context())
			if err != nil {
				return err
			}
			account := a.deps.Dest.Account()
			onChain, err := a.deps.Dest.GetNonce(c.Context(), account)
			if err != nil {
				return err
			}

			if found {
				c.Printf("stored:      %d\n", stored)
			} else {
				c.Println("stored:      not set")
			}
			c.Printf("destination: %d (%s %s)\n", onChain, a.deps.Dest.Name(), account)
			if found && stored != onChain {
				c.Println("the counters differ, transactions may be in flight or `nonce sync` is needed")
			}
			return nil
		},
	}
}

func nonceSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Overwrite the stored nonce with the destination account nonce",
		Long: "Overwrite the stored nonce with the destination account nonce. " +
			"Stop the sender first, it is the only other writer of the counter.",
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			a, err := newApp(c, true)
			if err != nil {
				return err
			}
			defer a.Close()

			nonce, err := a.deps.Dest.GetNonce(c.Context(), a.deps.Dest.Account())
			if err != nil {
				return err
			}
			if err := a.deps.Store.SetLastNonce(c.Context(), nonce); err != nil {
				return err
			}

			a.logger.Sugar().Infof("Stored nonce set to %d", nonce)
			return nil
		},
	}
}
