package main

import (
	"github.com/spf13/cobra"
)

func InspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the bookkeeping of a transaction or a message",
	}
	cmd.AddCommand(inspectTxCmd(), inspectMsgCmd())
	return cmd
}

func inspectTxCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tx <txHash>",
		Short: "Show the messages carried by a transaction and its destination status",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			a, err := newApp(c, true)
			if err != nil {
				return err
			}
			defer a.Close()

			txHash := args[0]
			keys, err := a.deps.Store.GetMessagesForTransaction(c.Context(), txHash)
			if err != nil {
				return err
			}
			status, err := a.deps.Dest.GetStatus(c.Context(), txHash)
			if err != nil {
				return err
			}

			c.Printf("tx:       %s\n", txHash)
			c.Printf("status:   %s\n", status)
			c.Printf("messages: %v\n", keys)
			return nil
		},
	}
}

func inspectMsgCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "msg <key>",
		Short: "Show whether a message was claimed and which transaction carried it",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			a, err := newApp(c, false)
			if err != nil {
				return err
			}
			defer a.Close()

			key := args[0]
			claimedAt, claimed, err := a.deps.Store.ClaimedAt(c.Context(), key)
			if err != nil {
				return err
			}
			txHash, found, err := a.deps.Store.GetTransactionForMessage(c.Context(), key)
			if err != nil {
				return err
			}

			c.Printf("message: %s\n", key)
			if claimed {
				c.Printf("claimed: %s\n", claimedAt.UTC().Format("2006-01-02T15:04:05Z"))
			} else {
				c.Println("claimed: no")
			}
			if found {
				c.Printf("tx:      %s\n", txHash)
			} else {
				c.Println("tx:      none")
			}
			return nil
		},
	}
}
