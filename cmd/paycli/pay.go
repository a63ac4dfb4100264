package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/herderhub/herderhub-api/internal/services"
)

func payCmd(opts *globalOpts) *cobra.Command {
	var (
		req    services.InitiateRequest
		noWait bool
		w      watchFlags
	)
	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Send an STK push for a listing and wait for the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			res, err := c.Initiate(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", res.CustomerMessage)
			fmt.Fprintf(out, "  transaction: %s\n  checkout:    %s\n  amount:      KES %d\n",
				res.TransactionID, res.CheckoutRequestID, res.Amount)
			if noWait {
				return nil
			}
			fmt.Fprintln(out, "Enter your M-Pesa PIN on your phone...")
			return w.run(cmd, c, res.TransactionID, res.CheckoutRequestID)
		},
	}
	cmd.Flags().StringVarP(&req.ListingID, "listing", "l", "", "listing id (required)")
	cmd.Flags().StringVarP(&req.PhoneNumber, "phone", "p", "", "M-Pesa phone number, e.g. 0712345678 (required)")
	cmd.Flags().Int64VarP(&req.Amount, "amount", "a", 0, "amount in KES; 0 uses listing price plus fee")
	cmd.Flags().StringVar(&req.AccountReference, "reference", "", "account reference shown to the payer")
	cmd.Flags().StringVar(&req.TransactionDesc, "desc", "", "transaction description")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "return after the push is accepted")
	w.register(cmd)
	_ = cmd.MarkFlagRequired("listing")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}
