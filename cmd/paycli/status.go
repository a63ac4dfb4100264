package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func statusCmd(opts *globalOpts) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status <checkoutRequestId>",
		Short: "Show the current payment status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			st, err := c.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			fmt.Fprintf(out, "Status:  %s\n", st.Status)
			fmt.Fprintf(out, "Amount:  KES %d\n", st.Amount)
			fmt.Fprintf(out, "Phone:   %s\n", st.PhoneNumber)
			if st.MpesaReceiptNumber != "" {
				fmt.Fprintf(out, "Receipt: %s\n", st.MpesaReceiptNumber)
			}
			if st.FailureReason != "" {
				fmt.Fprintf(out, "Reason:  %s\n", st.FailureReason)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "output as JSON")
	return cmd
}
