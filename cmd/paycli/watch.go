package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/herderhub/herderhub-api/internal/client"
	"github.com/herderhub/herderhub-api/internal/models"
	"github.com/herderhub/herderhub-api/internal/poller"
)

type watchFlags struct {
	interval    time.Duration
	maxAttempts int
	verbose     bool
}

func (w *watchFlags) register(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&w.interval, "interval", poller.DefaultInterval, "time between status checks")
	cmd.Flags().IntVar(&w.maxAttempts, "max-attempts", poller.DefaultMaxAttempts, "status checks before giving up")
	cmd.Flags().BoolVarP(&w.verbose, "verbose", "v", false, "print every status check")
}

var errPaymentNotCompleted = errors.New("payment not completed")

func (w *watchFlags) run(cmd *cobra.Command, c *client.Client, transactionID, checkoutID string) error {
	out := cmd.OutOrStdout()
	p := poller.New(c, c)
	p.Interval = w.interval
	p.MaxAttempts = w.maxAttempts
	if w.verbose {
		p.OnAttempt = func(n int, st models.PaymentStatus, err error) {
			if err != nil {
				fmt.Fprintf(out, "  [%d/%d] %v\n", n, w.maxAttempts, err)
				return
			}
			fmt.Fprintf(out, "  [%d/%d] %s\n", n, w.maxAttempts, st.Status)
		}
	}

	res, err := p.Run(cmd.Context(), transactionID, checkoutID)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, res.Message)
	if res.State != poller.StateCompleted {
		return errPaymentNotCompleted
	}
	return nil
}

func watchCmd(opts *globalOpts) *cobra.Command {
	var w watchFlags
	cmd := &cobra.Command{
		Use:   "watch <transactionId> <checkoutRequestId>",
		Short: "Wait for a payment to settle, marking it failed on timeout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			return w.run(cmd, c, args[0], args[1])
		},
	}
	w.register(cmd)
	return cmd
}
