// Command paycli starts M-Pesa payments against the HerderHub API and waits
// for them to settle.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/herderhub/herderhub-api/internal/client"
)

var Version = "dev"

type globalOpts struct {
	api   string
	token string
}

func (g *globalOpts) client() (*client.Client, error) {
	if g.token == "" {
		return nil, fmt.Errorf("no API token: pass --token or set HERDERHUB_TOKEN")
	}
	return client.New(g.api, g.token), nil
}

func main() {
	opts := &globalOpts{}
	rootCmd := &cobra.Command{
		Use:           "paycli",
		Short:         "Pay for HerderHub listings with M-Pesa",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.api, "api", envOr("HERDERHUB_API", "http://localhost:8080"), "API base URL")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("HERDERHUB_TOKEN"), "bearer token")

	rootCmd.AddCommand(payCmd(opts))
	rootCmd.AddCommand(statusCmd(opts))
	rootCmd.AddCommand(watchCmd(opts))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
