package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	x402chat "github.com/vitwit/x402-chat"
	"github.com/vitwit/x402-chat/config"
	"github.com/vitwit/x402-chat/logger"
	"github.com/vitwit/x402-chat/metrics"
)

var rootCmd = &cobra.Command{
	Use:   "x402chatd",
	Short: "Payment-gated AI chat gateway",
	Long: `x402chatd serves an AI chat completion API behind the x402 payment
protocol. Callers without proof of payment receive a 402 challenge naming
the price, recipient and network; callers that attach a verified
transaction hash get their completion streamed back.`,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			log := logger.NewZapLogger(cfg.Log.Level)
			gw, err := x402chat.New(cfg,
				x402chat.WithLogger(log),
				x402chat.WithMetrics(metrics.NewPrometheusRecorder()),
			)
			if err != nil {
				return err
			}
			defer gw.Close()

			errCh := make(chan error, 1)
			go func() { errCh <- gw.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return gw.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config file (default ./config.yaml)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			b, _ := json.MarshalIndent(x402chat.GetVersion(), "", "  ")
			fmt.Println(string(b))
		},
	}
}
