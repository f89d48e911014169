package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lightfast-io/wslink"
)

const version = "0.1.0"

var (
	// Global flags
	host    string
	port    int
	timeout time.Duration
	verbose bool
)

// rootCmd is the base command for wslinkctl.
var rootCmd = &cobra.Command{
	Use:   "wslinkctl",
	Short: "Exercise a wslink controller endpoint — probe, send commands, listen for them",
	Long: `wslinkctl is a diagnostic companion for services speaking the wslink
wire protocol. It dials the controller the same way an embedded client
would: raw TCP, HTTP upgrade, masked frames, correlated JSON messages.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

func newClient(opts ...wslink.Option) *wslink.Client {
	opts = append([]wslink.Option{
		wslink.WithIdentity("wslinkctl", version),
		wslink.WithLogger(newLogger()),
		wslink.WithHandshakeTimeout(timeout),
	}, opts...)
	return wslink.NewClient(opts...)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&host, "host", "localhost", "controller host to dial")
	rootCmd.PersistentFlags().IntVar(&port, "port", 8765, "controller port to dial")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "bound on connecting and on waiting for replies")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log protocol details to stderr")
}
