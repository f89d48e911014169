package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lightfast-io/wslink"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Stay connected, print every command the controller pushes",
	Long: `Listen connects and then acts as a minimal peer: every action message
the controller sends is printed to stdout and acknowledged with a success
reply. Runs until interrupted or the controller disconnects.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var c *wslink.Client
		d := wslink.DispatcherFunc(func(action string, params map[string]interface{}, id string) {
			line, _ := json.Marshal(map[string]interface{}{
				"action": action,
				"params": params,
				"id":     id,
			})
			fmt.Fprintln(cmd.OutOrStdout(), string(line))

			if id == "" {
				return
			}
			rctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			c.Send(rctx, map[string]interface{}{
				"id":      id,
				"success": true,
			}, nil)
		})
		c = newClient(wslink.WithDispatcher(d))

		cctx, cancel := context.WithTimeout(ctx, timeout)
		err := c.Connect(cctx, host, port)
		cancel()
		if err != nil {
			return err
		}
		defer c.Disconnect()

		fmt.Fprintf(cmd.OutOrStdout(), "listening on session %v\n", c.Session())

		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if c.State() == wslink.StateDisconnected {
					return c.Err()
				}
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(listenCmd)
}
