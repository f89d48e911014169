package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/lightfast-io/wslink"
)

var sendWait bool

var sendCmd = &cobra.Command{
	Use:   "send <json-object>",
	Short: "Send one JSON message and print the correlated reply",
	Long: `Send transmits a single JSON object to the controller. An "id" field is
generated if the object lacks one. With --wait (the default) the command
blocks until the reply carrying that id arrives, then prints it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var msg map[string]interface{}
		if err := json.Unmarshal([]byte(args[0]), &msg); err != nil {
			return xerrors.Errorf("argument is not a JSON object: %w", err)
		}

		c := newClient()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		if err := c.Connect(ctx, host, port); err != nil {
			return err
		}
		defer c.Disconnect()

		replies := make(chan wslink.Message, 1)
		var cb func(wslink.Message)
		if sendWait {
			cb = func(m wslink.Message) {
				replies <- m
			}
		}

		id, err := c.Send(ctx, msg, cb)
		if err != nil {
			return err
		}
		if !sendWait {
			fmt.Fprintf(cmd.OutOrStdout(), "sent %v\n", id)
			return nil
		}

		select {
		case reply := <-replies:
			out, err := json.MarshalIndent(reply.Object, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		case <-ctx.Done():
			return xerrors.Errorf("no reply to %v within %v", id, timeout)
		}
	},
}

func init() {
	sendCmd.Flags().BoolVar(&sendWait, "wait", true, "wait for the correlated reply")
	rootCmd.AddCommand(sendCmd)
}
