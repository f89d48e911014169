package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Connect, handshake and disconnect, reporting what happened",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		if err := c.Connect(ctx, host, port); err != nil {
			return err
		}
		defer c.Disconnect()

		fmt.Fprintf(cmd.OutOrStdout(), "connected to %v:%v\n", host, port)
		fmt.Fprintf(cmd.OutOrStdout(), "session %v\n", c.Session())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
}
