package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/Beacon/server/internal/client"
)

const defaultServer = "http://localhost:8080"

func addServerFlag(cmd *cobra.Command) {
	cmd.Flags().String("server", defaultServer, "Address of the beacon server")
	cmd.Flags().Duration("timeout", 10*time.Second, "Request timeout")
}

func clientFor(cmd *cobra.Command) (*client.Client, context.Context, context.CancelFunc, error) {
	server, err := cmd.Flags().GetString("server")
	if err != nil {
		return nil, nil, nil, err
	}
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	return client.New(server, nil), ctx, cancel, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newBeatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "beat service-id",
		Short: "Send a beat for a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, cancel, err := clientFor(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			pairs, err := cmd.Flags().GetStringToString("detail")
			if err != nil {
				return err
			}
			resp, err := c.Beat(ctx, args[0], pairs)
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
	addServerFlag(cmd)
	cmd.Flags().StringToString("detail", nil, "Detail key=value pairs attached to the beat")
	return cmd
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status service-id",
		Short: "Show when a service last beat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, cancel, err := clientFor(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			resp, err := c.Status(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
	addServerFlag(cmd)
	return cmd
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history service-id",
		Short: "List recent beats for a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, cancel, err := clientFor(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			limit, err := cmd.Flags().GetInt("limit")
			if err != nil {
				return err
			}
			resp, err := c.History(ctx, args[0], limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(resp.Beats) == 0 {
				fmt.Fprintf(out, "%s: no beats\n", resp.Service)
				return nil
			}
			for _, b := range resp.Beats {
				line := b.Timestamp
				if len(b.Details) > 0 {
					kv := make([]string, 0, len(b.Details))
					for k, v := range b.Details {
						kv = append(kv, k+"="+v)
					}
					line += "  " + strings.Join(kv, " ")
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	addServerFlag(cmd)
	cmd.Flags().Int("limit", 20, "Maximum number of beats to list (0 lists all)")
	return cmd
}
