package command

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

type connectionSummary struct {
	ID              string    `json:"connectionId"`
	ConnectedAt     time.Time `json:"connectedAt"`
	LastMessageTime time.Time `json:"lastMessageTime"`
	MessageCount    int       `json:"messageCount"`
	LastMessageType string    `json:"lastMessageType"`
	State           string    `json:"state"`
}

func newConnectionsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "connections",
		Short: "List connected browsers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := opts.client().Get(cmd.Context(), "/connections", nil)
			if err != nil {
				return fmt.Errorf("failed to list connections: %w", err)
			}

			var conns []connectionSummary
			if err := json.Unmarshal(data, &conns); err != nil {
				return fmt.Errorf("unexpected response: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(conns) == 0 {
				fmt.Fprintln(out, "No browsers connected.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCONNECTED\tMESSAGES\tLAST TYPE\tLAST MESSAGE")
			for _, c := range conns {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
					c.ID,
					c.ConnectedAt.Local().Format(time.RFC3339),
					c.MessageCount,
					orDash(c.LastMessageType),
					c.LastMessageTime.Local().Format(time.RFC3339),
				)
			}
			return tw.Flush()
		},
	}
}

func newConnectionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "connection [id]",
		Short: "Show one connection and its last message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := opts.client().Get(cmd.Context(), "/connections/"+url.PathEscape(args[0]), nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
}

func newHistoryCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [id]",
		Short: "Show the most recent messages from a connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{"limit": {strconv.Itoa(limit)}}
			data, err := opts.client().Get(cmd.Context(), "/connections/"+url.PathEscape(args[0])+"/history", query)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "number of messages")
	return cmd
}

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the bridge is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := opts.client().Get(cmd.Context(), "/health", nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
}

func newJournalCmd(opts *options) *cobra.Command {
	var (
		limit        int
		connectionID string
	)
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recent connection sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{"limit": {strconv.Itoa(limit)}}
			if connectionID != "" {
				query.Set("connectionId", connectionID)
			}
			data, err := opts.client().Get(cmd.Context(), "/journal", query)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "number of sessions")
	cmd.Flags().StringVarP(&connectionID, "connection", "c", "", "only sessions of this connection id")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
