// Package command implements the bridgectl commands.
package command

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

type options struct {
	apiURL  string
	timeout time.Duration
}

func (o *options) client() *Client {
	return NewClient(o.apiURL, o.timeout)
}

// NewRootCmd builds the bridgectl command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "bridgectl",
		Short: "bridgectl - control browsers connected to a browser bridge",
		Long: `bridgectl talks to a running browser bridge server. It can list connected
browsers, read their message history and send scripts, inspections and
screenshot requests to them, optionally waiting for the reply.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.apiURL, "api", envOr("BRIDGE_API", "http://127.0.0.1:3141"), "bridge server URL")
	root.PersistentFlags().DurationVar(&opts.timeout, "http-timeout", 5*time.Minute+30*time.Second, "HTTP client timeout")

	root.AddCommand(
		newConnectionsCmd(opts),
		newConnectionCmd(opts),
		newHistoryCmd(opts),
		newExecCmd(opts),
		newInspectCmd(opts),
		newScreenshotCmd(opts),
		newHealthCmd(opts),
		newJournalCmd(opts),
		newPeerCmd(opts),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func printJSON(w io.Writer, data json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	_, err := fmt.Fprintln(w, buf.String())
	return err
}
