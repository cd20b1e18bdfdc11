package command

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// commandFlags are shared by the commands that talk to a browser.
type commandFlags struct {
	connectionID string
	tabID        string
	sync         bool
	wait         time.Duration
}

func (f *commandFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.connectionID, "connection", "c", "", "target connection id (default: all, or the oldest with --sync)")
	cmd.Flags().StringVar(&f.tabID, "tab", "", "target tab id")
	cmd.Flags().BoolVarP(&f.sync, "sync", "s", false, "wait for the browser's reply")
	cmd.Flags().DurationVar(&f.wait, "wait", 10*time.Second, "how long --sync waits for the reply")
}

func (f *commandFlags) tab() *string {
	if f.tabID == "" {
		return nil
	}
	return &f.tabID
}

func (f *commandFlags) send(cmd *cobra.Command, opts *options, path string, body any) error {
	var query url.Values
	if f.sync {
		path += "-sync"
		query = url.Values{"timeout": {strconv.FormatInt(f.wait.Milliseconds(), 10)}}
	}

	data, err := opts.client().Post(cmd.Context(), path, query, body)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), data)
}

func newExecCmd(opts *options) *cobra.Command {
	var f commandFlags
	cmd := &cobra.Command{
		Use:   "exec [script]",
		Short: "Run a script in the browser",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"script": args[0], "tabId": f.tab()}
			if f.connectionID != "" {
				body["connectionId"] = f.connectionID
			}
			if err := f.send(cmd, opts, "/execute", body); err != nil {
				return fmt.Errorf("exec failed: %w", err)
			}
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newInspectCmd(opts *options) *cobra.Command {
	var f commandFlags
	cmd := &cobra.Command{
		Use:   "inspect [selector]",
		Short: "Describe the element matching a CSS selector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"selector": args[0], "tabId": f.tab()}
			if f.connectionID != "" {
				body["connectionId"] = f.connectionID
			}
			if err := f.send(cmd, opts, "/inspect", body); err != nil {
				return fmt.Errorf("inspect failed: %w", err)
			}
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newScreenshotCmd(opts *options) *cobra.Command {
	var (
		f        commandFlags
		selector string
		fullPage bool
	)
	cmd := &cobra.Command{
		Use:   "screenshot",
		Short: "Capture the visible tab, a full page or one element",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"fullPage": fullPage, "tabId": f.tab()}
			if selector != "" {
				body["selector"] = selector
			}
			if f.connectionID != "" {
				body["connectionId"] = f.connectionID
			}
			if err := f.send(cmd, opts, "/screenshot", body); err != nil {
				return fmt.Errorf("screenshot failed: %w", err)
			}
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&selector, "selector", "", "element to capture")
	cmd.Flags().BoolVar(&fullPage, "full-page", false, "capture the whole page")
	return cmd
}
