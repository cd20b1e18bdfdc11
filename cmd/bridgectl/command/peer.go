package command

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/browser-bridge/bridge/internal/logger"
	"github.com/browser-bridge/bridge/internal/model"
	"github.com/browser-bridge/bridge/pkg/peer"
)

var errNoBrowser = errors.New("bridgectl peer has no browser to run this command")

func newPeerCmd(opts *options) *cobra.Command {
	var (
		id       string
		wsURL    string
		logLevel string
	)
	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Connect as a test browser that echoes scripts back",
		Long: `peer connects to the bridge the way the browser extension does. It answers
execute_script with the script text as the result and reports inspect and
screenshot commands as failed. Useful for checking a bridge without a browser.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if wsURL == "" {
				wsURL = websocketURL(opts.apiURL)
			}
			if id == "" {
				id = "bridgectl-" + uuid.NewString()[:8]
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p := newEchoPeer(peer.Config{
				URL:          wsURL,
				ConnectionID: id,
				UserAgent:    "bridgectl",
				Logger:       logger.New(cmd.ErrOrStderr(), logLevel, true),
			})

			fmt.Fprintf(cmd.OutOrStdout(), "Connecting to %s as %s\n", wsURL, id)
			if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "connection id (default: generated)")
	cmd.Flags().StringVar(&wsURL, "url", "", "WebSocket URL (default: derived from --api)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
	return cmd
}

func newEchoPeer(cfg peer.Config) *peer.Peer {
	p := peer.New(cfg)
	p.Handle(model.TypeExecuteScript, func(_ context.Context, cmd *model.Envelope) (*model.Envelope, error) {
		var script string
		if _, err := cmd.Field("script", &script); err != nil {
			return nil, err
		}
		reply := model.NewEnvelope(model.TypeScriptResult)
		if err := reply.SetField("success", true); err != nil {
			return nil, err
		}
		if err := reply.SetField("result", script); err != nil {
			return nil, err
		}
		return reply, nil
	})
	unsupported := func(context.Context, *model.Envelope) (*model.Envelope, error) {
		return nil, errNoBrowser
	}
	p.Handle(model.TypeInspectElement, unsupported)
	p.Handle(model.TypeTakeScreenshot, unsupported)
	return p
}

// websocketURL derives the relay endpoint from the API base URL.
func websocketURL(apiURL string) string {
	u := strings.TrimSuffix(apiURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}
