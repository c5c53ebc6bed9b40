package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/matheus3301/tgbridge/internal/bridge"
	"github.com/matheus3301/tgbridge/internal/config"
	"github.com/matheus3301/tgbridge/internal/session"
	"github.com/spf13/cobra"
)

// The daemon answers by its own deadline; this only covers a hung socket.
const sendGrace = 5 * time.Second

type sendResult struct {
	Status  int    `json:"status"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func newSendCmd(app *App) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "send <recipient> <message...>",
		Short: "Send a text message through the running daemon",
		Long:  "Recipient may be a numeric chat ID, a @username, or a name known to the local store.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(session.ConfigPath())
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.HTTPAddr
			}

			req := bridge.Request{Recipient: args[0], Message: strings.Join(args[1:], " ")}
			res, err := postSend(context.Background(), addr, req, cfg.SendTimeout.Duration+sendGrace)
			if err != nil {
				return err
			}
			if app.JSON {
				if err := writeJSON(app.out, res); err != nil {
					return err
				}
			} else if err := writeLine(app.out, res.Message); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("send failed (HTTP %d)", res.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "daemon HTTP address (defaults to http_addr from config)")

	return cmd
}

func postSend(ctx context.Context, addr string, req bridge.Request, timeout time.Duration) (*sendResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(addr, "/")+"/api/send", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("cannot reach daemon at %s: %w", addr, err)
	}
	defer func() { _ = resp.Body.Close() }()

	res := &sendResult{Status: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(res); err != nil {
		return nil, fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	return res, nil
}
