package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/matheus3301/tgbridge/internal/config"
	"github.com/matheus3301/tgbridge/internal/daemon"
	"github.com/matheus3301/tgbridge/internal/lock"
	"github.com/matheus3301/tgbridge/internal/logging"
	"github.com/matheus3301/tgbridge/internal/session"
	"github.com/matheus3301/tgbridge/internal/tgclient"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	session string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "tgbridged",
		Short:         "Telegram bridge daemon",
		Long:          "tgbridged mirrors Telegram chats into a local SQLite store and accepts sends over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			name, cfg, err := opts.load()
			if err != nil {
				return err
			}
			app := fx.New(
				daemon.Module(daemon.Params{SessionName: name, Config: cfg}),
				fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
					return &fxevent.ZapLogger{Logger: logger.Named("fx")}
				}),
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.session, "session", "", "session name (overrides config default)")
	cmd.AddCommand(newLoginCmd(opts))
	return cmd
}

func (o *options) load() (string, *config.Config, error) {
	name, err := session.Resolve(o.session)
	if err != nil {
		return "", nil, err
	}
	cfg, err := config.LoadOrDefault(session.ConfigPath())
	if err != nil {
		return "", nil, err
	}
	if err := cfg.ApplyEnv(session.DotenvPaths()...); err != nil {
		return "", nil, err
	}
	if err := cfg.Validate(); err != nil {
		return "", nil, err
	}
	return name, cfg, nil
}

func newLoginCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authorize the session interactively",
		RunE: func(_ *cobra.Command, _ []string) error {
			name, cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := session.EnsureDir(name); err != nil {
				return err
			}
			// A running daemon owns the Telegram session file.
			lk, err := lock.Acquire(session.LockPath(name))
			if err != nil {
				return err
			}
			defer func() { _ = lk.Release() }()

			logger, err := logging.NewConsole(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			adapter := tgclient.NewAdapter(cfg.APIID, cfg.APIHash, session.TelegramSessionPath(name), logger.Named("telegram"))
			if err := adapter.Login(ctx, stdinPrompter{r: bufio.NewReader(os.Stdin)}); err != nil {
				return err
			}
			fmt.Printf("Session %q authorized.\n", name)
			return nil
		},
	}
}

type stdinPrompter struct {
	r *bufio.Reader
}

func (p stdinPrompter) Ask(_ context.Context, question string) (string, error) {
	fmt.Print(question)
	line, err := p.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
