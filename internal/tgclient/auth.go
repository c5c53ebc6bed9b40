package tgclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"
)

// Prompter asks the operator for one line of input.
type Prompter interface {
	Ask(ctx context.Context, question string) (string, error)
}

// Login authorizes the session interactively with phone, code and, when
// two-step verification is on, password. A no-op for an authorized session.
func (a *Adapter) Login(ctx context.Context, p Prompter) error {
	return a.client.Run(ctx, func(ctx context.Context) error {
		flow := auth.NewFlow(promptAuth{p: p}, auth.SendCodeOptions{})
		if err := a.client.Auth().IfNecessary(ctx, flow); err != nil {
			return fmt.Errorf("auth flow: %w", err)
		}
		self, err := a.client.Self(ctx)
		if err != nil {
			return fmt.Errorf("get self: %w", err)
		}
		a.logger.Info("logged in", zap.Int64("user_id", self.ID), zap.String("username", self.Username))
		return nil
	})
}

// promptAuth implements auth.UserAuthenticator on top of a Prompter.
type promptAuth struct {
	p Prompter
}

func (a promptAuth) Phone(ctx context.Context) (string, error) {
	return a.p.Ask(ctx, "Phone number (international format): ")
}

func (a promptAuth) Password(ctx context.Context) (string, error) {
	return a.p.Ask(ctx, "Two-step verification password: ")
}

func (a promptAuth) Code(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
	return a.p.Ask(ctx, "Login code: ")
}

func (promptAuth) AcceptTermsOfService(context.Context, tg.HelpTermsOfService) error {
	return errors.New("terms of service must be accepted in an official app")
}

func (promptAuth) SignUp(context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, errors.New("sign up is not supported, register with an official app first")
}
