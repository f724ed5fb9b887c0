package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/nhle/homenotify/internal/credential"
	"github.com/nhle/homenotify/internal/model"
	"github.com/nhle/homenotify/internal/source/homeapi"
)

// authTimeout bounds the login and logout round trips.
const authTimeout = 30 * time.Second

func validateRequired(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

// runLogin asks for credentials, exchanges them for tokens and stores the
// tokens in the keyring. An optional Telegram bot token is stored too.
func runLogin(cfg *model.AppConfig) error {
	var username, password, telegramToken string

	fields := []huh.Field{
		huh.NewInput().
			Title("Username").
			Description("Account on " + cfg.API.BaseURL).
			Value(&username).
			Validate(validateRequired("Username")),
		huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(&password).
			Validate(validateRequired("Password")),
	}
	if cfg.Alerts.Telegram.Enabled {
		fields = append(fields, huh.NewInput().
			Title("Telegram Bot Token").
			Description("Leave empty to keep the stored token").
			EchoMode(huh.EchoModePassword).
			Value(&telegramToken))
	}

	form := huh.NewForm(huh.NewGroup(fields...))
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil
		}
		return fmt.Errorf("login form: %w", err)
	}

	client := homeapi.NewClient(cfg.API.BaseURL, time.Duration(cfg.API.TimeoutSec)*time.Second)
	ring, provider, err := openProvider(client)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
	defer cancel()

	tok, err := client.Login(ctx, strings.TrimSpace(username), password)
	if err != nil {
		return err
	}
	if err := provider.Save(tok); err != nil {
		return fmt.Errorf("storing tokens: %w", err)
	}
	if telegramToken != "" {
		if err := ring.Set(credential.KeyTelegramToken, strings.TrimSpace(telegramToken)); err != nil {
			return fmt.Errorf("storing telegram token: %w", err)
		}
	}

	fmt.Println("Logged in.")
	return nil
}

// runLogout revokes the session on the server when possible and always
// forgets the local tokens.
func runLogout(cfg *model.AppConfig) error {
	client := homeapi.NewClient(cfg.API.BaseURL, time.Duration(cfg.API.TimeoutSec)*time.Second)
	_, provider, err := openProvider(client)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
	defer cancel()

	tok, err := provider.Token()
	switch {
	case err == credential.ErrNoSession:
		fmt.Println("Not logged in.")
		return nil
	case err != nil:
		fmt.Printf("warning: session not revoked on server: %v\n", err)
	default:
		if err := client.Logout(ctx, tok.AccessToken, tok.RefreshToken); err != nil {
			fmt.Printf("warning: server logout failed: %v\n", err)
		}
	}

	if err := provider.Clear(); err != nil {
		return fmt.Errorf("clearing tokens: %w", err)
	}
	fmt.Println("Logged out.")
	return nil
}
