package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/nhle/homenotify/internal/app"
	"github.com/nhle/homenotify/internal/credential"
	"github.com/nhle/homenotify/internal/model"
	appsync "github.com/nhle/homenotify/internal/sync"
	"github.com/nhle/homenotify/internal/theme"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// A missing .env is fine; the file only supplies HOMENOTIFY_* overrides.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("loading .env: %v", err)
	}

	cfgPath := os.Getenv("HOMENOTIFY_CONFIG")
	if cfgPath == "" {
		cfgPath = model.DefaultConfigPath()
	}

	cmd := "tui"
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "--version", "version", "-v":
		fmt.Println("homenotify " + version)
		return nil
	case "help", "--help", "-h":
		printHelp()
		return nil
	}

	cfg, err := model.LoadConfig(cfgPath)
	if err != nil {
		return err
	}

	switch cmd {
	case "tui":
		return runTUI(cfgPath, cfg)
	case "watch":
		return runWatch(cfgPath, cfg)
	case "login":
		return runLogin(cfg)
	case "logout":
		return runLogout(cfg)
	case "init":
		return runInit(cfgPath, cfg)
	default:
		printHelp()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printHelp() {
	fmt.Print(`homenotify - smart-home notifications in the terminal

Usage:
  homenotify            open the notification viewer
  homenotify watch      sync headless and log alerts
  homenotify login      sign in and store tokens in the keyring
  homenotify logout     sign out and forget stored tokens
  homenotify init       write the default config file
  homenotify version    print the version

Config: $HOMENOTIFY_CONFIG or ~/.config/homenotify/config.yaml
`)
}

// runTUI opens the viewer. The process log goes to the configured file so
// it does not draw over the screen.
func runTUI(cfgPath string, cfg *model.AppConfig) error {
	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o755); err != nil {
			return fmt.Errorf("creating log directory: %w", err)
		}
		f, err := tea.LogToFile(cfg.Log.File, "homenotify")
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()
	}

	theme.Apply(cfg.Display.Theme)

	banner := app.NewBanner()
	p, err := newPipeline(cfg, banner, log.Default())
	if err != nil {
		return err
	}
	defer p.Close()

	model.WatchConfig(cfgPath, func(next *model.AppConfig) {
		p.svc.ApplyConfig(appsync.ConfigFrom(next.Sync))
		log.Printf("config reloaded")
	}, func(err error) {
		log.Printf("config watch: %v", err)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.svc.Start(ctx); err != nil {
		return fmt.Errorf("starting sync: %w", err)
	}

	root := app.New(app.Options{
		Service:  p.svc,
		Banner:   banner,
		PageSize: cfg.Display.PageSize,
	})
	prog := tea.NewProgram(root, tea.WithAltScreen())
	if _, err := prog.Run(); err != nil {
		return fmt.Errorf("tui error: %w", err)
	}
	return nil
}

// runWatch syncs without a UI until interrupted.
func runWatch(cfgPath string, cfg *model.AppConfig) error {
	logger := log.Default()
	logger.Printf("homenotify %s watching %s", version, cfg.API.BaseURL)

	p, err := newPipeline(cfg, nil, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	model.WatchConfig(cfgPath, func(next *model.AppConfig) {
		p.svc.ApplyConfig(appsync.ConfigFrom(next.Sync))
		logger.Printf("config reloaded")
	}, func(err error) {
		logger.Printf("config watch: %v", err)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := p.svc.Start(ctx); err != nil {
		return fmt.Errorf("starting sync: %w", err)
	}

	updates := p.svc.Updates()
	last := appsync.StateIdle
	for {
		select {
		case <-ctx.Done():
			logger.Println("shutting down")
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if u.State != last {
				logger.Printf("pipeline %s -> %s (%d unread of %d)", last, u.State, u.Unread, u.Total)
				last = u.State
			}
		}
	}
}

// runInit writes the current (default or loaded) config to disk.
func runInit(cfgPath string, cfg *model.AppConfig) error {
	if err := model.SaveConfig(cfgPath, cfg); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", cfgPath)
	return nil
}

// openProvider opens the keyring-backed credential provider.
func openProvider(refresher credential.Refresher) (*credential.Keyring, *credential.Provider, error) {
	ring, err := credential.OpenKeyring()
	if err != nil {
		return nil, nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, credential.NewProvider(ring, refresher), nil
}
