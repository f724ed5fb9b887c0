package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/nhle/homenotify/internal/alert"
	"github.com/nhle/homenotify/internal/channel"
	"github.com/nhle/homenotify/internal/credential"
	"github.com/nhle/homenotify/internal/model"
	"github.com/nhle/homenotify/internal/source/homeapi"
	"github.com/nhle/homenotify/internal/store"
	appsync "github.com/nhle/homenotify/internal/sync"
)

// ledgerRetention is how long alert ledger rows are kept.
const ledgerRetention = 30 * 24 * time.Hour

// pipeline owns everything the sync service needs and closes it in order.
type pipeline struct {
	svc      *appsync.Service
	ledger   *store.SQLiteStore
	telegram *alert.Telegram
}

// newPipeline wires the backend client, credentials, live channel, alert
// displayers and ledger into a sync service. extra is an additional
// displayer such as the TUI banner; when nil, alerts also ring the bell.
func newPipeline(cfg *model.AppConfig, extra alert.Displayer, logger *log.Logger) (*pipeline, error) {
	client := homeapi.NewClient(cfg.API.BaseURL, time.Duration(cfg.API.TimeoutSec)*time.Second)

	ring, provider, err := openProvider(client)
	if err != nil {
		return nil, err
	}
	if _, ok := provider.CurrentToken(); !ok {
		return nil, fmt.Errorf("%w: run `homenotify login` first", credential.ErrNoSession)
	}

	reconnectMin, reconnectMax := cfg.Sync.ReconnectBackoff()
	ch := channel.New(channel.Options{
		URL:          cfg.API.ResolvedSocketURL(),
		Token:        provider.CurrentToken,
		ReconnectMin: reconnectMin,
		ReconnectMax: reconnectMax,
		Logger:       logger,
	})

	p := &pipeline{}
	displays := alert.Multi{alert.NewLog(logger)}
	if extra != nil {
		displays = append(displays, extra)
	} else if cfg.Alerts.Bell {
		displays = append(displays, alert.NewBell(os.Stdout))
	}

	if cfg.Alerts.Telegram.Enabled {
		token, err := ring.Get(credential.KeyTelegramToken)
		switch {
		case err != nil:
			logger.Printf("telegram alerts disabled: no bot token in keyring (%v)", err)
		default:
			tg, err := alert.NewTelegram(token, cfg.Alerts.Telegram.ChatID, logger)
			if err != nil {
				logger.Printf("telegram alerts disabled: %v", err)
			} else {
				p.telegram = tg
				displays = append(displays, tg)
			}
		}
	}

	var ledger appsync.Ledger
	if cfg.Ledger.Path != "" {
		db, err := openLedger(cfg.Ledger.Path)
		if err != nil {
			// In-memory de-duplication still applies.
			logger.Printf("alert ledger disabled: %v", err)
		} else {
			p.ledger = db
			ledger = db
		}
	}

	p.svc = appsync.NewService(appsync.Options{
		Backend:     client,
		Credentials: provider,
		Channel:     ch,
		Alerts:      displays,
		Ledger:      ledger,
		Logger:      logger,
		Config:      appsync.ConfigFrom(cfg.Sync),
	})
	return p, nil
}

// openLedger opens the alert ledger and drops rows past retention.
func openLedger(path string) (*store.SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}
	db, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.PruneAlerts(context.Background(), time.Now().Add(-ledgerRetention)); err != nil {
		db.Close()
		return nil, fmt.Errorf("pruning alert ledger: %w", err)
	}
	return db, nil
}

// Close stops the service and releases its resources.
func (p *pipeline) Close() {
	p.svc.Close()
	if p.telegram != nil {
		p.telegram.Close()
	}
	if p.ledger != nil {
		p.ledger.Close()
	}
}
