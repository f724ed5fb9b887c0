package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nhle/homenotify/internal/fakeapi"
	"github.com/nhle/homenotify/internal/sync"
)

func main() {
	addr := flag.String("addr", envOrDefault("FAKEAPI_ADDR", ":3000"), "listen address")
	username := flag.String("username", envOrDefault("FAKEAPI_USERNAME", "demo"), "login username")
	password := flag.String("password", envOrDefault("FAKEAPI_PASSWORD", "demo"), "login password")
	every := flag.Duration("publish-every", 20*time.Second, "push a new sample notification at this interval (0 disables)")
	seed := flag.Bool("seed", true, "start with sample notifications")
	flag.Parse()

	srv := fakeapi.New(fakeapi.Options{
		Username: *username,
		Password: *password,
		Logger:   log.Default(),
	})
	if *seed {
		srv.Seed(time.Now())
	}

	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *every > 0 {
		go publishLoop(ctx, srv, *every)
	}

	go func() {
		<-ctx.Done()
		srv.DropSockets()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("fake notification backend listening on %s (login %s/%s)", *addr, *username, *password)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("listen: %v", err)
	}
}

// publishLoop pushes a fresh sample on a ticker, alternating between the
// two event names the client accepts.
func publishLoop(ctx context.Context, srv *fakeapi.Server, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	events := []string{sync.EventNotification, sync.EventNewNotification}
	for seq := 1; ; seq++ {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n := fakeapi.NewSample(seq, now)
			delivered := srv.Publish(events[seq%len(events)], n)
			log.Printf("published %s to %d socket(s)", n.ID, delivered)
		}
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
