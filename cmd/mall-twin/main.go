package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/TSfhy/mall-jiekou-auto/internal/twin"
)

func main() {
	port := flag.Int("port", 0, "HTTP listen port (default: 8080)")
	verbose := flag.Bool("verbose", false, "Enable request logging")
	tokenTTL := flag.Duration("token-ttl", twin.DefaultTokenTTL, "Lifetime of issued tokens")
	flag.Parse()

	listenPort, err := resolvePort(*port, os.Getenv("PORT"))
	if err != nil {
		log.Fatalf("invalid port: %v", err)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	tw := twin.New(twin.Options{Logger: logger, Verbose: *verbose, TokenTTL: *tokenTTL})

	addr := fmt.Sprintf(":%d", listenPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      tw,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("starting mall twin", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-done
	logger.Info("shutting down mall twin")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}

// resolvePort 优先使用 -port，其次是 PORT 环境变量，默认 8080
func resolvePort(flagPort int, env string) (int, error) {
	if flagPort != 0 {
		return flagPort, nil
	}
	if env == "" {
		return 8080, nil
	}
	p, err := strconv.Atoi(env)
	if err != nil {
		return 0, fmt.Errorf("PORT=%q: %w", env, err)
	}
	if p < 1 || p > 65535 {
		return 0, fmt.Errorf("PORT=%q out of range", env)
	}
	return p, nil
}
