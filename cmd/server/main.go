package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CK6170/Dishrunrilla-go/internal/server"
	"github.com/CK6170/Dishrunrilla-go/internal/telemetry"
	"github.com/CK6170/Dishrunrilla-go/models"
	"github.com/caarlos0/env/v11"
	"golang.org/x/sync/errgroup"
)

// Config is read from the environment; flags override it.
type Config struct {
	Addr       string `env:"DISHRUNRILLA_ADDR"        envDefault:"127.0.0.1:8080"`
	Web        string `env:"DISHRUNRILLA_WEB"         envDefault:"./web"`
	MQTTBroker string `env:"DISHRUNRILLA_MQTT_BROKER"`
	MQTTTopic  string `env:"DISHRUNRILLA_MQTT_TOPIC"  envDefault:"dishrunrilla"`
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("parse env: %v", err)
	}
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "http listen address")
	flag.StringVar(&cfg.Web, "web", cfg.Web, "path to web root (index.html)")
	flag.StringVar(&cfg.MQTTBroker, "mqtt", cfg.MQTTBroker, "MQTT broker for telemetry (empty disables)")
	flag.Parse()

	if err := run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg Config) error {
	pub, err := telemetry.New(&models.MQTT{BROKER: cfg.MQTTBroker, CLIENT_ID: "dishrunrilla-server", TOPIC: cfg.MQTTTopic})
	if err != nil {
		return err
	}
	defer pub.Close()

	s := server.New(server.WithPublisher(pub), server.WithWebRoot(cfg.Web))
	defer func() { _ = s.Close() }()

	httpSrv := &http.Server{Addr: cfg.Addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("Serving on http://%s", cfg.Addr)
		log.Printf("UI:        http://%s/", cfg.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Printf("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
