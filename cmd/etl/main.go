package main

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/stayware/message-etl/internal/config"
	gateway "github.com/stayware/message-etl/internal/gateways"
	"github.com/stayware/message-etl/internal/notify"
	"github.com/stayware/message-etl/internal/pipeline"
	"github.com/stayware/message-etl/internal/repository"
	"github.com/stayware/message-etl/internal/transform"
	"github.com/stayware/message-etl/pkg/logger"
	"github.com/stayware/message-etl/pkg/pg"
	"github.com/stayware/message-etl/pkg/prom"
)

func main() {
	err := config.Load(getEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	cfg := config.Get()

	host, _ := os.Hostname()
	if err := prom.Create(host, cfg.AppEnv, cfg.PromNamespace); err != nil {
		logger.Warn("failed to register metrics", "error", err)
	}
	if cfg.MetricsListenAddr != "" {
		go prom.ListenAndServe(cfg.MetricsListenAddr, "/metrics")
	}

	pgDebug := false
	if cfg.AppEnv == "dev" {
		pgDebug = true
	}
	db, err := pg.Create(pg.Config{
		User:     cfg.PostgresUser,
		Host:     cfg.PostgresHost,
		Port:     cfg.PostgresPort,
		Password: cfg.PostgresPassword,
		Database: cfg.PostgresDatabase,
	}, pgDebug)
	if err != nil {
		logger.Error("failed to open database handle", "error", err)
		return
	}

	store := repository.NewMessageRepository(db, cfg.EnableDryRun)

	client, err := gateway.NewClient(&gateway.Config{
		BaseURL:      cfg.HostawayBaseUrl,
		ClientID:     cfg.HostawayClientID,
		ClientSecret: cfg.HostawayClientSecret,
		RequestDelay: cfg.ApiRequestDelay,
		DryRun:       cfg.EnableDryRun,
	})
	if err != nil {
		logger.Error("failed to create Hostaway client", "error", err)
		return
	}

	transformer := transform.New(client)
	notifier := notify.NewEmailNotifier(cfg.SmtpAddr, cfg.NotificationEmail)

	p := pipeline.New(cfg, &hostawayGateway{client}, store, transformer, notifier)

	report := p.Run(context.Background(), getSince())
	if !report.Success {
		os.Exit(1)
	}
}

// hostawayGateway adapts the concrete client cursor to the orchestrator
// interface.
type hostawayGateway struct {
	client *gateway.Client
}

func (g *hostawayGateway) Messages(since *time.Time) pipeline.RecordCursor {
	return g.client.Messages(since)
}

func getEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	if _, err := os.Open(".env"); err != nil {
		return ""
	}
	return ".env"
}

// getSince resolves the extraction cutoff: --since=<RFC3339 or YYYY-MM-DD>
// wins, --days=N counts back from now, no flag means resume from the
// store.
func getSince() *time.Time {
	for _, v := range os.Args {
		if strings.Contains(v, "--since=") {
			s := strings.SplitN(v, "=", 2)
			if t, err := time.Parse(time.RFC3339, s[1]); err == nil {
				return &t
			}
			if t, err := time.Parse("2006-01-02", s[1]); err == nil {
				return &t
			}
			logger.Error("could not parse --since value", "value", s[1])
			os.Exit(1)
		}
	}
	for _, v := range os.Args {
		if strings.Contains(v, "--days=") {
			s := strings.SplitN(v, "=", 2)
			n, err := strconv.Atoi(s[1])
			if err != nil || n < 0 {
				logger.Error("could not parse --days value", "value", s[1])
				os.Exit(1)
			}
			t := time.Now().AddDate(0, 0, -n)
			return &t
		}
	}
	return nil
}
