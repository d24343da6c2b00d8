package main

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/kwhite/loadtest"
	"github.com/kwhite/loadtest/config"
	"github.com/kwhite/loadtest/db"
	"github.com/kwhite/loadtest/report"
	"github.com/kwhite/loadtest/scenario"
	"github.com/kwhite/loadtest/storage"
)

const defaultMonitorWindow = 30 * time.Minute

func main() {
	var err error
	defer func() {
		if err != nil {
			os.Exit(1)
		}
	}()

	log := logrus.New()

	viper.SetEnvPrefix("loadtest")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.SetDefault("config", "loadtest.yaml")

	command := "suite"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		log.WithError(err).Error("failed to load config")
		return
	}

	httpExec := loadtest.NewExecutor(cfg.RequestTimeout())

	var queryExec scenario.QueryExecutor
	if cfg.Database.DSN != "" {
		pool, perr := db.New(db.PoolConfig{
			DSN:             cfg.Database.DSN,
			MaxConns:        cfg.Database.MaxConns,
			AcquireTimeout:  time.Duration(cfg.Database.AcquireTimeoutMs) * time.Millisecond,
			ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetimeMs) * time.Millisecond,
		})
		if perr != nil {
			log.WithError(perr).Warn("database unavailable, query scenarios will be skipped")
		} else {
			defer pool.Close()
			queryExec = db.NewQueryExecutor(pool, time.Duration(cfg.Database.QueryTimeoutMs)*time.Millisecond)
		}
	}

	orch := scenario.New(cfg, httpExec, queryExec, log)
	ctx := context.Background()

	var outcomes []scenario.RunOutcome

	switch command {
	case "suite":
		outcomes = orch.RunSuite(ctx)
	case "spike":
		outcomes = []scenario.RunOutcome{orch.RunSpike(ctx)}
	case "endurance":
		d := viper.GetDuration("duration")
		if d <= 0 {
			d = time.Duration(cfg.Endurance.DurationSec) * time.Second
		}
		outcomes = []scenario.RunOutcome{orch.RunEndurance(ctx, d)}
	case "monitor":
		d := viper.GetDuration("duration")
		if d <= 0 {
			d = defaultMonitorWindow
		}
		outcomes = []scenario.RunOutcome{orch.Monitor(ctx, d)}
	default:
		sc, ok := cfg.Scenario(command)
		if !ok {
			err = errors.Errorf("unknown scenario %q", command)
			log.WithError(err).Error("nothing to run")
			return
		}
		outcomes = []scenario.RunOutcome{orch.RunScenario(ctx, sc)}
	}

	runs := scenario.CompletedRuns(outcomes)

	rep := report.Build(cfg.Environment, report.Thresholds{
		MaxAvgLatencyMs:     cfg.Thresholds.MaxAvgLatencyMs,
		MaxErrorRatePercent: cfg.Thresholds.MaxErrorRatePercent,
	}, runs)

	log.WithFields(logrus.Fields{
		"grade":     rep.Grade.Letter,
		"score":     rep.Grade.Score,
		"ready":     rep.Readiness.Ready,
		"scenarios": len(rep.Scenarios),
	}).Info("report built")

	if cfg.RedisAddress != "" {
		store := storage.NewRedis(redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddress,
			Password: cfg.RedisAuth,
		}))

		if err = store.SaveReport(rep); err != nil {
			log.WithError(err).Error("failed to save report")
			return
		}

		log.WithField("report", rep.ID).Info("report saved")
		return
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err = enc.Encode(rep); err != nil {
		log.WithError(err).Error("failed to write report")
	}
}
