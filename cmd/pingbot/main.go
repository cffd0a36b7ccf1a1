package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/radovskyb/watcher"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/yonatandev/amaterasu"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logr.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		logr.Info("shutting down")
		cancel()
	}()

	rest := amaterasu.NewRESTClient(cfg.Discord.Token,
		amaterasu.WithRESTLogger(logr))
	webhooks := amaterasu.NewWebhookClient(
		amaterasu.WithWebhookLogger(logr))

	var pings atomic.Uint64
	session := amaterasu.NewSession(cfg.Discord.Token,
		amaterasu.WithSessionLogger(logr),
		amaterasu.WithIntents(cfg.Discord.Intents),
		amaterasu.WithEventHandler(func(event string, data []byte) {
			if event != "MESSAGE_CREATE" {
				return
			}
			var msg amaterasu.Message
			if err := jsoniter.Unmarshal(data, &msg); err != nil || msg.Author.Bot {
				return
			}
			if !strings.EqualFold(strings.TrimSpace(msg.Content), "ping") {
				return
			}

			replyCtx, done := context.WithTimeout(ctx, 10*time.Second)
			defer done()
			if _, err := rest.CreateMessage(replyCtx, msg.ChannelID, "pong"); err != nil {
				logr.Warn("reply failed", zap.Error(err))
				return
			}
			if n := pings.Add(1); cfg.Bot.Webhook != "" && n%100 == 0 {
				go reportMilestone(webhooks, cfg.Bot.Webhook, n)
			}
		}),
	)

	go watchConfig(*configPath, logr, func() {
		next, err := loadConfig(*configPath)
		if err != nil {
			logr.Warn("config reload failed", zap.Error(err))
			return
		}
		cfg.Bot = next.Bot
		logr.Info("config reloaded")
	})

	runSession(ctx, logr, session, cfg.Reconnect.Wait)
}

// runSession drives Connect's reconnect boolean: transient endings
// redial after a pause, terminal ones exit.
func runSession(ctx context.Context, logr *zap.Logger, session *amaterasu.Session, wait time.Duration) {
	for {
		reconnect, err := session.Connect(ctx)
		if err != nil {
			logr.Warn("session ended", zap.Error(err))
		}
		if !reconnect || ctx.Err() != nil {
			return
		}
		logr.Info("reconnecting", zap.Duration("wait", wait))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func reportMilestone(webhooks *amaterasu.WebhookClient, url string, n uint64) {
	_ = webhooks.Execute(url, &amaterasu.WebhookPayload{
		Embeds: []amaterasu.Embed{{
			Title:       "pingbot",
			Description: "still alive",
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
			Fields: []amaterasu.EmbedField{
				{Name: "pings served", Value: formatCount(n), Inline: true},
			},
		}},
	})
}

func watchConfig(path string, logr *zap.Logger, reload func()) {
	w := watcher.New()

	go func() {
		for {
			select {
			case <-w.Event:
				reload()
			case err := <-w.Error:
				logr.Warn("config watcher error", zap.Error(err))
			case <-w.Closed:
				return
			}
		}
	}()

	if err := w.Add(path); err != nil {
		logr.Warn("config watch failed", zap.Error(err))
		return
	}
	if err := w.Start(time.Second); err != nil {
		logr.Warn("config watcher stopped", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func formatCount(n uint64) string {
	var raw []byte
	for n > 0 || len(raw) == 0 {
		raw = append(raw, byte('0'+n%10))
		n /= 10
	}
	var out []byte
	for i := len(raw) - 1; i >= 0; i-- {
		out = append(out, raw[i])
		if i > 0 && i%3 == 0 {
			out = append(out, ',')
		}
	}
	return string(out)
}
