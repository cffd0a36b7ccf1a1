package main

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type config struct {
	Discord struct {
		Token   string `mapstructure:"token"`
		Intents int64  `mapstructure:"intents"`
	} `mapstructure:"discord"`

	Bot struct {
		Channel string `mapstructure:"channel"`
		Webhook string `mapstructure:"webhook"`
	} `mapstructure:"bot"`

	Reconnect struct {
		Wait time.Duration `mapstructure:"wait"`
	} `mapstructure:"reconnect"`

	LogLevel string `mapstructure:"log_level"`
}

func loadConfig(path string) (*config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("reconnect.wait", 5*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("discord.intents", 1<<9|1<<15) // guild messages + message content

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Discord.Token == "" {
		return nil, fmt.Errorf("config: discord.token is required")
	}
	return &cfg, nil
}
