package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jkoski/splitsecond/internal/game/ratelimit"
	"github.com/jkoski/splitsecond/internal/game/tournament"
)

// GameConfig is the yaml-tunable part of the server: round cadence, target
// range, leaderboard depth, and per-connection rate budgets. Endpoints come
// from the environment instead (appconfig).
type GameConfig struct {
	Tournament struct {
		PlaySeconds        int   `yaml:"play_seconds"`
		LeaderboardSeconds int   `yaml:"leaderboard_seconds"`
		TargetMinMs        int64 `yaml:"target_min_ms"`
		TargetMaxMs        int64 `yaml:"target_max_ms"`
		AutoRotate         *bool `yaml:"auto_rotate"`
		TopN               int64 `yaml:"top_n"`
	} `yaml:"tournament"`

	TickSeconds             int `yaml:"tick_seconds"`
	LeaderboardCacheSeconds int `yaml:"leaderboard_cache_seconds"`

	Session struct {
		SweepSeconds   int `yaml:"sweep_seconds"`
		MaxIdleSeconds int `yaml:"max_idle_seconds"`
	} `yaml:"session"`

	RateLimits map[string]RateLimitConfig `yaml:"rate_limits"`
}

// RateLimitConfig is one sliding-window budget.
type RateLimitConfig struct {
	Max           int `yaml:"max"`
	WindowSeconds int `yaml:"window_seconds"`
}

func loadGameConfig(path string) (*GameConfig, error) {
	var config GameConfig

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No file means defaults everywhere.
			return &config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &config, nil
}

func (c *GameConfig) coordinatorConfig() tournament.Config {
	cfg := tournament.DefaultConfig()
	if c.Tournament.PlaySeconds > 0 {
		cfg.PlayDuration = time.Duration(c.Tournament.PlaySeconds) * time.Second
	}
	if c.Tournament.LeaderboardSeconds > 0 {
		cfg.LeaderboardDuration = time.Duration(c.Tournament.LeaderboardSeconds) * time.Second
	}
	if c.Tournament.TargetMinMs > 0 {
		cfg.TargetMinMs = c.Tournament.TargetMinMs
	}
	if c.Tournament.TargetMaxMs > 0 {
		cfg.TargetMaxMs = c.Tournament.TargetMaxMs
	}
	if c.Tournament.AutoRotate != nil {
		cfg.AutoRotate = *c.Tournament.AutoRotate
	}
	if c.Tournament.TopN > 0 {
		cfg.TopN = c.Tournament.TopN
	}
	return cfg
}

func (c *GameConfig) rateBudgets() ratelimit.Budgets {
	budgets := ratelimit.DefaultBudgets()
	for name, rl := range c.RateLimits {
		if rl.Max <= 0 || rl.WindowSeconds <= 0 {
			continue
		}
		budgets[ratelimit.Kind(name)] = ratelimit.Budget{
			Max:    rl.Max,
			Window: time.Duration(rl.WindowSeconds) * time.Second,
		}
	}
	return budgets
}

func (c *GameConfig) tickInterval() time.Duration {
	if c.TickSeconds > 0 {
		return time.Duration(c.TickSeconds) * time.Second
	}
	return 10 * time.Second
}

func (c *GameConfig) cacheTTL() time.Duration {
	if c.LeaderboardCacheSeconds > 0 {
		return time.Duration(c.LeaderboardCacheSeconds) * time.Second
	}
	return 10 * time.Second
}

func (c *GameConfig) sessionSweepInterval() time.Duration {
	if c.Session.SweepSeconds > 0 {
		return time.Duration(c.Session.SweepSeconds) * time.Second
	}
	return time.Minute
}

func (c *GameConfig) sessionMaxIdle() time.Duration {
	if c.Session.MaxIdleSeconds > 0 {
		return time.Duration(c.Session.MaxIdleSeconds) * time.Second
	}
	return 30 * time.Minute
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
