package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ApplyEnv loads envPath (or ./.env when empty) if present and lets
// TICK_* environment variables override the file configuration
func (c *TraderConfig) ApplyEnv(envPath string) {
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("TICK_TRADER_ID"); v != "" {
		c.System.TraderID = v
	}
	if v := os.Getenv("TICK_NATS_ADDR"); v != "" {
		c.Transport.NATSAddr = v
	}
	if v := os.Getenv("TICK_GRPC_ADDR"); v != "" {
		c.Transport.GRPCAddr = v
	}
	if v := os.Getenv("TICK_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.API.Port = port
			c.API.Enabled = true
		}
	}
	if v := os.Getenv("TICK_STORE_PATH"); v != "" {
		c.Store.Path = v
		c.Store.Enabled = true
	}
	if v := os.Getenv("TICK_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TICK_BUDGET_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Engine.TickBudget = time.Duration(ms) * time.Millisecond
		}
	}
}
