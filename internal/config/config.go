package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/nfrund/wirecall/internal/tracing"
)

// Config holds all configuration for a node.
type Config struct {
	NodeID    string `validate:"required"`
	LogFormat string `validate:"oneof=text json"`
	LogLevel  string `validate:"oneof=debug info warn error"`

	IPCCapacity  int   `validate:"min=1"`
	MemoryBuffer int64 `validate:"min=0"`

	GossipListen    []string `validate:"dive,required"`
	GossipBootstrap []string `validate:"dive,required"`
	GRPCListen      string   `validate:"omitempty,hostname_port"`

	AdminAddr      string  `validate:"omitempty,hostname_port"`
	AdminRateLimit float64 `validate:"min=0"`
	SchemaFile     string

	Tracing tracing.Config
}

// Default returns the configuration used when no variable is set.
func Default() *Config {
	return &Config{
		NodeID:         uuid.NewString(),
		LogFormat:      "text",
		LogLevel:       "debug",
		IPCCapacity:    1024,
		MemoryBuffer:   256,
		AdminAddr:      "127.0.0.1:8090",
		AdminRateLimit: 20,
		Tracing:        tracing.DefaultConfig(),
	}
}

// New loads a .env file if present and reads the configuration from the
// environment.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, relying on environment variables")
	}
	return FromEnv(os.Getenv)
}

// FromEnv reads the configuration through getenv and validates it.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := Default()
	p := parser{getenv: getenv}

	p.str("WIRECALL_NODE_ID", &cfg.NodeID)
	p.str("LOG_FORMAT", &cfg.LogFormat)
	p.str("LOG_LEVEL", &cfg.LogLevel)
	p.int("WIRECALL_IPC_CAPACITY", &cfg.IPCCapacity)
	p.int64("WIRECALL_MEMORY_BUFFER", &cfg.MemoryBuffer)
	p.list("WIRECALL_GOSSIP_LISTEN", &cfg.GossipListen)
	p.list("WIRECALL_GOSSIP_BOOTSTRAP", &cfg.GossipBootstrap)
	p.str("WIRECALL_GRPC_LISTEN", &cfg.GRPCListen)
	p.str("WIRECALL_ADMIN_ADDR", &cfg.AdminAddr)
	p.float("WIRECALL_ADMIN_RATE_LIMIT", &cfg.AdminRateLimit)
	p.str("WIRECALL_SCHEMA_FILE", &cfg.SchemaFile)
	p.bool("WIRECALL_TRACING_ENABLED", &cfg.Tracing.Enabled)
	p.str("WIRECALL_TRACING_SERVICE_NAME", &cfg.Tracing.ServiceName)
	p.str("WIRECALL_TRACING_ZIPKIN_URL", &cfg.Tracing.ZipkinURL)
	if p.err != nil {
		return nil, p.err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// GossipEnabled reports whether the gossip media should be started.
func (c *Config) GossipEnabled() bool {
	return len(c.GossipListen) > 0
}

// parser keeps the first conversion error.
type parser struct {
	getenv func(string) string
	err    error
}

func (p *parser) str(key string, dst *string) {
	if v := p.getenv(key); v != "" {
		*dst = v
	}
}

func (p *parser) int(key string, dst *int) {
	v := p.getenv(key)
	if v == "" || p.err != nil {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", key, err)
		return
	}
	*dst = n
}

func (p *parser) int64(key string, dst *int64) {
	v := p.getenv(key)
	if v == "" || p.err != nil {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", key, err)
		return
	}
	*dst = n
}

func (p *parser) float(key string, dst *float64) {
	v := p.getenv(key)
	if v == "" || p.err != nil {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", key, err)
		return
	}
	*dst = f
}

func (p *parser) bool(key string, dst *bool) {
	v := p.getenv(key)
	if v == "" || p.err != nil {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", key, err)
		return
	}
	*dst = b
}

func (p *parser) list(key string, dst *[]string) {
	v := p.getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}
