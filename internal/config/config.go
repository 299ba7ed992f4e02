package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken    string         `yaml:"discord_token"`
	GuildID         string         `yaml:"guild_id"`
	DatabasePath    string         `yaml:"database_path"`
	PermissionsPath string         `yaml:"permissions_path"`
	LogLevel        string         `yaml:"log_level"`
	AuditChannel    string         `yaml:"audit_channel"`
	LeaderRoleName  string         `yaml:"leader_role_name"`
	WarnLimit       int            `yaml:"warn_limit"`
	Health          HealthConfig   `yaml:"health"`
	Workflow        WorkflowConfig `yaml:"workflow"`
	Tickets         TicketConfig   `yaml:"tickets"`
	EmbedColors     EmbedColors    `yaml:"embed_colors"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type WorkflowConfig struct {
	TimeoutSeconds    int `yaml:"timeout_seconds"`
	CloseGraceSeconds int `yaml:"close_grace_seconds"`
}

type TicketConfig struct {
	PanelChannel    string           `yaml:"panel_channel"`
	LiveCategory    string           `yaml:"live_category"`
	ArchiveCategory string           `yaml:"archive_category"`
	Categories      []TicketCategory `yaml:"categories"`
}

type TicketCategory struct {
	ID         string           `yaml:"id"`
	Label      string           `yaml:"label"`
	Prompt     string           `yaml:"prompt"`
	StaffRoles []string         `yaml:"staff_roles"`
	Responses  []TicketResponse `yaml:"responses"`
}

type TicketResponse struct {
	ID           string   `yaml:"id"`
	Label        string   `yaml:"label"`
	Content      string   `yaml:"content"`
	ImagePath    string   `yaml:"image_path"`
	ImageDir     string   `yaml:"image_dir"`
	Reward       int64    `yaml:"reward"`
	AllowedRoles []string `yaml:"allowed_roles"`
	Repeatable   bool     `yaml:"repeatable"`
}

type EmbedColors struct {
	Action  int `yaml:"action"`
	Warning int `yaml:"warning"`
	Error   int `yaml:"error"`
}

func DefaultConfig() Config {
	return Config{
		DatabasePath:    "/data/fractionbot.db",
		PermissionsPath: "permissions.json",
		LogLevel:        "info",
		LeaderRoleName:  "Leader",
		WarnLimit:       3,
		Health:          HealthConfig{Enabled: false, Addr: ":8080"},
		Workflow:        WorkflowConfig{TimeoutSeconds: 60, CloseGraceSeconds: 5},
		EmbedColors: EmbedColors{
			Action:  0x2ECC71,
			Warning: 0xF59E0B,
			Error:   0xEF4444,
		},
	}
}

func Load() (Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}
	if cfg.WarnLimit <= 0 {
		cfg.WarnLimit = 3
	}
	if cfg.Workflow.TimeoutSeconds <= 0 {
		cfg.Workflow.TimeoutSeconds = 60
	}
	if cfg.Workflow.CloseGraceSeconds < 0 {
		cfg.Workflow.CloseGraceSeconds = 0
	}
	if err := validateTickets(cfg.Tickets); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateTickets(tickets TicketConfig) error {
	seen := make(map[string]struct{}, len(tickets.Categories))
	for _, category := range tickets.Categories {
		if category.ID == "" {
			return errors.New("ticket category id is required")
		}
		if _, ok := seen[category.ID]; ok {
			return fmt.Errorf("duplicate ticket category %q", category.ID)
		}
		seen[category.ID] = struct{}{}
		responses := make(map[string]struct{}, len(category.Responses))
		for _, response := range category.Responses {
			if response.ID == "" {
				return fmt.Errorf("ticket category %q has a response without id", category.ID)
			}
			if _, ok := responses[response.ID]; ok {
				return fmt.Errorf("duplicate response %q in category %q", response.ID, category.ID)
			}
			responses[response.ID] = struct{}{}
			if response.Reward < 0 {
				return fmt.Errorf("response %q has a negative reward", response.ID)
			}
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.GuildID = envString("GUILD_ID", cfg.GuildID)
	cfg.DatabasePath = envString("DATABASE_PATH", cfg.DatabasePath)
	cfg.PermissionsPath = envString("PERMISSIONS_PATH", cfg.PermissionsPath)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.AuditChannel = envString("AUDIT_CHANNEL", cfg.AuditChannel)
	cfg.LeaderRoleName = envString("LEADER_ROLE_NAME", cfg.LeaderRoleName)
	cfg.WarnLimit = envInt("WARN_LIMIT", cfg.WarnLimit)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.Workflow.TimeoutSeconds = envInt("WORKFLOW_TIMEOUT_SECONDS", cfg.Workflow.TimeoutSeconds)
	cfg.Workflow.CloseGraceSeconds = envInt("CLOSE_GRACE_SECONDS", cfg.Workflow.CloseGraceSeconds)
	cfg.Tickets.PanelChannel = envString("TICKET_PANEL_CHANNEL", cfg.Tickets.PanelChannel)
	cfg.Tickets.LiveCategory = envString("TICKET_LIVE_CATEGORY", cfg.Tickets.LiveCategory)
	cfg.Tickets.ArchiveCategory = envString("TICKET_ARCHIVE_CATEGORY", cfg.Tickets.ArchiveCategory)
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl := strings.ToLower(level)
	switch lvl {
	case "debug", "info", "warn", "error":
		cfg.Level = zap.NewAtomicLevelAt(parseLevel(lvl))
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

var hexColorPattern = regexp.MustCompile(`^[0-9a-fA-F]{6}$`)

// ParseHexColor converts a 6-digit hex string, with or without a leading
// '#', into an integer color value.
func ParseHexColor(value string) (int, error) {
	trimmed := strings.TrimPrefix(value, "#")
	if !hexColorPattern.MatchString(trimmed) {
		return 0, fmt.Errorf("invalid color %q: expected 6 hex digits", value)
	}
	parsed, err := strconv.ParseInt(trimmed, 16, 32)
	if err != nil {
		return 0, err
	}
	return int(parsed), nil
}

// Category returns the ticket category with the given id.
func (t TicketConfig) Category(id string) (TicketCategory, bool) {
	for _, category := range t.Categories {
		if category.ID == id {
			return category, true
		}
	}
	return TicketCategory{}, false
}

// Response returns the response option with the given id.
func (c TicketCategory) Response(id string) (TicketResponse, bool) {
	for _, response := range c.Responses {
		if response.ID == id {
			return response, true
		}
	}
	return TicketResponse{}, false
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}
