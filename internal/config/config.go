package config

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// MCP_TRANSPORT 可选的传输方式。
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// AUDIO_PROVIDER 可选的音频理解服务。
const (
	ProviderGemini = "gemini"
	ProviderArk    = "ark"
)

// DefaultGeminiModel 在未设置 GEMINI_MODEL 时使用。
const DefaultGeminiModel = "gemini-3-pro-preview"

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Session SessionConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Session: session}, nil
}

// ServerConfig 描述工具的暴露方式（stdio 或 HTTP）。
type ServerConfig struct {
	Transport string
	Addr      string
	Path      string
}

func loadServerConfig() (ServerConfig, error) {
	transport := strings.ToLower(getEnvOrDefault("MCP_TRANSPORT", TransportStdio))
	switch transport {
	case TransportStdio, TransportHTTP:
	default:
		return ServerConfig{}, fmt.Errorf("invalid MCP_TRANSPORT value: %q (want %q or %q)", transport, TransportStdio, TransportHTTP)
	}

	host := getEnvOrDefault("HOST", "127.0.0.1")
	port := getEnvOrDefault("PORT", "8000")
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	// 允许传入 "mcp" 或 "/mcp"。
	path := getEnvOrDefault("MCP_HTTP_PATH", "/mcp")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return ServerConfig{
		Transport: transport,
		Addr:      net.JoinHostPort(host, port),
		Path:      path,
	}, nil
}

// AIConfig 描述远端音频理解服务的配置。
type AIConfig struct {
	Provider string

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	ArkAPIKey    string
	ArkAccessKey string
	ArkSecretKey string
	ArkModel     string
	ArkBaseURL   string
	ArkRegion    string

	Temperature *float64
	MaxTokens   *int
}

// Enabled 表示所选服务是否提供了必需的凭证。
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderArk:
		return c.ArkModel != "" && (c.ArkAPIKey != "" || (c.ArkAccessKey != "" && c.ArkSecretKey != ""))
	default:
		return c.GeminiAPIKey != "" && c.GeminiModel != ""
	}
}

// NewChatModel 为 ark 服务创建聊天模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if c.Provider != ProviderArk || !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_MODEL and ARK_API_KEY or ARK_ACCESS_KEY/ARK_SECRET_KEY")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     c.ArkBaseURL,
		Region:      c.ArkRegion,
		APIKey:      c.ArkAPIKey,
		AccessKey:   c.ArkAccessKey,
		SecretKey:   c.ArkSecretKey,
		Model:       c.ArkModel,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("AUDIO_PROVIDER", ProviderGemini))
	switch provider {
	case ProviderGemini, ProviderArk:
	default:
		return AIConfig{}, fmt.Errorf("invalid AUDIO_PROVIDER value: %q (want %q or %q)", provider, ProviderGemini, ProviderArk)
	}

	temperature, err := parseOptionalFloatEnv("AI_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("AI_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		Provider:      provider,
		GeminiAPIKey:  strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:   getEnvOrDefault("GEMINI_MODEL", DefaultGeminiModel),
		GeminiBaseURL: strings.TrimSpace(os.Getenv("GEMINI_BASE_URL")),
		ArkAPIKey:     strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		ArkAccessKey:  strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		ArkSecretKey:  strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		ArkModel:      strings.TrimSpace(os.Getenv("ARK_MODEL")),
		ArkBaseURL:    getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		ArkRegion:     getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:   temperature,
		MaxTokens:     maxTokens,
	}, nil
}

// SessionConfig 限制会话数量与空闲时间，零值表示永不淘汰。
type SessionConfig struct {
	MaxSessions int
	IdleTTL     time.Duration
}

func loadSessionConfig() (SessionConfig, error) {
	var cfg SessionConfig

	maxSessions, err := parseOptionalIntEnv("SESSION_MAX")
	if err != nil {
		return SessionConfig{}, err
	}
	if maxSessions != nil {
		if *maxSessions < 0 {
			return SessionConfig{}, fmt.Errorf("invalid SESSION_MAX value %d: must not be negative", *maxSessions)
		}
		cfg.MaxSessions = *maxSessions
	}

	if raw := strings.TrimSpace(os.Getenv("SESSION_IDLE_TTL")); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return SessionConfig{}, fmt.Errorf("invalid SESSION_IDLE_TTL value %q: %w", raw, err)
		}
		if ttl < 0 {
			return SessionConfig{}, fmt.Errorf("invalid SESSION_IDLE_TTL value %q: must not be negative", raw)
		}
		cfg.IdleTTL = ttl
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
