package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	DatabaseURL string

	RedisAddr       string
	RedisPassword   string
	RedisTLS        bool
	ResourceGateTTL time.Duration

	// Reasoning provider
	LLMProvider          string
	OpenAIAPIKey         string
	OpenAIModel          string
	OpenAIBaseURL        string
	BedrockModelID       string
	GeminiAPIKey         string
	GeminiModelID        string
	ReasoningTimeout     time.Duration
	ReasoningTemperature float32
	HistoryMaxTurns      int
	TurnAppendAttempts   int

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	AssetsBucket        string
	SignedURLTTL        time.Duration

	AuthJWTSecret      string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	// Speech collaborators
	WhisperAPIKey     string
	WhisperModel      string
	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string
	ElevenLabsModelID string
	SpeechTimeout     time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	openAIKey := getEnv("OPENAI_API_KEY", "")
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:       getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisTLS:        getEnvAsBool("REDIS_TLS", false),
		ResourceGateTTL: getEnvAsDuration("RESOURCE_GATE_TTL", 0),

		LLMProvider:          strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "openai"))),
		OpenAIAPIKey:         openAIKey,
		OpenAIModel:          getEnv("OPENAI_GPT_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:        getEnv("OPENAI_BASE_URL", ""),
		BedrockModelID:       getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:        getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		ReasoningTimeout:     getEnvAsDuration("REASONING_TIMEOUT", 60*time.Second),
		ReasoningTemperature: float32(getEnvAsFloat("REASONING_TEMPERATURE", 0.3)),
		HistoryMaxTurns:      getEnvAsInt("HISTORY_MAX_TURNS", 10),
		TurnAppendAttempts:   getEnvAsInt("TURN_APPEND_ATTEMPTS", 3),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		AssetsBucket:        getEnv("ERSIM_ASSETS_BUCKET", ""),
		SignedURLTTL:        getEnvAsDuration("SIGNED_URL_TTL", 10*time.Minute),

		AuthJWTSecret:      getEnv("AUTH_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),

		// Whisper shares the OpenAI key unless a dedicated one is set.
		WhisperAPIKey:     getEnv("WHISPER_API_KEY", openAIKey),
		WhisperModel:      getEnv("WHISPER_MODEL", "whisper-1"),
		ElevenLabsAPIKey:  getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID: getEnv("ELEVENLABS_VOICE_ID", "EXAVITQu4vr4xnSDxMaL"),
		ElevenLabsModelID: getEnv("ELEVENLABS_MODEL_ID", "eleven_multilingual_v2"),
		SpeechTimeout:     getEnvAsDuration("SPEECH_TIMEOUT", 60*time.Second),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
