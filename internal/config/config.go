package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/infinitelandscape/server/internal/streaming"
)

// Config holds all configuration for the landscape server
type Config struct {
	Server    ServerConfig
	Terrain   TerrainConfig
	Viewer    ViewerConfig
	Streaming StreamingConfig
	Auth      AuthConfig
	Logging   LoggingConfig
	Profiling ProfilingConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host           string        `validate:"required"`
	Port           string        `validate:"required,numeric"`
	ReadTimeout    time.Duration `validate:"gt=0"`
	WriteTimeout   time.Duration `validate:"gt=0"`
	IdleTimeout    time.Duration `validate:"gt=0"`
	Environment    string        `validate:"oneof=development staging production test"`
	AllowedOrigins []string
	// RateLimit is requests per RateWindow per client IP.
	RateLimit  int           `validate:"min=1"`
	RateWindow time.Duration `validate:"gt=0"`
}

// TerrainConfig describes the chunk grid and its noise source.
// It can be overlaid from a YAML file named by TERRAIN_CONFIG_FILE.
type TerrainConfig struct {
	ChunkSize     float64 `yaml:"chunk_size" json:"chunk_size" validate:"gt=0"`
	NumChunks     int     `yaml:"num_chunks" json:"num_chunks" validate:"min=1,max=64"`
	WidthSegments int     `yaml:"width_segments" json:"width_segments" validate:"min=1,max=2048"`
	DepthSegments int     `yaml:"depth_segments" json:"depth_segments" validate:"min=1,max=2048"`
	Width         float64 `yaml:"width" json:"width" validate:"gt=0"`
	Scale         float64 `yaml:"scale" json:"scale" validate:"gt=0"`
	HeightScale   float64 `yaml:"height_scale" json:"height_scale" validate:"gte=0"`
	Seed          int64   `yaml:"seed" json:"seed"`
	Noise         string  `yaml:"noise" json:"noise" validate:"oneof=simplex perlin"`
	SampleMode    string  `yaml:"sample_mode" json:"sample_mode" validate:"oneof=local world"`
	ConfigFile    string  `yaml:"-" json:"-"`
}

// ViewerConfig holds autopilot settings
type ViewerConfig struct {
	Speed    float64       `validate:"gte=0"`
	TickRate time.Duration `validate:"gt=0"`
}

// StreamingConfig holds subscription and payload settings
type StreamingConfig struct {
	MaxSubscriptions int    `validate:"min=1"`
	MaxJumpChunks    int    `validate:"min=1"`
	GeometryFormat   string `validate:"oneof=binary_gzip binary_zstd json"`
	CompressionLevel int    `validate:"min=1,max=9"`
}

// AuthConfig holds stream token configuration.
// An empty TokenSecret disables token checks on the websocket.
type AuthConfig struct {
	TokenSecret     string
	TokenIssuer     string        `validate:"required"`
	TokenExpiration time.Duration `validate:"gt=0"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `validate:"oneof=debug info warn error"`
}

// ProfilingConfig toggles the in-process profiler
type ProfilingConfig struct {
	Enabled bool
}

// Load reads configuration from environment variables and .env file
// The .env file is loaded from the current working directory
func Load() (*Config, error) {
	// Environment variables can still be set directly
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found (this is OK if using environment variables): %v", err)
	}

	config := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnv("SERVER_PORT", "8080"),
			ReadTimeout:    getDurationEnv("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getDurationEnv("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getDurationEnv("SERVER_IDLE_TIMEOUT", 60*time.Second),
			Environment:    getEnv("ENVIRONMENT", "development"),
			AllowedOrigins: getListEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
			RateLimit:      getIntEnv("RATE_LIMIT", 1000),
			RateWindow:     getDurationEnv("RATE_WINDOW", time.Minute),
		},
		Terrain: TerrainConfig{
			ChunkSize:     getFloatEnv("TERRAIN_CHUNK_SIZE", 1000),
			NumChunks:     getIntEnv("TERRAIN_NUM_CHUNKS", 5),
			WidthSegments: getIntEnv("TERRAIN_WIDTH_SEGMENTS", 200),
			DepthSegments: getIntEnv("TERRAIN_DEPTH_SEGMENTS", 100),
			Width:         getFloatEnv("TERRAIN_WIDTH", 2000),
			Scale:         getFloatEnv("TERRAIN_SCALE", 0.1),
			HeightScale:   getFloatEnv("TERRAIN_HEIGHT_SCALE", 10),
			Seed:          getInt64Env("TERRAIN_SEED", 1337),
			Noise:         strings.ToLower(getEnv("TERRAIN_NOISE", "simplex")),
			SampleMode:    strings.ToLower(getEnv("TERRAIN_SAMPLE_MODE", "local")),
			ConfigFile:    getEnv("TERRAIN_CONFIG_FILE", ""),
		},
		Viewer: ViewerConfig{
			Speed:    getFloatEnv("VIEWER_SPEED", 1),
			TickRate: getDurationEnv("VIEWER_TICK_RATE", 16*time.Millisecond),
		},
		Streaming: StreamingConfig{
			MaxSubscriptions: getIntEnv("STREAM_MAX_SUBSCRIPTIONS", 64),
			MaxJumpChunks:    getIntEnv("STREAM_MAX_JUMP_CHUNKS", streaming.DefaultMaxJumpChunks),
			GeometryFormat:   strings.ToLower(getEnv("STREAM_GEOMETRY_FORMAT", "binary_gzip")),
			CompressionLevel: getIntEnv("STREAM_COMPRESSION_LEVEL", 6),
		},
		Auth: AuthConfig{
			TokenSecret:     getEnv("STREAM_TOKEN_SECRET", ""),
			TokenIssuer:     getEnv("STREAM_TOKEN_ISSUER", "infinite-landscape"),
			TokenExpiration: getDurationEnv("STREAM_TOKEN_EXPIRATION", time.Hour),
		},
		Logging: LoggingConfig{
			Level: strings.ToLower(getEnv("LOG_LEVEL", "info")),
		},
		Profiling: ProfilingConfig{
			Enabled: getBoolEnv("PROFILING_ENABLED", false),
		},
	}

	if config.Terrain.ConfigFile != "" {
		if err := config.Terrain.LoadFile(config.Terrain.ConfigFile); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// LoadFile overlays the fields present in a YAML terrain file.
func (t *TerrainConfig) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read terrain config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, t); err != nil {
		return fmt.Errorf("failed to parse terrain config %s: %w", path, err)
	}
	t.Noise = strings.ToLower(strings.TrimSpace(t.Noise))
	t.SampleMode = strings.ToLower(strings.TrimSpace(t.SampleMode))
	return nil
}

var validate = validator.New()

// Validate checks every section against its struct tags
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
			return errors.New(validationMessage(fieldErrors[0]))
		}
		return err
	}
	if c.Server.IsProduction() && c.Auth.TokenSecret == "" {
		return fmt.Errorf("STREAM_TOKEN_SECRET is required in production")
	}
	return nil
}

// validationMessage renders a field error as "Section.Field must ...".
func validationMessage(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s, got %v", field, fe.Param(), fe.Value())
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s, got %v", field, fe.Param(), fe.Value())
	case "max":
		return fmt.Sprintf("%s must be at most %s, got %v", field, fe.Param(), fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "numeric":
		return fmt.Sprintf("%s must be numeric, got %q", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// IsDevelopment returns true if running in development mode
func (c *ServerConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

// IsDebug reports whether per-chunk logging is on.
func (l LoggingConfig) IsDebug() bool {
	return l.Level == "debug"
}

// Address returns host:port for the HTTP listener.
func (s ServerConfig) Address() string {
	return s.Host + ":" + s.Port
}

// Helper functions for environment variable access

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: invalid integer value for %s: %s, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return intValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		log.Printf("Warning: invalid integer value for %s: %s, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return intValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("Warning: invalid float value for %s: %s, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return floatValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Warning: invalid boolean value for %s: %s, using default: %t", key, value, defaultValue)
		return defaultValue
	}
	return boolValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Warning: invalid duration value for %s: %s, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return duration
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
