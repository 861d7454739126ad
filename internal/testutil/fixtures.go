package testutil

import (
	"time"

	"github.com/infinitelandscape/server/internal/config"
)

// TestConfig returns a valid configuration with a small terrain grid so
// chunks build quickly in tests. Tokens are disabled.
func TestConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:           "127.0.0.1",
			Port:           "0",
			ReadTimeout:    5 * time.Second,
			WriteTimeout:   5 * time.Second,
			IdleTimeout:    30 * time.Second,
			Environment:    "test",
			AllowedOrigins: []string{"*"},
			RateLimit:      1000,
			RateWindow:     time.Minute,
		},
		Terrain: config.TerrainConfig{
			ChunkSize:     1000,
			NumChunks:     5,
			WidthSegments: 8,
			DepthSegments: 4,
			Width:         200,
			Scale:         0.1,
			HeightScale:   10,
			Seed:          42,
			Noise:         "simplex",
			SampleMode:    "local",
		},
		Viewer: config.ViewerConfig{
			Speed:    100,
			TickRate: 10 * time.Millisecond,
		},
		Streaming: config.StreamingConfig{
			MaxSubscriptions: 8,
			MaxJumpChunks:    64,
			GeometryFormat:   "binary_gzip",
			CompressionLevel: 6,
		},
		Auth: config.AuthConfig{
			TokenIssuer:     "infinite-landscape-test",
			TokenExpiration: time.Hour,
		},
		Logging: config.LoggingConfig{
			Level: "info",
		},
		Profiling: config.ProfilingConfig{
			Enabled: true,
		},
	}
}

// TestConfigWithTokens is TestConfig with stream tokens enabled.
func TestConfigWithTokens() *config.Config {
	cfg := TestConfig()
	cfg.Auth.TokenSecret = "test-stream-secret-key-for-testing-only"
	return cfg
}

// RandomString generates a random string of specified length
func RandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	seed := time.Now().UnixNano()
	for i := range b {
		seed = seed*1103515245 + 12345 // Simple LCG
		idx := int(seed % int64(len(charset)))
		if idx < 0 {
			idx = -idx
		}
		b[i] = charset[idx]
	}
	return string(b)
}

// RandomViewerLabel generates a session label
func RandomViewerLabel() string {
	return "viewer_" + RandomString(8)
}
