package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		t.Setenv("API_URL", "")
		cfg, err := InitConfig()
		require.NoError(t, err)
		assert.Equal(t, "5173", cfg.Handlers.Shell.Port)
		assert.Equal(t, 30*time.Second, cfg.Cache.StaleTime)
		assert.Equal(t, uint64(3), cfg.Cache.MaxRetries)
	})

	t.Run("APIURLOverride", func(t *testing.T) {
		t.Setenv("API_URL", "https://portal.example.gr")
		cfg, err := InitConfig()
		require.NoError(t, err)
		assert.Equal(t, "https://portal.example.gr", cfg.API.BaseURL)
	})
}
