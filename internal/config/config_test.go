package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"port": 8080, "jwt_secret": "s", "sources": [{"type": "rss", "data": {"url": "https://example.com/rss"}}]}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 1000, cfg.Chunk.MaxSize)
	require.Equal(t, DefaultSeparators, cfg.Chunk.Separators)
	require.Equal(t, "gemini", cfg.Embed.Provider)
	require.Equal(t, "models/embedding-001", cfg.Embed.Model)
	require.Equal(t, 3, cfg.Embed.MaxAttempts)
	require.Equal(t, "gemini-1.5-pro", cfg.Generate.Model)
	require.Equal(t, "0 8 * * *", cfg.Schedule.Rebuild)
	require.Equal(t, "local", cfg.FileStore.Type)
	require.Equal(t, "rss-0", cfg.Sources[0].Name)
	require.Equal(t, 4, cfg.Query.TopK)
	require.True(t, cfg.Index.ShouldLoadOnStart())
	require.False(t, cfg.Database.Enabled())
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing port", body: `{"jwt_secret": "s"}`},
		{name: "missing jwt secret", body: `{"port": 1}`},
		{name: "blank jwt secret", body: `{"port": 1, "jwt_secret": "  "}`},
		{name: "source without type", body: `{"port": 1, "jwt_secret": "s", "sources": [{"name": "x"}]}`},
		{name: "unknown store", body: `{"port": 1, "jwt_secret": "s", "file_store": {"type": "ftp"}}`},
		{name: "postgres store without database", body: `{"port": 1, "jwt_secret": "s", "file_store": {"type": "postgres"}}`},
		{name: "min score out of range", body: `{"port": 1, "jwt_secret": "s", "query": {"min_score": 2}}`},
		{name: "bad json", body: `{"port":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
		})
	}
}

func TestLoadGenerateInheritsEmbedProvider(t *testing.T) {
	path := writeConfig(t, `{"port": 1, "jwt_secret": "s", "embed": {"provider": "openai", "model": "text-embedding-3-small", "data": {"api_key": "k"}}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "openai", cfg.Generate.Provider)
	require.NotNil(t, cfg.Generate.Data)
}
