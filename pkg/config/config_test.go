package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	r, err := Load("", nil, zap.NewNop())
	require.NoError(t, err)
	s := r.Current()
	require.Equal(t, DefaultToken, s.Token)
	require.Equal(t, -1, s.DanmuLimit)
	require.Equal(t, 8, s.YoukuConcurrency)
	require.Equal(t, -1.0, s.WhiteRatio)
	require.Equal(t, 1, s.SearchCacheMinutes)
	require.Equal(t, "/^.{25,}$/", s.BlockedWords)
	require.Equal(t, DefaultSourceOrder, r.Derived().SourceOrder)
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("TOKEN: fromyaml\nGROUP_MINUTE: 2\n"), 0o644))
	t.Setenv("TOKEN", "fromenv")

	r, err := Load(yamlPath, nil, zap.NewNop())
	require.NoError(t, err)
	s := r.Current()
	// env wins over yaml
	require.Equal(t, "fromenv", s.Token)
	require.Equal(t, 2, s.GroupMinute)
}

func TestOverlayAliasesAndPatch(t *testing.T) {
	r, err := Load("", map[string]string{"danmuLimit": "300"}, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, 300, r.Current().DanmuLimit)

	persisted, err := r.Patch(map[string]string{"whiteRatio": "40", "SOURCE_ORDER": "tencent,nonsense,bilibili"})
	require.NoError(t, err)
	require.Equal(t, "40", persisted["WHITE_RATIO"])
	require.Equal(t, 40.0, r.Current().WhiteRatio)
	// Unknown source names are dropped
	require.Equal(t, []string{"tencent", "bilibili"}, r.Derived().SourceOrder)
}

func TestClamping(t *testing.T) {
	r, err := Load("", map[string]string{"YOUKU_CONCURRENCY": "99", "WHITE_RATIO": "-7"}, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, 16, r.Current().YoukuConcurrency)
	require.Equal(t, -1.0, r.Current().WhiteRatio)
}

func TestParseVODServers(t *testing.T) {
	servers := parseVODServers("main@https://vod1.example.com,https://vod2.example.com")
	require.Len(t, servers, 2)
	require.Equal(t, VODServer{Name: "main", URL: "https://vod1.example.com"}, servers[0])
	require.Equal(t, "vod-2", servers[1].Name)
}

func TestParsePalette(t *testing.T) {
	palette := parsePalette("#FF0000,00FF00,nothex", zap.NewNop())
	require.Equal(t, []int{0xFF0000, 0x00FF00}, palette)
}

func TestEpisodeFilterCompile(t *testing.T) {
	r, err := Load("", map[string]string{"EPISODE_TITLE_FILTER": "预告|花絮"}, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, r.Derived().EpisodeFilter)
	require.True(t, r.Derived().EpisodeFilter.MatchString("第1期预告"))

	// Invalid filter is dropped, not fatal
	r, err = Load("", map[string]string{"EPISODE_TITLE_FILTER": "[broken"}, zap.NewNop())
	require.NoError(t, err)
	require.Nil(t, r.Derived().EpisodeFilter)
}
