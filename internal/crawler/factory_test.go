package crawler

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/jobworker/config"
	"sjsage522/jobworker/helpers"
)

func TestDefaultSources(t *testing.T) {
	sources := DefaultSources(testConfig())
	require.Len(t, sources, 2)

	wuzzuf := sources[config.SourceWuzzuf]
	assert.Equal(t, StrategyStatic, wuzzuf.Strategy)
	assert.Equal(t, "https://wuzzuf.net", wuzzuf.BaseURL)
	assert.NotEmpty(t, wuzzuf.Selectors.Fragment)

	ft := sources[config.SourceFranceTravail]
	assert.Equal(t, StrategyInteractive, ft.Strategy)
	assert.Equal(t, "https://candidat.francetravail.fr", ft.BaseURL)
	assert.NotEmpty(t, ft.Selectors.NextControl)
	assert.NotNil(t, ft.CompanyLocation)
}

func TestNewAdapter(t *testing.T) {
	sources := DefaultSources(testConfig())
	deps := Dependencies{
		Fetcher:     helpers.NewFetcher(helpers.FetcherOptions{}),
		Pages:       &fakePages{page: &fakePage{}},
		PageTimeout: time.Second,
	}

	static, err := NewAdapter(sources[config.SourceWuzzuf], deps)
	require.NoError(t, err)
	assert.IsType(t, &StaticAdapter{}, static)
	assert.Equal(t, "Wuzzuf", static.Name())

	interactive, err := NewAdapter(sources[config.SourceFranceTravail], deps)
	require.NoError(t, err)
	assert.IsType(t, &InteractiveAdapter{}, interactive)
	assert.Equal(t, "https://candidat.francetravail.fr/offres/1", interactive.ResolveURL("/offres/1"))

	_, err = NewAdapter(sources[config.SourceFranceTravail], Dependencies{})
	assert.Error(t, err)

	_, err = NewAdapter(SourceConfig{Key: "odd", Strategy: "carrier-pigeon"}, deps)
	assert.Error(t, err)
}

func TestLoadSelectorOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selectors.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
wuzzuf:
  fragment: div.job-card
  title: h2 a
francetravail:
  next_control: "#zoneAfficherPlus a"
`), 0o644))

	sources := DefaultSources(testConfig())
	require.NoError(t, LoadSelectorOverrides(path, sources))

	assert.Equal(t, "div.job-card", sources[config.SourceWuzzuf].Selectors.Fragment)
	assert.Equal(t, "h2 a", sources[config.SourceWuzzuf].Selectors.Title)
	// untouched selectors keep their defaults
	assert.Equal(t, "a.css-ipsyv7", sources[config.SourceWuzzuf].Selectors.Company)
	assert.Equal(t, "#zoneAfficherPlus a", sources[config.SourceFranceTravail].Selectors.NextControl)
	assert.Equal(t, "li.result", sources[config.SourceFranceTravail].Selectors.Fragment)
}

func TestLoadSelectorOverridesErrors(t *testing.T) {
	dir := t.TempDir()
	sources := DefaultSources(testConfig())

	assert.Error(t, LoadSelectorOverrides(filepath.Join(dir, "missing.yaml"), sources))

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("indeed:\n  title: h2\n"), 0o644))
	assert.Error(t, LoadSelectorOverrides(unknown, sources))

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("wuzzuf: [unclosed"), 0o644))
	assert.Error(t, LoadSelectorOverrides(broken, sources))
}
