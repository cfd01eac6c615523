package config_test

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featden/featd/internal/config"
)

func TestYAMLLoaderLoad(t *testing.T) {
	tests := map[string]struct {
		yaml    string
		expErr  bool
		expWork string
		expHost string
	}{
		"An empty file should get full defaults.": {
			yaml:    "",
			expWork: "docker",
			expHost: "github.com",
		},

		"A full config should be honored.": {
			yaml: `
agent:
  provider: claude
  anthropic:
    api_key: test-key
    model: claude-sonnet-4-20250514
workspace:
  provider: fake
scm:
  host: github.example.com
  api_base_url: https://github.example.com/api/v3
`,
			expWork: "fake",
			expHost: "github.example.com",
		},

		"The claude agent without an API key should fail.": {
			yaml: `
agent:
  provider: claude
`,
			expErr: true,
		},

		"An unknown agent provider should fail.": {
			yaml: `
agent:
  provider: skynet
`,
			expErr: true,
		},

		"An unknown workspace provider should fail.": {
			yaml: `
workspace:
  provider: bare-metal
`,
			expErr: true,
		},

		"Malformed YAML should fail.": {
			yaml:   "agent: [broken",
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			fs := fstest.MapFS{"featd.yaml": &fstest.MapFile{Data: []byte(test.yaml)}}
			loader := config.NewYAMLLoader(fs)

			cfg, err := loader.Load(context.TODO(), "featd.yaml")
			if test.expErr {
				assert.Error(err)
				return
			}
			require.NoError(err)
			assert.Equal(test.expWork, cfg.Workspace.Provider)
			assert.Equal(test.expHost, cfg.SCM.Host)
		})
	}
}

func TestYAMLLoaderMissingFile(t *testing.T) {
	loader := config.NewYAMLLoader(fstest.MapFS{})
	_, err := loader.Load(context.TODO(), "missing.yaml")
	assert.Error(t, err)
}
