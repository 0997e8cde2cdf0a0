package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const localConfig = `{
  "defaultTarget": "viya",
  "targets": [
    {
      "name": "viya",
      "serverUrl": "https://viya.local/",
      "serverType": "SASVIYA",
      "appLoc": "/Public/app",
      "tgtDeployVars": { "contextName": "My compute context" }
    },
    {
      "name": "broken",
      "serverUrl": "not a url",
      "serverType": "SASVIYA",
      "appLoc": "relative/app"
    }
  ]
}`

const globalConfig = `{
  "defaultTarget": "global",
  "targets": [
    {
      "name": "viya",
      "serverUrl": "https://viya.global",
      "serverType": "SASVIYA",
      "appLoc": "/Global/app"
    },
    {
      "name": "global",
      "serverUrl": "https://global.example.com",
      "serverType": "sas9",
      "appLoc": "/Global",
      "authConfig": { "access_token": "from-config" }
    }
  ]
}`

type dirs struct {
	work string
	home string
}

func setup(t *testing.T, local, global string) dirs {
	t.Helper()
	t.Setenv(AccessTokenEnv, "")

	d := dirs{work: t.TempDir(), home: t.TempDir()}
	if local != "" {
		write(t, filepath.Join(d.work, LocalConfigFile), local)
	}
	if global != "" {
		write(t, filepath.Join(d.home, GlobalConfigFile), global)
	}
	return d
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func (d dirs) opts(target string) Options {
	return Options{Target: target, WorkDir: d.work, HomeDir: d.home}
}

func TestLoad_LocalTakesPrecedence(t *testing.T) {
	d := setup(t, localConfig, globalConfig)

	target, err := Load(d.opts("viya"))
	require.NoError(t, err)
	require.Equal(t, "https://viya.local", target.ServerURL)
	require.Equal(t, "/Public/app", target.AppLoc)
	require.Equal(t, "My compute context", target.ContextName)
	require.Equal(t, filepath.Join(d.work, LocalConfigFile), target.Source)
}

func TestLoad_DefaultTarget(t *testing.T) {
	d := setup(t, localConfig, globalConfig)

	target, err := Load(d.opts(""))
	require.NoError(t, err)
	require.Equal(t, "viya", target.Name, "local defaultTarget wins")

	d = setup(t, "", globalConfig)
	target, err = Load(d.opts(""))
	require.NoError(t, err)
	require.Equal(t, "global", target.Name)
	require.Equal(t, ServerTypeSAS9, target.ServerType)
	require.Equal(t, "from-config", target.AccessToken)
}

func TestLoad_AccessTokenOrder(t *testing.T) {
	d := setup(t, localConfig, "")

	target, err := Load(d.opts("viya"))
	require.NoError(t, err)
	require.Empty(t, target.AccessToken)
	require.ErrorIs(t, target.RequireToken(), ErrNoAccessToken)

	write(t, filepath.Join(d.work, ".env"), "ACCESS_TOKEN=from-dotenv\n")
	target, err = Load(d.opts("viya"))
	require.NoError(t, err)
	require.Equal(t, "from-dotenv", target.AccessToken)

	write(t, filepath.Join(d.work, ".env.viya"), "ACCESS_TOKEN=from-target-env\n")
	target, err = Load(d.opts("viya"))
	require.NoError(t, err)
	require.Equal(t, "from-target-env", target.AccessToken)

	t.Setenv(AccessTokenEnv, "from-process")
	target, err = Load(d.opts("viya"))
	require.NoError(t, err)
	require.Equal(t, "from-process", target.AccessToken)
	require.NoError(t, target.RequireToken())
}

func TestLoad_ExplicitYAMLFile(t *testing.T) {
	d := setup(t, localConfig, "")
	path := filepath.Join(t.TempDir(), "targets.yaml")
	write(t, path, `
defaultTarget: dev
targets:
  - name: dev
    serverUrl: https://dev.example.com
    serverType: SASVIYA
    appLoc: /Dev
`)

	target, err := Load(Options{ConfigFile: path, WorkDir: d.work})
	require.NoError(t, err)
	require.Equal(t, "dev", target.Name)
	require.Equal(t, path, target.Source)

	_, err = Load(Options{ConfigFile: path, WorkDir: d.work, Target: "viya"})
	require.ErrorIs(t, err, ErrTargetNotFound, "explicit file skips the local config")
}

func TestLoad_Errors(t *testing.T) {
	d := setup(t, localConfig, "")

	_, err := Load(d.opts("nope"))
	require.ErrorIs(t, err, ErrTargetNotFound)

	_, err = Load(d.opts("broken"))
	require.ErrorIs(t, err, ErrInvalidTarget)
	require.Contains(t, err.Error(), "serverUrl: must be a valid URL")
	require.Contains(t, err.Error(), "appLoc: must start with /")

	empty := setup(t, "", "")
	_, err = Load(empty.opts("viya"))
	require.ErrorIs(t, err, ErrNoConfig)

	_, err = Load(Options{ConfigFile: filepath.Join(t.TempDir(), "missing.json"), WorkDir: d.work})
	require.Error(t, err)
}

func TestList(t *testing.T) {
	d := setup(t, localConfig, globalConfig)

	targets, def, err := List(d.opts(""))
	require.NoError(t, err)
	require.Equal(t, "viya", def)
	require.Len(t, targets, 3)

	names := []string{targets[0].Name, targets[1].Name, targets[2].Name}
	require.Equal(t, []string{"broken", "global", "viya"}, names)
	require.Equal(t, "https://viya.local", targets[2].ServerURL, "local definition shadows global")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		target  Target
		wantErr bool
	}{
		{
			name:   "valid",
			target: Target{Name: "t", ServerURL: "https://x", ServerType: ServerTypeViya, AppLoc: "/a"},
		},
		{
			name:    "unknown server type",
			target:  Target{Name: "t", ServerURL: "https://x", ServerType: "OTHER", AppLoc: "/a"},
			wantErr: true,
		},
		{
			name:    "missing name",
			target:  Target{ServerURL: "https://x", ServerType: ServerTypeViya, AppLoc: "/a"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.target)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidTarget)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
