package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Server types.
const (
	ServerTypeViya  = "SASVIYA"
	ServerTypeSAS9  = "SAS9"
	ServerTypeSASJS = "SASJS"
)

// Config file locations relative to the working and home directories.
const (
	LocalConfigFile  = "sasjs/sasjsconfig.json"
	GlobalConfigFile = ".sasjsrc"
)

// AccessTokenEnv is the environment variable holding the access token.
const AccessTokenEnv = "ACCESS_TOKEN"

// Target is a resolved server descriptor.
type Target struct {
	Name        string `json:"name" validate:"required"`
	ServerURL   string `json:"serverUrl" validate:"required,url"`
	ServerType  string `json:"serverType" validate:"required,oneof=SASVIYA SAS9 SASJS"`
	AppLoc      string `json:"appLoc" validate:"required,startswith=/"`
	ContextName string `json:"contextName,omitempty"`
	AccessToken string `json:"-"`

	// Source is the config file the target came from.
	Source string `json:"source"`
}

// Options control where targets are looked up.
type Options struct {
	// Target is the target name; empty means defaultTarget.
	Target string

	// ConfigFile is an explicit config file, skipping local/global lookup.
	ConfigFile string

	// WorkDir holds ./sasjs/sasjsconfig.json and the .env files (default: cwd).
	WorkDir string

	// HomeDir holds .sasjsrc (default: user home).
	HomeDir string
}

// rawTarget is a target as written in a config file.
type rawTarget struct {
	Name          string `mapstructure:"name"`
	ServerURL     string `mapstructure:"serverUrl"`
	ServerType    string `mapstructure:"serverType"`
	AppLoc        string `mapstructure:"appLoc"`
	TgtDeployVars struct {
		ContextName string `mapstructure:"contextName"`
	} `mapstructure:"tgtDeployVars"`
	AuthConfig struct {
		AccessToken string `mapstructure:"access_token"`
	} `mapstructure:"authConfig"`
}

// file is one parsed config file.
type file struct {
	path          string
	defaultTarget string
	targets       []rawTarget
}

// Load resolves, validates and returns the requested target with its token.
func Load(opts Options) (*Target, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	files, err := readFiles(opts)
	if err != nil {
		return nil, err
	}

	name := opts.Target
	if name == "" {
		name = defaultTarget(files)
	}

	raw, source, ok := findTarget(files, name)
	if !ok {
		if name == "" {
			return nil, fmt.Errorf("%w: no target given and no defaultTarget set", ErrTargetNotFound)
		}
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, name)
	}

	target := raw.toTarget(source)
	if err := Validate(target); err != nil {
		return nil, err
	}

	token, err := accessToken(opts.WorkDir, target.Name)
	if err != nil {
		return nil, err
	}
	if token == "" {
		token = raw.AuthConfig.AccessToken
	}
	target.AccessToken = token

	return target, nil
}

// List returns every resolvable target sorted by name, local ones first
// when a name is defined twice. Tokens are not resolved.
func List(opts Options) ([]Target, string, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, "", err
	}

	files, err := readFiles(opts)
	if err != nil {
		return nil, "", err
	}

	seen := make(map[string]bool)
	targets := make([]Target, 0)
	for _, f := range files {
		for _, raw := range f.targets {
			if seen[raw.Name] {
				continue
			}
			seen[raw.Name] = true
			targets = append(targets, *raw.toTarget(f.path))
		}
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].Name < targets[j].Name })

	return targets, defaultTarget(files), nil
}

// RequireToken fails when the target has no access token.
func (t *Target) RequireToken() error {
	if t.AccessToken == "" {
		return ErrNoAccessToken
	}
	return nil
}

func (o Options) withDefaults() (Options, error) {
	if o.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return o, fmt.Errorf("get working directory: %w", err)
		}
		o.WorkDir = wd
	}
	if o.HomeDir == "" && o.ConfigFile == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			o.HomeDir = home
		}
	}
	return o, nil
}

// readFiles returns the config files in precedence order.
func readFiles(opts Options) ([]file, error) {
	var paths []string
	if opts.ConfigFile != "" {
		paths = []string{opts.ConfigFile}
	} else {
		paths = []string{filepath.Join(opts.WorkDir, LocalConfigFile)}
		if opts.HomeDir != "" {
			paths = append(paths, filepath.Join(opts.HomeDir, GlobalConfigFile))
		}
	}

	files := make([]file, 0, len(paths))
	for _, path := range paths {
		f, err := readFile(path)
		if errors.Is(err, fs.ErrNotExist) && opts.ConfigFile == "" {
			continue
		}
		if err != nil {
			return nil, err
		}
		files = append(files, *f)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: looked in %s", ErrNoConfig, strings.Join(paths, ", "))
	}
	return files, nil
}

func readFile(path string) (*file, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		v.SetConfigType("yaml")
	default:
		// .sasjsrc has no extension and is JSON
		v.SetConfigType("json")
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	f := &file{
		path:          path,
		defaultTarget: v.GetString("defaultTarget"),
	}
	if err := v.UnmarshalKey("targets", &f.targets); err != nil {
		return nil, fmt.Errorf("parse targets in %s: %w", path, err)
	}
	return f, nil
}

func defaultTarget(files []file) string {
	for _, f := range files {
		if f.defaultTarget != "" {
			return f.defaultTarget
		}
	}
	return ""
}

func findTarget(files []file, name string) (rawTarget, string, bool) {
	if name == "" {
		return rawTarget{}, "", false
	}
	for _, f := range files {
		for _, t := range f.targets {
			if t.Name == name {
				return t, f.path, true
			}
		}
	}
	return rawTarget{}, "", false
}

func (r rawTarget) toTarget(source string) *Target {
	return &Target{
		Name:        r.Name,
		ServerURL:   strings.TrimRight(r.ServerURL, "/"),
		ServerType:  strings.ToUpper(r.ServerType),
		AppLoc:      r.AppLoc,
		ContextName: r.TgtDeployVars.ContextName,
		Source:      source,
	}
}

// accessToken reads ACCESS_TOKEN from the environment, then .env.<target>,
// then .env in dir.
func accessToken(dir, target string) (string, error) {
	if token := os.Getenv(AccessTokenEnv); token != "" {
		return token, nil
	}

	for _, name := range []string{".env." + target, ".env"} {
		env, err := godotenv.Read(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("read %s: %w", name, err)
		}
		if token := env[AccessTokenEnv]; token != "" {
			return token, nil
		}
	}
	return "", nil
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks the target fields.
func Validate(t *Target) error {
	err := getValidator().Struct(t)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}

	messages := make([]string, 0, len(verrs))
	for _, e := range verrs {
		messages = append(messages, e.Field()+": "+describe(e))
	}
	return fmt.Errorf("%w %q: %s", ErrInvalidTarget, t.Name, strings.Join(messages, "; "))
}

func describe(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of " + e.Param()
	case "startswith":
		return "must start with " + e.Param()
	default:
		return "failed " + e.Tag()
	}
}
