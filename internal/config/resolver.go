// Package config resolves convoscope settings from built-in defaults, a
// YAML file, the environment and CLI flags, in that order of precedence.
// Every resolved value remembers where it came from.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

// ResolveOptions carries CLI flag values. Empty fields are unset.
type ResolveOptions struct {
	ConfigPath   string
	CLIDBPath    string
	CLIStrategy  string
	CLIWorkers   string
	CLILexicon   string
	CLIKnowledge string
	CLIModel     string
	CLILogLevel  string
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath      ResolvedValue `json:"db_path"`
	LexiconPath ResolvedValue `json:"lexicon_path"`
	APIKey      ResolvedValue `json:"api_key"`

	Settings Settings `json:"settings"`

	// Provenance maps dotted setting keys (e.g. "intent.strategy") to the
	// value and source that set them. Keys left at their default are absent.
	Provenance map[string]ResolvedValue `json:"provenance,omitempty"`
}

type fileConfig struct {
	DBPath   string   `yaml:"db_path"`
	Lexicon  string   `yaml:"lexicon"`
	APIKey   string   `yaml:"api_key"`
	Settings Settings `yaml:",inline"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".convoscope", "config.yaml")
}

// setting binds a dotted key to its environment variable, its CLI value and
// a setter that parses a raw string into Settings.
type setting struct {
	key string
	env string
	cli func(ResolveOptions) string
	set func(*Settings, string) error
}

var settingTable = []setting{
	{"workers", "CONVOSCOPE_WORKERS", func(o ResolveOptions) string { return o.CLIWorkers },
		func(s *Settings, v string) (err error) { s.Workers, err = cast.ToIntE(v); return }},
	{"seed", "CONVOSCOPE_SEED", nil,
		func(s *Settings, v string) (err error) { s.Seed, err = cast.ToInt64E(v); return }},
	{"assemble.fallback", "CONVOSCOPE_FALLBACK", nil,
		func(s *Settings, v string) error { s.Assemble.Fallback = v; return nil }},
	{"quality.threshold", "CONVOSCOPE_QUALITY_THRESHOLD", nil,
		func(s *Settings, v string) (err error) { s.Quality.Threshold, err = cast.ToFloat64E(v); return }},
	{"intent.strategy", "CONVOSCOPE_STRATEGY", func(o ResolveOptions) string { return o.CLIStrategy },
		func(s *Settings, v string) error { s.Intent.Strategy = strings.ToLower(v); return nil }},
	{"knowledge.path", "CONVOSCOPE_KB", func(o ResolveOptions) string { return o.CLIKnowledge },
		func(s *Settings, v string) error { s.Knowledge.Path = expandUserPath(v); return nil }},
	{"knowledge.threshold", "CONVOSCOPE_MATCH_THRESHOLD", nil,
		func(s *Settings, v string) (err error) { s.Knowledge.Threshold, err = cast.ToFloat64E(v); return }},
	{"knowledge.cache_ttl", "CONVOSCOPE_CACHE_TTL", nil,
		func(s *Settings, v string) (err error) { s.Knowledge.CacheTTL, err = cast.ToDurationE(v); return }},
	{"analyze.enabled", "CONVOSCOPE_ANALYZE", nil,
		func(s *Settings, v string) (err error) { s.Analyze.Enabled, err = cast.ToBoolE(v); return }},
	{"analyze.model", "CONVOSCOPE_MODEL", func(o ResolveOptions) string { return o.CLIModel },
		func(s *Settings, v string) error { s.Analyze.Model = v; return nil }},
	{"analyze.base_url", "OPENAI_BASE_URL", nil,
		func(s *Settings, v string) error { s.Analyze.BaseURL = v; return nil }},
	{"analyze.timeout", "CONVOSCOPE_ANALYZE_TIMEOUT", nil,
		func(s *Settings, v string) (err error) { s.Analyze.Timeout, err = cast.ToDurationE(v); return }},
	{"log.level", "CONVOSCOPE_LOG_LEVEL", func(o ResolveOptions) string { return o.CLILogLevel },
		func(s *Settings, v string) error { s.Log.Level = strings.ToLower(v); return nil }},
	{"log.dir", "CONVOSCOPE_LOG_DIR", nil,
		func(s *Settings, v string) error { s.Log.Dir = v; return nil }},
}

func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{
		ConfigPath: path,
		DBPath:     ResolvedValue{Value: "~/.convoscope/convoscope.db", Source: SourceDefault, From: "built-in default"},
		Settings:   DefaultSettings(),
		Provenance: map[string]ResolvedValue{},
	}

	cfg, keys, err := loadConfig(path, out.Settings)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		out.Settings = cfg.Settings
		for _, k := range keys {
			out.Provenance[k] = ResolvedValue{Value: lookupKey(out.Settings, k), Source: SourceConfig, From: path}
		}
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.LexiconPath, cfg.Lexicon, SourceConfig, path)
		apply(&out.APIKey, cfg.APIKey, SourceConfig, path)
	}

	applyEnv(&out.DBPath, "CONVOSCOPE_DB")
	applyEnv(&out.DBPath, "CONVOSCOPE_DB_PATH")
	applyEnv(&out.LexiconPath, "CONVOSCOPE_LEXICON")
	applyEnv(&out.APIKey, "OPENAI_API_KEY")
	applyEnv(&out.APIKey, "CONVOSCOPE_API_KEY")

	for _, st := range settingTable {
		if v := strings.TrimSpace(os.Getenv(st.env)); v != "" {
			if err := out.set(st, v, SourceEnv, st.env); err != nil {
				return out, err
			}
		}
	}

	for _, st := range settingTable {
		if st.cli == nil {
			continue
		}
		if v := strings.TrimSpace(st.cli(opts)); v != "" {
			if err := out.set(st, v, SourceCLI, "--"+flagName(st.key)); err != nil {
				return out, err
			}
		}
	}
	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.LexiconPath, opts.CLILexicon, SourceCLI, "--lexicon")

	if out.DBPath.Value != "" {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}
	if out.LexiconPath.Value != "" {
		out.LexiconPath.Value = expandUserPath(out.LexiconPath.Value)
	}
	out.Settings.Knowledge.Path = expandUserPath(out.Settings.Knowledge.Path)
	out.Settings.Log.Dir = expandUserPath(out.Settings.Log.Dir)

	if err := out.Settings.Validate(); err != nil {
		return out, err
	}
	return out, nil
}

// Source reports where a dotted setting key came from.
func (r ResolvedConfig) Source(key string) ResolvedValue {
	if v, ok := r.Provenance[key]; ok {
		return v
	}
	return ResolvedValue{Value: lookupKey(r.Settings, key), Source: SourceDefault, From: "built-in default"}
}

// MaskedAPIKey returns the API key with all but the last four characters
// hidden.
func (r ResolvedConfig) MaskedAPIKey() string {
	k := r.APIKey.Value
	if len(k) <= 4 {
		return strings.Repeat("*", len(k))
	}
	return strings.Repeat("*", len(k)-4) + k[len(k)-4:]
}

func (r *ResolvedConfig) set(st setting, raw string, source ValueSource, from string) error {
	if err := st.set(&r.Settings, raw); err != nil {
		return fmt.Errorf("parsing %s from %s: %w", st.key, from, err)
	}
	r.Provenance[st.key] = ResolvedValue{Value: raw, Source: source, From: from}
	return nil
}

func flagName(key string) string {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}
	return strings.ReplaceAll(key, "_", "-")
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

// loadConfig decodes path over defaults and returns the dotted keys the
// file sets. A missing file is not an error.
func loadConfig(path string, defaults Settings) (*fileConfig, []string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}
	cfg := fileConfig{Settings: defaults}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	var keys []string
	flattenKeys("", raw, &keys)
	keys = slices.DeleteFunc(keys, func(k string) bool {
		return k == "db_path" || k == "lexicon" || k == "api_key"
	})
	slices.Sort(keys)
	return &cfg, keys, nil
}

func flattenKeys(prefix string, m map[string]any, out *[]string) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			flattenKeys(key, sub, out)
			continue
		}
		*out = append(*out, key)
	}
}

// lookupKey renders the current value of a dotted key for provenance
// output.
func lookupKey(s Settings, key string) string {
	switch key {
	case "workers":
		return cast.ToString(s.Workers)
	case "seed":
		return cast.ToString(s.Seed)
	case "assemble.fallback":
		return s.Assemble.Fallback
	case "assemble.synthesize_greeting":
		return cast.ToString(s.Assemble.SynthesizeGreeting)
	case "assemble.synthesize_closing":
		return cast.ToString(s.Assemble.SynthesizeClosing)
	case "quality.threshold":
		return cast.ToString(s.Quality.Threshold)
	case "quality.min_user_messages":
		return cast.ToString(s.Quality.MinUserMessages)
	case "quality.min_content_length":
		return cast.ToString(s.Quality.MinContentLength)
	case "intent.strategy":
		return s.Intent.Strategy
	case "intent.scenario_top_k":
		return cast.ToString(s.Intent.ScenarioTopK)
	case "intent.intent_top_k":
		return cast.ToString(s.Intent.IntentTopK)
	case "knowledge.path":
		return s.Knowledge.Path
	case "knowledge.threshold":
		return cast.ToString(s.Knowledge.Threshold)
	case "knowledge.top_n":
		return cast.ToString(s.Knowledge.TopN)
	case "knowledge.cache_ttl":
		return s.Knowledge.CacheTTL.String()
	case "knowledge.min_quality":
		return cast.ToString(s.Knowledge.MinQuality)
	case "analyze.enabled":
		return cast.ToString(s.Analyze.Enabled)
	case "analyze.model":
		return s.Analyze.Model
	case "analyze.base_url":
		return s.Analyze.BaseURL
	case "analyze.timeout":
		return s.Analyze.Timeout.String()
	case "analyze.max_retries":
		return cast.ToString(s.Analyze.MaxRetries)
	case "log.level":
		return s.Log.Level
	case "log.dir":
		return s.Log.Dir
	case "log.console":
		return cast.ToString(s.Log.Console)
	}
	return ""
}

// Keys lists every dotted setting key in display order.
var Keys = []string{
	"workers", "seed",
	"assemble.fallback", "assemble.synthesize_greeting", "assemble.synthesize_closing",
	"quality.threshold", "quality.min_user_messages", "quality.min_content_length",
	"intent.strategy", "intent.scenario_top_k", "intent.intent_top_k",
	"knowledge.path", "knowledge.threshold", "knowledge.top_n", "knowledge.cache_ttl", "knowledge.min_quality",
	"analyze.enabled", "analyze.model", "analyze.base_url", "analyze.timeout", "analyze.max_retries",
	"log.level", "log.dir", "log.console",
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
