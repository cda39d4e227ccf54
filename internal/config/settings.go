package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hurttlocker/convoscope/internal/assemble"
	"github.com/hurttlocker/convoscope/internal/intent"
	"github.com/hurttlocker/convoscope/internal/knowledge"
	"github.com/hurttlocker/convoscope/internal/quality"
)

// Settings are the tunables of a pipeline run. Zero-valued sections in a
// config file keep their defaults.
type Settings struct {
	Workers int   `yaml:"workers" json:"workers" validate:"min=1,max=256"`
	Seed    int64 `yaml:"seed" json:"seed"`

	Assemble  AssembleSettings  `yaml:"assemble" json:"assemble"`
	Quality   QualitySettings   `yaml:"quality" json:"quality"`
	Intent    IntentSettings    `yaml:"intent" json:"intent"`
	Knowledge KnowledgeSettings `yaml:"knowledge" json:"knowledge"`
	Analyze   AnalyzeSettings   `yaml:"analyze" json:"analyze"`
	Log       LogSettings       `yaml:"log" json:"log"`
}

type AssembleSettings struct {
	Fallback           string `yaml:"fallback" json:"fallback" validate:"oneof=ratio user"`
	SynthesizeGreeting bool   `yaml:"synthesize_greeting" json:"synthesize_greeting"`
	SynthesizeClosing  bool   `yaml:"synthesize_closing" json:"synthesize_closing"`
}

type QualitySettings struct {
	Threshold        float64 `yaml:"threshold" json:"threshold" validate:"min=0,max=1"`
	MinUserMessages  int     `yaml:"min_user_messages" json:"min_user_messages" validate:"min=0"`
	MinContentLength int     `yaml:"min_content_length" json:"min_content_length" validate:"min=0"`
}

type IntentSettings struct {
	Strategy     string `yaml:"strategy" json:"strategy" validate:"oneof=keyword cascade contextual"`
	ScenarioTopK int    `yaml:"scenario_top_k" json:"scenario_top_k" validate:"min=1"`
	IntentTopK   int    `yaml:"intent_top_k" json:"intent_top_k" validate:"min=1"`
}

type KnowledgeSettings struct {
	Path       string        `yaml:"path" json:"path"`
	Threshold  float64       `yaml:"threshold" json:"threshold" validate:"min=0,max=1"`
	TopN       int           `yaml:"top_n" json:"top_n" validate:"min=1,max=50"`
	CacheTTL   time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
	MinQuality float64       `yaml:"min_quality" json:"min_quality" validate:"min=0,max=1"`
}

type AnalyzeSettings struct {
	Enabled    bool          `yaml:"enabled" json:"enabled"`
	Model      string        `yaml:"model" json:"model" validate:"required_if=Enabled true"`
	BaseURL    string        `yaml:"base_url" json:"base_url" validate:"omitempty,url"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout" validate:"min=0"`
	MaxRetries int           `yaml:"max_retries" json:"max_retries" validate:"min=0,max=10"`
}

type LogSettings struct {
	Level   string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	Dir     string `yaml:"dir" json:"dir"`
	Console bool   `yaml:"console" json:"console"`
}

// DefaultSettings returns the built-in settings.
func DefaultSettings() Settings {
	qc := quality.DefaultConfig()
	mo := knowledge.DefaultMatchOptions()
	return Settings{
		Workers: 4,
		Seed:    42,
		Assemble: AssembleSettings{
			Fallback:           string(assemble.FallbackRatio),
			SynthesizeGreeting: true,
			SynthesizeClosing:  true,
		},
		Quality: QualitySettings{
			Threshold:        qc.Threshold,
			MinUserMessages:  qc.MinUserMessages,
			MinContentLength: qc.MinContentLength,
		},
		Intent: IntentSettings{
			Strategy:     intent.StrategyCascade,
			ScenarioTopK: 10,
			IntentTopK:   15,
		},
		Knowledge: KnowledgeSettings{
			Threshold:  mo.Threshold,
			TopN:       mo.TopN,
			CacheTTL:   mo.CacheTTL,
			MinQuality: knowledge.DefaultBuildOptions().MinQuality,
		},
		Analyze: AnalyzeSettings{
			Model:      "gpt-4o-mini",
			Timeout:    30 * time.Second,
			MaxRetries: 2,
		},
		Log: LogSettings{
			Level:   "info",
			Dir:     "~/.convoscope/logs",
			Console: true,
		},
	}
}

// Validate checks field constraints.
func (s Settings) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// AssembleConfig maps the settings onto the assembler configuration.
func (s Settings) AssembleConfig() assemble.Config {
	cfg := assemble.DefaultConfig()
	cfg.Seed = s.Seed
	cfg.Fallback = assemble.FallbackMode(s.Assemble.Fallback)
	cfg.SynthesizeGreeting = s.Assemble.SynthesizeGreeting
	cfg.SynthesizeClosing = s.Assemble.SynthesizeClosing
	return cfg
}

// QualityConfig maps the settings onto the quality filter configuration.
func (s Settings) QualityConfig() quality.Config {
	cfg := quality.DefaultConfig()
	cfg.Threshold = s.Quality.Threshold
	cfg.MinUserMessages = s.Quality.MinUserMessages
	cfg.MinContentLength = s.Quality.MinContentLength
	return cfg
}

// IntentOptions returns the classifier options.
func (s Settings) IntentOptions() []intent.Option {
	return []intent.Option{intent.WithTopK(s.Intent.ScenarioTopK, s.Intent.IntentTopK)}
}

// MatchOptions returns the matcher options. A configured threshold of 0
// keeps every scoring FAQ.
func (s Settings) MatchOptions() knowledge.MatchOptions {
	opts := knowledge.MatchOptions{
		Threshold: s.Knowledge.Threshold,
		TopN:      s.Knowledge.TopN,
		CacheTTL:  s.Knowledge.CacheTTL,
	}
	if opts.Threshold == 0 {
		opts.Threshold = knowledge.NoThreshold
	}
	return opts
}

// BuildOptions returns the knowledge builder options.
func (s Settings) BuildOptions() knowledge.BuildOptions {
	opts := knowledge.DefaultBuildOptions()
	opts.MinQuality = s.Knowledge.MinQuality
	return opts
}
