package lexicon

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Load reads a YAML lexicon file and overlays it on Default. Any top-level
// section present in the file replaces the built-in section wholesale;
// absent sections keep their defaults.
func Load(path string) (Bundle, error) {
	b := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return b, fmt.Errorf("reading lexicon %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &b); err != nil {
		return b, fmt.Errorf("parsing lexicon %s: %w", path, err)
	}
	if err := Validate(b); err != nil {
		return b, fmt.Errorf("validating lexicon %s: %w", path, err)
	}
	return b, nil
}

// Validate checks field constraints and cross references: every bonus,
// override and context pattern must name a known scenario or intent, and
// every entity pattern must compile.
func Validate(b Bundle) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(b); err != nil {
		return err
	}

	scenarios := map[string]bool{}
	intents := map[string]bool{}
	for _, s := range b.Scenarios {
		scenarios[s.ID] = true
		for _, in := range s.Intents {
			if intents[in.ID] {
				return fmt.Errorf("intent %q defined twice", in.ID)
			}
			intents[in.ID] = true
		}
	}
	if !intents[FallbackIntent] {
		return fmt.Errorf("fallback intent %q is not defined", FallbackIntent)
	}

	var errs []error
	for _, bonus := range b.Bonuses {
		if bonus.Scenario == "" && bonus.Intent == "" {
			errs = append(errs, errors.New("bonus must name a scenario or an intent"))
		}
		if bonus.Scenario != "" && !scenarios[bonus.Scenario] {
			errs = append(errs, fmt.Errorf("bonus references unknown scenario %q", bonus.Scenario))
		}
		if bonus.Intent != "" && !intents[bonus.Intent] {
			errs = append(errs, fmt.Errorf("bonus references unknown intent %q", bonus.Intent))
		}
	}
	for _, o := range b.Overrides {
		if !intents[o.Intent] {
			errs = append(errs, fmt.Errorf("override %s references unknown intent %q", o.Name, o.Intent))
		}
	}
	for _, p := range b.Context.Patterns {
		if p.Intent != "" && !intents[p.Intent] {
			errs = append(errs, fmt.Errorf("context pattern %q references unknown intent %q", p.Phrase, p.Intent))
		}
	}
	for _, p := range b.EntityPatterns {
		re, err := regexp.Compile(p.Expr)
		if err != nil {
			errs = append(errs, fmt.Errorf("entity pattern %s: %w", p.Name, err))
			continue
		}
		if p.Group > re.NumSubexp() {
			errs = append(errs, fmt.Errorf("entity pattern %s: group %d out of range", p.Name, p.Group))
		}
	}
	return errors.Join(errs...)
}
