package extract

import (
	"fmt"

	"github.com/entityscan/entityscan/internal/config"
	"github.com/entityscan/entityscan/internal/logger"
	"go.uber.org/zap"
)

// Extractor applies the fixed rule table to input texts
type Extractor struct {
	enabled map[EntityType]bool
	logger  *logger.Logger
	config  config.ExtractorConfig
}

// New creates a new entity extractor instance
func New(cfg config.ExtractorConfig, log *logger.Logger) (*Extractor, error) {
	extractor := &Extractor{
		enabled: make(map[EntityType]bool),
		logger:  log,
		config:  cfg,
	}

	if err := extractor.configureDetectors(cfg.Detectors); err != nil {
		return nil, fmt.Errorf("failed to configure detectors: %w", err)
	}

	log.Info("Entity extractor initialized",
		zap.Int("total_rules", len(EntityTypes)),
		zap.Int("enabled_rules", extractor.countEnabledRules()),
	)

	return extractor, nil
}

// configureDetectors enables the requested entity types, "all" enables every
// rule. Unknown names are rejected.
func (e *Extractor) configureDetectors(detectors []string) error {
	for _, entityType := range EntityTypes {
		e.enabled[entityType] = false
	}

	for _, detector := range detectors {
		if detector == "all" {
			for _, entityType := range EntityTypes {
				e.enabled[entityType] = true
			}
			continue
		}

		if _, ok := e.enabled[EntityType(detector)]; !ok {
			return fmt.Errorf("unknown detector: %s", detector)
		}
		e.enabled[EntityType(detector)] = true
	}

	return nil
}

// Extract runs every enabled rule over the text and returns the result
// mapping. All eleven keys are present regardless of configuration; a
// disabled or unmatched category maps to an empty sequence. The call is a
// pure function of the input text.
func (e *Extractor) Extract(text string) Result {
	result := make(Result, len(EntityTypes))
	for _, entityType := range EntityTypes {
		if !e.config.Enabled || !e.enabled[entityType] {
			result[entityType] = []string{}
			continue
		}
		result[entityType] = matchesFor(entityType, text)
	}

	if counts := result.Counts(); len(counts) > 0 {
		e.logger.Debug("Entities extracted",
			zap.Int("total_matches", result.Total()),
			zap.Any("counts", counts),
		)
	}

	return result
}

// ExtractAll runs the full rule table over the text, ignoring any detector
// configuration. It is what the Extractor uses underneath.
func ExtractAll(text string) Result {
	result := make(Result, len(EntityTypes))
	for _, entityType := range EntityTypes {
		result[entityType] = matchesFor(entityType, text)
	}
	return result
}

// matchesFor evaluates a single category. Every rule is an independent
// leftmost-first non-overlapping scan; categories may overlap on the same
// span of text.
func matchesFor(entityType EntityType, text string) []string {
	switch entityType {
	case AccountNumbers:
		return accountNumbers(text)
	case Names:
		names := ExtractNames(text)
		values := make([]string, 0, len(names))
		for _, match := range names {
			values = append(values, match.Value)
		}
		return values
	default:
		matches := scanRuleByType[entityType].Pattern.FindAllString(text, -1)
		if matches == nil {
			matches = []string{}
		}
		return matches
	}
}

// accountNumbers scans for DDD-DDD-DDDD runs and drops any occurrence
// immediately preceded by the literal "+1-", so the +1 phone form is not
// double-counted as an account number.
func accountNumbers(text string) []string {
	indexes := accountPattern.FindAllStringIndex(text, -1)
	matches := make([]string, 0, len(indexes))
	for _, idx := range indexes {
		if idx[0] >= 3 && text[idx[0]-3:idx[0]] == "+1-" {
			continue
		}
		matches = append(matches, text[idx[0]:idx[1]])
	}
	return matches
}

// ExtractNames returns the two-word names that follow either trigger phrase,
// in text order, tagged with the phrase that introduced them. Exactly one of
// the two capture groups is set per match; the empty side is discarded.
func ExtractNames(text string) []NameMatch {
	submatches := namePattern.FindAllStringSubmatchIndex(text, -1)
	matches := make([]NameMatch, 0, len(submatches))
	for _, m := range submatches {
		switch {
		case m[2] >= 0:
			matches = append(matches, NameMatch{
				Trigger: TriggerContact,
				Value:   text[m[2]:m[3]],
				Start:   m[2],
			})
		case m[4] >= 0:
			matches = append(matches, NameMatch{
				Trigger: TriggerContactLabel,
				Value:   text[m[4]:m[5]],
				Start:   m[4],
			})
		}
	}
	return matches
}

// IsEnabled reports whether a rule is currently enabled.
func (e *Extractor) IsEnabled(entityType EntityType) bool {
	return e.enabled[entityType]
}

// EnableRule enables a specific rule
func (e *Extractor) EnableRule(name string) error {
	if _, ok := e.enabled[EntityType(name)]; !ok {
		return fmt.Errorf("unknown rule: %s", name)
	}
	e.enabled[EntityType(name)] = true
	e.logger.Info("Extraction rule enabled", zap.String("rule", name))
	return nil
}

// DisableRule disables a specific rule
func (e *Extractor) DisableRule(name string) error {
	if _, ok := e.enabled[EntityType(name)]; !ok {
		return fmt.Errorf("unknown rule: %s", name)
	}
	e.enabled[EntityType(name)] = false
	e.logger.Info("Extraction rule disabled", zap.String("rule", name))
	return nil
}

// countEnabledRules returns the number of enabled rules
func (e *Extractor) countEnabledRules() int {
	count := 0
	for _, enabled := range e.enabled {
		if enabled {
			count++
		}
	}
	return count
}
