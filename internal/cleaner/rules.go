package cleaner

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Rule is a single pattern to replacement rewrite applied to raw model
// output.
type Rule struct {
	Pattern *regexp.Regexp
	Replace string
}

// preamblePatterns match instruction-following boilerplate that models
// prepend to the actual reply. All are anchored at the start of the text.
var preamblePatterns = []string{
	`^(?i)here(?:'|’)?s (?:a |your |my |one )?(?:possible |suggested |short |professional |polished )?(?:reply|response|comment|answer)\s*[:\-–—]?\s*`,
	`^(?i)(?:sure|certainly|absolutely|of course|got it|okay|ok)\s*[,!.:]?\s+`,
	`^(?i)(?:reply|response|comment|answer)\s*[:\-–—]\s*`,
	`^(?i)as an ai(?: language model)?[,:]?\s*`,
	`^(?i)i(?:'|’)?d (?:reply|respond|say|comment)(?: with)?(?: something like)?\s*[:\-–—]?\s*`,
	`^\s*[-*•]\s+`,
}

// wrapperRules strip symmetric quoting the model wraps the reply in.
var wrapperRules = []string{
	`^"(.*)"$`,
	`^['\x60](.*)['\x60]$`,
	`^“(.*)”$`,
}

// metaLinePatterns match whole lines that are commentary about the reply
// rather than part of it.
var metaLinePatterns = []string{
	`(?i)^\(?note[:\s]`,
	`(?i)^let me know if`,
	`(?i)^(?:i )?hope (?:this|that) helps`,
	`(?i)^feel free to (?:adjust|tweak|edit|modify)`,
	`(?i)^would you like (?:me to|a|another)`,
	`(?i)^this (?:reply|response|comment) (?:is|keeps|strikes)`,
}

var (
	defaultRules []Rule
	metaRules    []*regexp.Regexp
	unwrapRules  []*regexp.Regexp
)

func init() {
	for _, p := range preamblePatterns {
		defaultRules = append(defaultRules, Rule{Pattern: regexp.MustCompile(p), Replace: ""})
	}
	for _, p := range metaLinePatterns {
		metaRules = append(metaRules, regexp.MustCompile(p))
	}
	for _, p := range wrapperRules {
		unwrapRules = append(unwrapRules, regexp.MustCompile(`(?s)`+p))
	}
}

// DefaultRules returns a copy of the built-in preamble rule set.
func DefaultRules() []Rule {
	out := make([]Rule, len(defaultRules))
	copy(out, defaultRules)
	return out
}

// ruleFile is the YAML shape for user-supplied rules.
type ruleFile struct {
	Rules []struct {
		Pattern string `yaml:"pattern"`
		Replace string `yaml:"replace"`
	} `yaml:"rules"`
}

// LoadRules reads additional rewrite rules from a YAML file. Loaded rules
// are applied after the built-in set.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}

	rules := make([]Rule, 0, len(rf.Rules))
	for i, r := range rf.Rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d: invalid pattern %q: %w", i, r.Pattern, err)
		}
		rules = append(rules, Rule{Pattern: re, Replace: r.Replace})
	}
	return rules, nil
}
