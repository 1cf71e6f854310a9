package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// Condition restricts a publish action to certain facts, e.g. branches or tags.
// A key prefixed with ENV_PREFIX is checked against an environment variable instead.
type Condition struct {
	// Text
	Include []string `json:"include" yaml:"include"`
	Exclude []string `json:"exclude" yaml:"exclude"`

	// Env
	IncludeEnv []string `json:"include env" yaml:"include env"`
	ExcludeEnv []string `json:"exclude env" yaml:"exclude env"`

	// Regex
	Match    []string `json:"match" yaml:"match"`
	Mismatch []string `json:"mismatch" yaml:"mismatch"`
}

func (c Condition) Empty() bool {
	return len(c.Include) == 0 && len(c.Exclude) == 0 &&
		len(c.IncludeEnv) == 0 && len(c.ExcludeEnv) == 0 &&
		len(c.Match) == 0 && len(c.Mismatch) == 0
}

// Validate compiles every regular expression of the condition.
func (c Condition) Validate() error {
	for _, list := range [][]string{c.Match, c.Mismatch} {
		if _, err := compileAll(list); err != nil {
			return err
		}
	}
	return nil
}

// Check evaluates the condition against the fact stored under key.
// An empty condition or an empty fact always passes. Otherwise at least one inclusion rule
// must match, if there are any, and no exclusion rule may match.
func (c Condition) Check(key string, facts map[string]Fact, env map[string]Env) (bool, error) {
	if c.Empty() {
		return true, nil
	}

	fact := facts[key]
	if envKey, ok := strings.CutPrefix(key, ENV_PREFIX); ok && envKey != "" {
		fact = Fact{env[envKey].Value}
	}
	if fact.blank() {
		return true, nil
	}
	values := fact.set()

	included, err := c.included(values, env)
	if err != nil || !included {
		return false, err
	}

	excluded, err := c.excluded(values, env)
	return !excluded, err
}

func (c Condition) included(values map[string]bool, env map[string]Env) (bool, error) {
	if len(c.Include) == 0 && len(c.IncludeEnv) == 0 && len(c.Match) == 0 {
		return true, nil
	}
	if containsAny(values, c.Include) || containsEnv(values, c.IncludeEnv, env) {
		return true, nil
	}
	matched, err := matchAny(c.Match, values)
	if err != nil {
		return false, fmt.Errorf("error compiling regexp for condition [match] - %s", err)
	}
	return matched, nil
}

func (c Condition) excluded(values map[string]bool, env map[string]Env) (bool, error) {
	if containsAny(values, c.Exclude) || containsEnv(values, c.ExcludeEnv, env) {
		return true, nil
	}
	matched, err := matchAny(c.Mismatch, values)
	if err != nil {
		return false, fmt.Errorf("error compiling regexp for condition [mismatch] - %s", err)
	}
	return matched, nil
}

func (f Fact) blank() bool {
	return len(f) == 0 || (len(f) == 1 && f[0] == "")
}

func (f Fact) set() map[string]bool {
	result := make(map[string]bool, len(f))
	for _, value := range f {
		result[value] = true
	}
	return result
}

func containsAny(values map[string]bool, candidates []string) bool {
	for _, candidate := range candidates {
		if values[candidate] {
			return true
		}
	}
	return false
}

func containsEnv(values map[string]bool, keys []string, env map[string]Env) bool {
	for _, key := range keys {
		if value, ok := env[key]; ok && values[value.Value] {
			return true
		}
	}
	return false
}

func matchAny(expressions []string, values map[string]bool) (bool, error) {
	compiled, err := compileAll(expressions)
	if err != nil {
		return false, err
	}
	for _, re := range compiled {
		for value := range values {
			if re.MatchString(value) {
				return true, nil
			}
		}
	}
	return false, nil
}

func compileAll(expressions []string) ([]*regexp.Regexp, error) {
	result := make([]*regexp.Regexp, len(expressions))
	for i, expression := range expressions {
		re, err := regexp.Compile(expression)
		if err != nil {
			return nil, fmt.Errorf(`invalid regexp "%s" - %s`, expression, err)
		}
		result[i] = re
	}
	return result, nil
}
