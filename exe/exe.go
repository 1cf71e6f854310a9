package exe

import (
	"os"
	"strconv"
	"strings"
)

// Env reads typed settings from an environment lookup. Unset, blank or unparsable values
// yield the given default.
type Env func(name string) string

// OS reads from the process environment.
func OS() Env {
	return os.Getenv
}

// Map reads from a fixed set of values, e.g. a parsed dotenv file.
func Map(values map[string]string) Env {
	return func(name string) string {
		return values[name]
	}
}

func (e Env) raw(name string) string {
	return strings.TrimSpace(e(name))
}

func (e Env) String(name, def string) string {
	if value := e.raw(name); value != "" {
		return value
	}
	return def
}

func (e Env) Bool(name string, def bool) bool {
	value, err := strconv.ParseBool(strings.ToLower(e.raw(name)))
	if err != nil {
		return def
	}
	return value
}

func (e Env) Int(name string, def int) int {
	value, err := strconv.Atoi(e.raw(name))
	if err != nil {
		return def
	}
	return value
}

// Fields splits a whitespace separated list into a set.
func (e Env) Fields(name string) map[string]bool {
	fields := strings.Fields(e(name))
	result := make(map[string]bool, len(fields))
	for _, field := range fields {
		result[field] = true
	}
	return result
}
