package vars

import (
	"os"
	"sort"
	"strings"

	"github.com/reeveci/reeve-matrix/schema"
)

// Lower priorities win when the same key is provided by multiple layers.
const (
	PRIORITY_SECRET  uint32 = 0
	PRIORITY_MATRIX  uint32 = 10
	PRIORITY_CONFIG  uint32 = 20
	PRIORITY_PROCESS uint32 = 30
)

// Layer wraps plain values as env entries of the given priority.
func Layer(values map[string]string, priority uint32, secret bool) map[string]schema.Env {
	result := make(map[string]schema.Env, len(values))
	for key, value := range values {
		if key != "" {
			result[key] = schema.Env{Value: value, Priority: priority, Secret: secret}
		}
	}
	return result
}

// Process captures the current process environment, leaving out the excluded keys.
func Process(exclude ...string) map[string]schema.Env {
	skip := make(map[string]bool, len(exclude))
	for _, key := range exclude {
		skip[key] = true
	}

	environ := os.Environ()
	result := make(map[string]schema.Env, len(environ))
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" || skip[key] {
			continue
		}
		result[key] = schema.Env{Value: value, Priority: PRIORITY_PROCESS}
	}
	return result
}

// Merge combines env layers into a new map. The returned map is never shared with the inputs.
func Merge(envs ...map[string]schema.Env) map[string]schema.Env {
	size := 0
	for _, env := range envs {
		size += len(env)
	}

	result := make(map[string]schema.Env, size)
	for _, env := range envs {
		for key, value := range env {
			if key == "" {
				continue
			}
			existing, existingOk := result[key]
			if !existingOk || value.Priority < existing.Priority {
				result[key] = value
			}
		}
	}
	return result
}

// Environ renders env as sorted KEY=value entries for exec.Cmd.
func Environ(env map[string]schema.Env) []string {
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := make([]string, len(keys))
	for i, key := range keys {
		result[i] = key + "=" + env[key].Value
	}
	return result
}

// Public drops secret entries, e.g. for condition evaluation.
func Public(env map[string]schema.Env) map[string]schema.Env {
	result := make(map[string]schema.Env, len(env))
	for key, value := range env {
		if !value.Secret {
			result[key] = value
		}
	}
	return result
}
