package env

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

var envKeyRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseSpecs parses KEY=VALUE specs, a bare KEY takes its value from the
// current process environment. Later specs override earlier ones.
func ParseSpecs(specs []string) (map[string]string, error) {
	env := make(map[string]string, len(specs))
	for _, spec := range specs {
		if spec == "" {
			return nil, fmt.Errorf("environment variable spec cannot be empty")
		}

		key, value, hasValue := strings.Cut(spec, "=")
		if !envKeyRegexp.MatchString(key) {
			return nil, fmt.Errorf("invalid environment variable key %q", key)
		}

		if !hasValue {
			v, ok := os.LookupEnv(key)
			if !ok {
				return nil, fmt.Errorf("environment variable %q is not set", key)
			}
			value = v
		}
		env[key] = value
	}

	return env, nil
}

// ToList returns the environment as KEY=VALUE entries sorted by key.
func ToList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	list := make([]string, 0, len(keys))
	for _, k := range keys {
		list = append(list, k+"="+env[k])
	}
	return list
}
