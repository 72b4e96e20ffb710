package runner

import (
	"os"
	"sort"
	"strings"
)

// ParseEnvFile reads KEY=VALUE lines in dotenv style. Blank lines, comments
// and lines without '=' are skipped; an "export " prefix and matching quotes
// around the value are stripped.
func ParseEnvFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var envVars []string
	for _, line := range strings.Split(string(data), "\n") {
		s := strings.TrimSpace(line)
		if s == "" || s[0] == '#' {
			continue
		}
		s = strings.TrimPrefix(s, "export ")
		eqIdx := strings.IndexByte(s, '=')
		if eqIdx < 0 {
			continue
		}
		key := strings.TrimSpace(s[:eqIdx])
		val := stripQuotes(strings.TrimSpace(s[eqIdx+1:]))
		envVars = append(envVars, key+"="+val)
	}
	return envVars, nil
}

func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// TrainerEnv merges an env file with explicit variables. Explicit entries
// come last so they win.
func TrainerEnv(envFile string, env map[string]string) ([]string, error) {
	var out []string
	if envFile != "" {
		vars, err := ParseEnvFile(envFile)
		if err != nil {
			return nil, err
		}
		out = append(out, vars...)
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out, nil
}
