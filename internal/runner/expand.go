package runner

import (
	"fmt"
	"os"
	"slices"
	"strings"
)

// Expand substitutes $name and ${name} references in s. Names are looked up
// in vars first and then in the process environment. "$$" yields a literal
// "$". Every unresolved name is reported in one error.
func Expand(s string, vars map[string]string) (string, error) {
	var missing []string
	out := os.Expand(s, func(name string) string {
		if name == "$" {
			return "$"
		}
		if v, ok := vars[name]; ok {
			return v
		}
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		if !slices.Contains(missing, name) {
			missing = append(missing, name)
		}
		return ""
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("unresolved variables in command: %s", strings.Join(missing, ", "))
	}
	return out, nil
}
