package dispatch

import "os"

// ExpandVars substitutes ${VAR} / $VAR references in template using vars,
// falling back to the process environment for anything vars doesn't carry.
func ExpandVars(template string, vars map[string]string) string {
	return os.Expand(template, func(key string) string {
		if v, ok := vars[key]; ok {
			return v
		}
		return os.Getenv(key)
	})
}
