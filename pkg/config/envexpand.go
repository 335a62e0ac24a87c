package config

import "os"

// expandEnv substitutes ${VAR} / $VAR references in data with values from
// the process environment, letting operators keep secrets (webhook URLs,
// tokens) out of the YAML file itself.
func expandEnv(data []byte) []byte {
	return []byte(os.Expand(string(data), os.Getenv))
}
