package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/v2"
)

// ValidationWarning flags a loaded config key that is unknown, likely
// misspelled, or deprecated.
type ValidationWarning struct {
	Key         string
	Suggestions []string
}

func (w ValidationWarning) String() string {
	msg := fmt.Sprintf("'%s' is not a known config key", w.Key)
	switch len(w.Suggestions) {
	case 0:
	case 1:
		msg += fmt.Sprintf(". Did you mean '%s'?", w.Suggestions[0])
	default:
		msg += ". Did you mean one of these?\n"
		for _, s := range w.Suggestions {
			msg += fmt.Sprintf("    - %s\n", s)
		}
	}
	return msg
}

// ValidateConfigKeys compares every key loaded from any source (castauth.yaml,
// CA__ environment variables, defaults) against the registry. Unknown keys get
// spelling suggestions, deprecated keys point at their replacement, and keys
// under a registered namespace pass without comment.
func ValidateConfigKeys(k *koanf.Koanf) []ValidationWarning {
	var warnings []ValidationWarning
	for _, key := range k.Keys() {
		if info, ok := LookupConfigKey(key); ok {
			if info.Deprecated {
				warnings = append(warnings, ValidationWarning{
					Key:         key,
					Suggestions: []string{info.ReplacedBy},
				})
			}
			continue
		}
		if hasRegisteredPrefix(key) {
			continue
		}
		warnings = append(warnings, ValidationWarning{
			Key:         key,
			Suggestions: FindSimilarKeys(key, 3),
		})
	}
	return warnings
}

// FormatValidationWarnings renders warnings as a single log-friendly block.
func FormatValidationWarnings(warnings []ValidationWarning) string {
	if len(warnings) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("⚠️  Configuration warnings detected:\n")
	for _, warning := range warnings {
		for i, line := range strings.Split(warning.String(), "\n") {
			if line == "" {
				continue
			}
			if i == 0 {
				fmt.Fprintf(&sb, "  - %s\n", line)
			} else {
				fmt.Fprintf(&sb, "    %s\n", line)
			}
		}
	}
	sb.WriteString("\nUnknown keys are ignored at runtime. Register application keys with RegisterConfigKey() to suppress these warnings.\n")
	return sb.String()
}
