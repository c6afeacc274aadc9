// Package inputs turns operator YAML files into the string inputs the
// testnet workflows accept.
package inputs

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"
	"gopkg.in/yaml.v3"
)

// NetworkIDs maps the shared environment names to their fixed network ids.
var NetworkIDs = map[string]int{
	"DEV-01": 3, "DEV-02": 4, "DEV-03": 5, "DEV-04": 6, "DEV-05": 7,
	"DEV-06": 8, "DEV-07": 9, "DEV-08": 10, "DEV-09": 11, "DEV-10": 12,
	"STG-01": 13, "STG-02": 14, "STG-03": 15, "STG-04": 16, "STG-05": 17,
	"STG-06": 18, "STG-07": 19, "STG-08": 20, "STG-09": 21, "STG-10": 22,
}

var namePattern = regexp.MustCompile(`^(DEV|STG|PROD)-\d{2}$`)

// EnvironmentTypes are the accepted environment-type values.
var EnvironmentTypes = map[string]bool{
	"development": true,
	"staging":     true,
	"production":  true,
}

// Config is a parsed inputs file. Keys are the hyphenated names operators
// write; values keep their YAML types.
type Config map[string]any

// LoadFile reads and parses a YAML inputs file.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inputs file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML inputs.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML inputs: %w", err)
	}
	if cfg == nil {
		cfg = Config{}
	}
	return cfg, nil
}

// ValidateName checks a network display name such as DEV-01.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid network name %q (expected DEV-NN, STG-NN or PROD-NN)", name)
	}
	return nil
}

// String returns the value under key rendered as a string.
func (c Config) String(key string) (string, bool) {
	v, ok := c[key]
	if !ok || v == nil {
		return "", false
	}
	return formatValue(v), true
}

// Has reports whether key is set.
func (c Config) Has(key string) bool {
	v, ok := c[key]
	return ok && v != nil
}

// NetworkName returns the required network-name value.
func (c Config) NetworkName() (string, error) {
	name, ok := c.String("network-name")
	if !ok || name == "" {
		return "", fmt.Errorf("missing required input 'network-name'")
	}
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

// flagMapping pairs an inputs key with the command-line flag it becomes.
type flagMapping struct {
	key  string
	flag string
}

// buildArgs renders the mapped keys present in cfg as a flag string. A true
// boolean becomes the bare flag and false is omitted.
func buildArgs(cfg Config, mappings []flagMapping) []string {
	var args []string
	for _, m := range mappings {
		v, ok := cfg[m.key]
		if !ok || v == nil {
			continue
		}
		if b, isBool := v.(bool); isBool {
			if b {
				args = append(args, m.flag)
			}
			continue
		}
		args = append(args, m.flag, shellquote.Join(formatValue(v)))
	}
	return args
}

// extraArgs parses the free-form extra-args value so malformed quoting is
// rejected before dispatch.
func extraArgs(cfg Config) ([]string, error) {
	raw, ok := cfg.String("extra-args")
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	words, err := shellquote.Split(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid extra-args: %w", err)
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = shellquote.Join(w)
	}
	return quoted, nil
}

// TestnetDeployArgs builds the testnet-deploy-args input from the
// testnet-deploy-* keys, or "" if none are set.
func TestnetDeployArgs(cfg Config) string {
	args := buildArgs(cfg, []flagMapping{
		{"testnet-deploy-branch", "--branch"},
		{"testnet-deploy-repo-owner", "--repo-owner"},
		{"testnet-deploy-version", "--version"},
	})
	return strings.Join(args, " ")
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case []any:
		parts := make([]string, len(val))
		for i, p := range val {
			parts[i] = formatValue(p)
		}
		return strings.Join(parts, ",")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + formatValue(val[k])
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(val)
	}
}

func intValue(v any) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		if val == float64(int(val)) {
			return int(val), true
		}
	}
	return 0, false
}
