package inputs

import (
	"fmt"
	"strings"
)

var launchDeployArgs = []flagMapping{
	{"branch", "--branch"},
	{"chunk-size", "--chunk-size"},
	{"client-vm-size", "--client-vm-size"},
	{"disable-download-verifier", "--disable-download-verifier"},
	{"disable-performance-verifier", "--disable-performance-verifier"},
	{"disable-random-verifier", "--disable-random-verifier"},
	{"disable-telegraf", "--disable-telegraf"},
	{"evm-network-type", "--evm-network-type"},
	{"evm-data-payments-address", "--evm-data-payments-address"},
	{"evm-node-vm-size", "--evm-node-vm-size"},
	{"evm-payment-token-address", "--evm-payment-token-address"},
	{"evm-rpc-url", "--evm-rpc-url"},
	{"initial-gas", "--initial-gas"},
	{"initial-tokens", "--initial-tokens"},
	{"interval", "--interval"},
	{"max-archived-log-files", "--max-archived-log-files"},
	{"max-log-files", "--max-log-files"},
	{"nat-gateway-vm-size", "--nat-gateway-vm-size"},
	{"network-dashboard-branch", "--network-dashboard-branch"},
	{"network-id", "--network-id"},
	{"node-vm-size", "--node-vm-size"},
	{"peer-cache-node-vm-size", "--peer-cache-node-vm-size"},
	{"public-rpc", "--public-rpc"},
	{"region", "--region"},
	{"repo-owner", "--repo-owner"},
	{"rewards-address", "--rewards-address"},
	{"antnode-features", "--antnode-features"},
}

var (
	nodeCountKeys = []string{
		"peer-cache-node-count", "generic-node-count", "full-cone-private-node-count",
		"symmetric-private-node-count", "uploader-count",
	}
	vmCountKeys = []string{
		"peer-cache-vm-count", "generic-vm-count", "full-cone-private-vm-count",
		"symmetric-private-vm-count", "client-vm-count",
	}
	versionKeys = []string{"ant-version", "antnode-version", "antctl-version"}
)

// LaunchMeta carries the parts of a launch file that describe the
// deployment rather than the workflow.
type LaunchMeta struct {
	NetworkName     string
	NetworkID       int
	EnvironmentType string
	Description     string
	RelatedPR       *int
}

// ValidateLaunch checks a launch file and returns the problems found.
func ValidateLaunch(cfg Config) []string {
	var problems []string

	for _, key := range []string{"network-name", "environment-type", "rewards-address"} {
		if !cfg.Has(key) {
			problems = append(problems, fmt.Sprintf("  - missing required input '%s'", key))
		}
	}

	name, _ := cfg.String("network-name")
	if name != "" {
		if err := ValidateName(name); err != nil {
			problems = append(problems, "  - "+err.Error())
		}
	}

	if env, ok := cfg.String("environment-type"); ok && !EnvironmentTypes[env] {
		problems = append(problems, fmt.Sprintf("  - unknown environment-type '%s'", env))
	}

	if v, ok := cfg["network-id"]; ok {
		id, isInt := intValue(v)
		if !isInt || id < 1 || id > 255 {
			problems = append(problems, "  - network-id must be an integer between 1 and 255")
		}
	} else if name != "" {
		if _, known := NetworkIDs[name]; !known {
			problems = append(problems, fmt.Sprintf("  - network name '%s' has no default network-id; set network-id", name))
		}
	}

	hasVersions := false
	for _, k := range versionKeys {
		if cfg.Has(k) {
			hasVersions = true
		}
	}
	hasBuild := cfg.Has("branch") || cfg.Has("repo-owner")
	if hasVersions && hasBuild {
		problems = append(problems, "  - cannot specify both binary versions and build configuration")
	}
	if hasBuild && !(cfg.Has("branch") && cfg.Has("repo-owner")) {
		problems = append(problems, "  - both branch and repo-owner must be specified for build configuration")
	}

	if v, ok := cfg["related-pr"]; ok {
		if pr, isInt := intValue(v); !isInt || pr <= 0 {
			problems = append(problems, "  - related-pr must be a positive integer")
		}
	}

	if _, err := extraArgs(cfg); err != nil {
		problems = append(problems, "  - "+err.Error())
	}

	return problems
}

// Launch validates a launch file and flattens it to workflow inputs.
func Launch(cfg Config) (map[string]string, LaunchMeta, error) {
	if problems := ValidateLaunch(cfg); len(problems) > 0 {
		return nil, LaunchMeta{}, fmt.Errorf("invalid launch inputs:\n%s", strings.Join(problems, "\n"))
	}

	// Work on a copy; network-id is filled in from the name map.
	c := make(Config, len(cfg)+1)
	for k, v := range cfg {
		c[k] = v
	}

	meta := LaunchMeta{}
	meta.NetworkName, _ = c.String("network-name")
	meta.EnvironmentType, _ = c.String("environment-type")
	meta.Description, _ = c.String("description")
	if v, ok := c["network-id"]; ok {
		meta.NetworkID, _ = intValue(v)
	} else {
		meta.NetworkID = NetworkIDs[meta.NetworkName]
		c["network-id"] = meta.NetworkID
	}
	if v, ok := c["related-pr"]; ok {
		pr, _ := intValue(v)
		meta.RelatedPR = &pr
	}

	in := map[string]string{
		"network-name":     meta.NetworkName,
		"environment-type": meta.EnvironmentType,
	}

	if c.Has("ant-version") && c.Has("antnode-version") && c.Has("antctl-version") {
		ant, _ := c.String("ant-version")
		antnode, _ := c.String("antnode-version")
		antctl, _ := c.String("antctl-version")
		in["bin-versions"] = ant + "," + antnode + "," + antctl
	}

	nodeCounts := presentValues(c, nodeCountKeys)
	vmCounts := presentValues(c, vmCountKeys)
	if len(nodeCounts) > 0 && len(vmCounts) > 0 {
		in["node-vm-counts"] = fmt.Sprintf("(%s), (%s)",
			strings.Join(nodeCounts, ", "), strings.Join(vmCounts, ", "))
	}

	args := buildArgs(c, launchDeployArgs)
	extra, _ := extraArgs(c)
	args = append(args, extra...)
	if len(args) > 0 {
		in["deploy-args"] = strings.Join(args, " ")
	}

	for _, key := range []string{"client-env", "node-env", "stop-clients"} {
		if v, ok := c.String(key); ok {
			in[key] = v
		}
	}

	if tda := TestnetDeployArgs(c); tda != "" {
		in["testnet-deploy-args"] = tda
	}

	return in, meta, nil
}

func presentValues(cfg Config, keys []string) []string {
	var values []string
	for _, k := range keys {
		if v, ok := cfg.String(k); ok {
			values = append(values, v)
		}
	}
	return values
}
