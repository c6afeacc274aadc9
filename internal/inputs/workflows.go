package inputs

import (
	"fmt"
	"sort"
	"strings"
)

// Builder flattens an inputs file to workflow inputs and the network name
// the run is filed under.
type Builder func(Config) (map[string]string, string, error)

// Workflow is a workflow that is dispatched and tracked but records no
// deployment.
type Workflow struct {
	// Name is both the command name and the key under workflows in the
	// config file.
	Name  string
	Short string
	Build Builder
}

// NodeTypes are the accepted node-type values.
var NodeTypes = map[string]bool{
	"peer-cache":        true,
	"genesis":           true,
	"generic":           true,
	"symmetric-private": true,
}

// numericInputs must hold whole numbers when present.
var numericInputs = map[string]bool{
	"ansible-forks":  true,
	"delay":          true,
	"forks":          true,
	"interval":       true,
	"node-count":     true,
	"start-interval": true,
	"stop-interval":  true,
}

// dispatch describes the inputs of a simple maintenance workflow. Inputs
// are passed through under their own names: lists are comma-joined and
// booleans lowercased.
type dispatch struct {
	required   []string
	optional   []string
	deployArgs bool
	// global workflows act on infrastructure rather than one network.
	global bool
}

func (d dispatch) build(cfg Config) (map[string]string, string, error) {
	in := map[string]string{}

	var name string
	if !d.global {
		var err error
		if name, err = cfg.NetworkName(); err != nil {
			return nil, "", err
		}
		in["network-name"] = name
	}

	for _, key := range d.required {
		v, ok := cfg.String(key)
		if !ok || v == "" {
			return nil, "", fmt.Errorf("missing required input '%s'", key)
		}
	}

	keys := append(append([]string{}, d.required...), d.optional...)
	for _, key := range keys {
		v, ok := cfg.String(key)
		if !ok {
			continue
		}
		if numericInputs[key] {
			if _, isInt := intValue(cfg[key]); !isInt {
				return nil, "", fmt.Errorf("input '%s' must be a whole number, got %q", key, v)
			}
		}
		if key == "node-type" && !NodeTypes[v] {
			return nil, "", fmt.Errorf("invalid node-type %q (expected one of %s)", v, strings.Join(sortedKeys(NodeTypes), ", "))
		}
		in[key] = v
	}

	if d.deployArgs {
		if tda := TestnetDeployArgs(cfg); tda != "" {
			in["testnet-deploy-args"] = tda
		}
	}
	return in, name, nil
}

var (
	nodeTargeting = []string{"ansible-forks", "custom-inventory", "node-type"}
	telegrafTo    = []string{"ansible-forks", "ansible-verbose"}
)

func with(base []string, extra ...string) []string {
	return append(append([]string{}, base...), extra...)
}

// Workflows are the dispatch-only workflows, in command listing order.
var Workflows = []Workflow{
	{"client-deploy", "Deploy clients against an existing network", ClientDeploy},
	{"deposit-funds", "Fund the wallets of a network", dispatch{
		required:   []string{"provider"},
		optional:   []string{"funding-wallet-secret-key", "gas-to-transfer", "tokens-to-transfer"},
		deployArgs: true,
	}.build},
	{"drain-funds", "Return the funds of a network to a wallet", dispatch{
		optional:   []string{"to-address"},
		deployArgs: true,
	}.build},
	{"kill-droplets", "Delete named droplets", dispatch{
		required: []string{"droplet-names"},
		global:   true,
	}.build},
	{"network-status", "Report the node status of a network", dispatch{
		optional:   []string{"ansible-forks"},
		deployArgs: true,
	}.build},
	{"reset-to-n-nodes", "Reset every host to a fixed node count", dispatch{
		required:   []string{"evm-network-type", "node-count"},
		optional:   []string{"custom-inventory", "forks", "node-type", "start-interval", "stop-interval", "version"},
		deployArgs: true,
	}.build},
	{"start-nodes", "Start the nodes of a network", dispatch{
		optional:   with(nodeTargeting, "interval"),
		deployArgs: true,
	}.build},
	{"stop-nodes", "Stop the nodes of a network", dispatch{
		optional:   with(nodeTargeting, "delay", "interval", "service-names"),
		deployArgs: true,
	}.build},
	{"start-telegraf", "Start telegraf on the hosts of a network", dispatch{
		optional:   with(nodeTargeting, "delay"),
		deployArgs: true,
	}.build},
	{"stop-telegraf", "Stop telegraf on the hosts of a network", dispatch{
		optional:   with(nodeTargeting, "delay"),
		deployArgs: true,
	}.build},
	{"start-uploaders", "Start the uploaders of a network", dispatch{deployArgs: true}.build},
	{"stop-uploaders", "Stop the uploaders of a network", dispatch{deployArgs: true}.build},
	{"start-downloaders", "Start the downloaders of a network", dispatch{deployArgs: true}.build},
	{"stop-downloaders", "Stop the downloaders of a network", dispatch{deployArgs: true}.build},
	{"telegraf-upgrade-client-config", "Push new telegraf config to client hosts", dispatch{
		optional:   telegrafTo,
		deployArgs: true,
	}.build},
	{"telegraf-upgrade-geoip-config", "Push new telegraf geoip config", dispatch{
		optional:   telegrafTo,
		deployArgs: true,
	}.build},
	{"telegraf-upgrade-node-config", "Push new telegraf config to node hosts", dispatch{
		optional:   telegrafTo,
		deployArgs: true,
	}.build},
	{"update-peer", "Point nodes at a new peer", dispatch{
		required: []string{"peer"},
		optional: []string{"custom-inventory", "node-type"},
	}.build},
	{"upgrade-antctl", "Upgrade antctl on the hosts of a network", dispatch{
		required:   []string{"version"},
		optional:   []string{"custom-inventory", "node-type"},
		deployArgs: true,
	}.build},
	{"upgrade-clients", "Upgrade the clients of a network", dispatch{
		required:   []string{"version"},
		deployArgs: true,
	}.build},
	{"upgrade-network", "Upgrade the nodes of a network", dispatch{
		required:   []string{"version"},
		optional:   with(nodeTargeting, "delay", "interval", "force"),
		deployArgs: true,
	}.build},
}

// LookupWorkflow finds a dispatch-only workflow by name.
func LookupWorkflow(name string) (Workflow, bool) {
	for _, w := range Workflows {
		if w.Name == name {
			return w, true
		}
	}
	return Workflow{}, false
}

var clientDeployArgs = []flagMapping{
	{"ansible-forks", "--ansible-forks"},
	{"ansible-verbose", "--ansible-verbose"},
	{"branch", "--branch"},
	{"chunk-size", "--chunk-size"},
	{"client-env", "--client-env"},
	{"client-vm-count", "--client-vm-count"},
	{"client-vm-size", "--client-vm-size"},
	{"disable-download-verifier", "--disable-download-verifier"},
	{"disable-performance-verifier", "--disable-performance-verifier"},
	{"disable-random-verifier", "--disable-random-verifier"},
	{"disable-telegraf", "--disable-telegraf"},
	{"disable-uploaders", "--disable-uploaders"},
	{"evm-data-payments-address", "--evm-data-payments-address"},
	{"evm-network-type", "--evm-network-type"},
	{"evm-payment-token-address", "--evm-payment-token-address"},
	{"evm-rpc-url", "--evm-rpc-url"},
	{"expected-hash", "--expected-hash"},
	{"expected-size", "--expected-size"},
	{"file-address", "--file-address"},
	{"initial-gas", "--initial-gas"},
	{"initial-tokens", "--initial-tokens"},
	{"max-uploads", "--max-uploads"},
	{"network-contacts-url", "--network-contacts-url"},
	{"peer", "--peer"},
	{"region", "--region"},
	{"repo-owner", "--repo-owner"},
	{"uploaders-count", "--uploaders-count"},
	{"upload-size", "--upload-size"},
}

// ClientDeploy flattens a client deployment file. The workflow names its
// network input "name" and takes either a released ant-version or a
// branch and repo-owner to build from.
func ClientDeploy(cfg Config) (map[string]string, string, error) {
	name, err := cfg.NetworkName()
	if err != nil {
		return nil, "", err
	}
	env, ok := cfg.String("environment-type")
	if !ok || env == "" {
		return nil, "", fmt.Errorf("missing required input 'environment-type'")
	}
	if !EnvironmentTypes[env] {
		return nil, "", fmt.Errorf("invalid environment-type %q", env)
	}

	hasBuild := cfg.Has("branch") || cfg.Has("repo-owner")
	if cfg.Has("ant-version") && hasBuild {
		return nil, "", fmt.Errorf("cannot specify both ant-version and branch/repo-owner")
	}
	if hasBuild && !(cfg.Has("branch") && cfg.Has("repo-owner")) {
		return nil, "", fmt.Errorf("branch and repo-owner must be used together")
	}

	in := map[string]string{"name": name, "environment-type": env}
	for _, key := range []string{"ant-version", "provider"} {
		if v, ok := cfg.String(key); ok {
			in[key] = v
		}
	}
	if cfg.Has("network-id") {
		id, isInt := intValue(cfg["network-id"])
		if !isInt || id < 1 || id > 255 {
			return nil, "", fmt.Errorf("network-id must be an integer between 1 and 255")
		}
		in["network-id"] = fmt.Sprint(id)
	}
	if v, ok := cfg.String("wallet-secret-keys"); ok {
		in["wallet-secret-key"] = v
	}

	if args := buildArgs(cfg, clientDeployArgs); len(args) > 0 {
		in["client-deploy-args"] = strings.Join(args, " ")
	}
	if tda := TestnetDeployArgs(cfg); tda != "" {
		in["testnet-deploy-args"] = tda
	}
	return in, name, nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
