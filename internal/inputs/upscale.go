package inputs

import "strings"

var upscaleArgs = []flagMapping{
	{"ansible-verbose", "--ansible-verbose"},
	{"antctl-version", "--antctl-version"},
	{"antnode-version", "--antnode-version"},
	{"ant-version", "--ant-version"},
	{"branch", "--branch"},
	{"desired-client-vm-count", "--desired-client-vm-count"},
	{"desired-node-count", "--desired-node-count"},
	{"desired-node-vm-count", "--desired-node-vm-count"},
	{"desired-peer-cache-node-count", "--desired-peer-cache-node-count"},
	{"desired-peer-cache-node-vm-count", "--desired-peer-cache-node-vm-count"},
	{"desired-full-cone-private-node-count", "--desired-full-cone-private-node-count"},
	{"desired-full-cone-private-node-vm-count", "--desired-full-cone-private-node-vm-count"},
	{"desired-symmetric-private-node-count", "--desired-symmetric-private-node-count"},
	{"desired-symmetric-private-node-vm-count", "--desired-symmetric-private-node-vm-count"},
	{"desired-uploaders-count", "--desired-uploaders-count"},
	{"funding-wallet-secret-key", "--funding-wallet-secret-key"},
	{"infra-only", "--infra-only"},
	{"interval", "--interval"},
	{"max-archived-log-files", "--max-archived-log-files"},
	{"max-log-files", "--max-log-files"},
	{"network-dashboard-branch", "--network-dashboard-branch"},
	{"plan", "--plan"},
	{"provider", "--provider"},
	{"public-rpc", "--public-rpc"},
	{"repo-owner", "--repo-owner"},
}

// Upscale flattens an upscale file to workflow inputs.
func Upscale(cfg Config) (map[string]string, string, error) {
	name, err := cfg.NetworkName()
	if err != nil {
		return nil, "", err
	}

	in := map[string]string{"network-name": name}
	if v, ok := cfg.String("node-env"); ok {
		in["node-env"] = v
	}

	args := buildArgs(cfg, upscaleArgs)
	extra, err := extraArgs(cfg)
	if err != nil {
		return nil, "", err
	}
	args = append(args, extra...)
	if len(args) > 0 {
		in["upscale-args"] = strings.Join(args, " ")
	}

	if tda := TestnetDeployArgs(cfg); tda != "" {
		in["testnet-deploy-args"] = tda
	}
	return in, name, nil
}

// Destroy flattens a destroy file to workflow inputs.
func Destroy(cfg Config) (map[string]string, string, error) {
	name, err := cfg.NetworkName()
	if err != nil {
		return nil, "", err
	}

	in := map[string]string{"network-name": name}
	if tda := TestnetDeployArgs(cfg); tda != "" {
		in["testnet-deploy-args"] = tda
	}
	return in, name, nil
}
