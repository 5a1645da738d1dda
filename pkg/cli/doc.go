// Package cli holds what the voicegate commands share: kubectl-style
// contexts stored in ~/.voicegate/config.yaml, result output as YAML or
// JSON with an optional jq filter, and request files in YAML or JSON.
package cli
