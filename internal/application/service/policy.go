package service

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ExclusionPolicy names source records deliberately left out of migration.
// Excluded records are skipped by the migrator and ignored by the validators,
// so the count invariant still holds for everything the policy covers.
type ExclusionPolicy struct {
	ExcludedAssetIDs []string `yaml:"excluded_asset_ids"`

	excluded map[string]bool
}

// NewExclusionPolicy builds a policy from explicit asset IDs.
func NewExclusionPolicy(ids ...string) *ExclusionPolicy {
	policy := &ExclusionPolicy{ExcludedAssetIDs: ids}
	policy.index()
	return policy
}

// LoadPolicy reads an exclusion policy from a YAML file. An empty path
// returns an empty policy.
func LoadPolicy(path string) (*ExclusionPolicy, error) {
	policy := &ExclusionPolicy{}
	if path == "" {
		policy.index()
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, policy); err != nil {
		return nil, fmt.Errorf("parse policy file %s: %w", path, err)
	}

	policy.index()
	return policy, nil
}

func (p *ExclusionPolicy) index() {
	p.excluded = make(map[string]bool, len(p.ExcludedAssetIDs))
	for _, id := range p.ExcludedAssetIDs {
		p.excluded[id] = true
	}
}

// Excluded reports whether the asset ID is excluded by policy.
func (p *ExclusionPolicy) Excluded(assetID string) bool {
	return p.excluded[assetID]
}

// Count returns the number of excluded asset IDs.
func (p *ExclusionPolicy) Count() int {
	return len(p.excluded)
}
