package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/eleven-am/warden/internal/domain"
	"github.com/eleven-am/warden/internal/ports"
	"gopkg.in/yaml.v3"
)

// PolicyPack is the on-disk YAML form of a policy set.
type PolicyPack struct {
	Policies  []domain.Policy        `yaml:"policies"`
	Tools     []domain.Tool          `yaml:"tools"`
	Contracts []domain.AgentContract `yaml:"agent_contracts"`
}

// LoadPack reads a YAML policy pack and persists its policies, tool records
// and agent contracts.
func LoadPack(ctx context.Context, path string, policies ports.PolicyRepository, tools ports.ToolRepository, agents ports.AgentRepository) (*PolicyPack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy pack: %w", err)
	}

	var pack PolicyPack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("parse policy pack: %w", err)
	}

	for i := range pack.Policies {
		if err := policies.Save(ctx, &pack.Policies[i]); err != nil {
			return nil, fmt.Errorf("save policy %s: %w", pack.Policies[i].Name, err)
		}
	}
	for i := range pack.Tools {
		if err := tools.Save(ctx, &pack.Tools[i]); err != nil {
			return nil, fmt.Errorf("save tool %s: %w", pack.Tools[i].ID, err)
		}
	}
	for i := range pack.Contracts {
		if err := agents.SaveContract(ctx, &pack.Contracts[i]); err != nil {
			return nil, fmt.Errorf("save agent contract %s: %w", pack.Contracts[i].AgentID, err)
		}
	}

	return &pack, nil
}
