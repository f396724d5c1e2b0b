package domain

import (
	"log/slog"
)

type Config struct {
	// DataDir is the badger database location. Ignored when InMemory is set.
	DataDir  string
	InMemory bool

	// MaxStepsPerRun bounds traversal over cyclic graphs.
	MaxStepsPerRun int
	// HistoryDepth is how many completed steps are handed to agents and to
	// routing prompts as execution history.
	HistoryDepth int

	// RoutingAgentID and ConditionAgentID designate the agents consulted for
	// router nodes and conditional edges.
	RoutingAgentID   string
	ConditionAgentID string

	// PolicyFailOpen inverts the fail-closed contract when the policy
	// pipeline itself errors. Dangerous; every use is logged distinctly.
	PolicyFailOpen bool

	Logger *slog.Logger
}

const (
	DefaultMaxStepsPerRun   = 50
	DefaultHistoryDepth     = 10
	DefaultRoutingAgentID   = "router"
	DefaultConditionAgentID = "condition"
)

func DefaultConfig() *Config {
	return &Config{
		DataDir:          "./data",
		MaxStepsPerRun:   DefaultMaxStepsPerRun,
		HistoryDepth:     DefaultHistoryDepth,
		RoutingAgentID:   DefaultRoutingAgentID,
		ConditionAgentID: DefaultConditionAgentID,
		Logger:           slog.Default(),
	}
}

// Normalize fills zero values with defaults.
func (c *Config) Normalize() {
	if c.MaxStepsPerRun <= 0 {
		c.MaxStepsPerRun = DefaultMaxStepsPerRun
	}
	if c.HistoryDepth <= 0 {
		c.HistoryDepth = DefaultHistoryDepth
	}
	if c.RoutingAgentID == "" {
		c.RoutingAgentID = DefaultRoutingAgentID
	}
	if c.ConditionAgentID == "" {
		c.ConditionAgentID = DefaultConditionAgentID
	}
	if c.DataDir == "" && !c.InMemory {
		c.DataDir = "./data"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
