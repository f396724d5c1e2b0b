package ports

import (
	"github.com/eleven-am/warden/internal/domain"
)

// ChainPort projects steps and events into the hash-linked audit chain and
// renders it as LLM-readable execution history.
type ChainPort interface {
	Build(steps []domain.Step, events []domain.Event, run *domain.Run) *domain.Chain
	Render(chain *domain.Chain) string
	Verify(record *domain.AtomicRecord, prevHash string) bool
}
