// Package builtin provides the tool implementations shipped with the service.
package builtin

import (
	"time"

	docrepo "github.com/getnvoi/aven-sub001/internal/data/repos/documents"
	"github.com/getnvoi/aven-sub001/internal/llm"
	"github.com/getnvoi/aven-sub001/internal/modules/tools"
)

const (
	CalculatorName     = "builtin.calculator"
	DocumentSearchName = "builtin.document_search"
	CurrentTimeName    = "builtin.current_time"
)

type Deps struct {
	Embedder  llm.Embedder
	Documents docrepo.DocumentRepo
	Now       func() time.Time
}

// Register adds the built-in implementations to reg. Document search is only
// registered when an embedder and document repo are available.
func Register(reg *tools.Registry, deps Deps) error {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	if err := reg.Register(CalculatorName, func() (tools.Implementation, error) {
		return NewCalculator()
	}); err != nil {
		return err
	}
	if err := reg.Register(CurrentTimeName, func() (tools.Implementation, error) {
		return &CurrentTime{Now: now}, nil
	}); err != nil {
		return err
	}
	if deps.Embedder != nil && deps.Documents != nil {
		if err := reg.Register(DocumentSearchName, func() (tools.Implementation, error) {
			return &DocumentSearch{Embedder: deps.Embedder, Documents: deps.Documents}, nil
		}); err != nil {
			return err
		}
	}
	return nil
}
