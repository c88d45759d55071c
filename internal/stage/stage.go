// Package stage holds the stage catalog, the registry built from it, and
// the transition classification rules. The catalog is loaded once at
// startup and treated as read-only afterwards.
package stage

import (
	"math"
	"sort"

	"github.com/pesio-ai/be-exp-cases/internal/auth"
	"github.com/pesio-ai/be-exp-cases/internal/errors"
)

// ID identifies one stage of the expropriation pipeline.
type ID string

// Special holding stages, reachable from any stage.
const (
	Suspended ID = "SUSPENDED"
	Cancelled ID = "CANCELLED"
)

// Main pipeline stages, in sequence order.
const (
	Avaluo                 ID = "AVALUO"
	RevisionLegal          ID = "REVISION_LEGAL"
	OfertaCompra           ID = "OFERTA_COMPRA"
	NotificacionOferta     ID = "NOTIFICACION_OFERTA"
	Negociacion            ID = "NEGOCIACION"
	ResolucionExpropiacion ID = "RESOLUCION_EXPROPIACION"
	DemandaExpropiacion    ID = "DEMANDA_EXPROPIACION"
	EntregaAnticipada      ID = "ENTREGA_ANTICIPADA"
	Sentencia              ID = "SENTENCIA"
	Indemnizacion          ID = "INDEMNIZACION"
	RegistroTransferencia  ID = "REGISTRO_TRANSFERENCIA"
	ActaEntrega            ID = "ACTA_ENTREGA"
	CierreArchivo          ID = "CIERRE_ARCHIVO"
)

// AutoAssignRule selects the next responsible user on stage entry.
// Department is an optional additional filter on top of the role.
type AutoAssignRule struct {
	Role       auth.Role
	Department *string
}

// ChecklistItem is one item of a stage's checklist template. Required items
// gate forward progression out of the stage.
type ChecklistItem struct {
	ID           string
	Label        string
	Required     bool
	DocumentType string
}

// Stage is one node of the case pipeline. Immutable after catalog load.
type Stage struct {
	ID                    ID
	Name                  string
	SequenceOrder         int // 0 for special stages
	Department            string
	EstimatedDurationDays int // 0 = no estimate, assignments get no due date
	RequiredDocuments     []string
	AutoAssignment        *AutoAssignRule
	Checklist             []ChecklistItem
	Special               bool
}

// Registry is the read-only stage catalog index.
type Registry struct {
	stages  map[ID]*Stage
	ordered []*Stage // main stages sorted by sequence order
}

// NewRegistry indexes and validates a stage catalog. Main stage sequence
// orders must be unique and contiguous starting at 1, and both special
// stages must be present.
func NewRegistry(stages []*Stage) (*Registry, error) {
	r := &Registry{stages: make(map[ID]*Stage, len(stages))}

	for _, s := range stages {
		if s.ID == "" {
			return nil, errors.InvalidInput("stage catalog", "stage with empty id")
		}
		if _, dup := r.stages[s.ID]; dup {
			return nil, errors.InvalidInput("stage catalog", "duplicate stage id: "+string(s.ID))
		}
		if s.Special && s.SequenceOrder != 0 {
			return nil, errors.InvalidInput("stage catalog", "special stage must not carry a sequence order: "+string(s.ID))
		}
		if !s.Special && s.SequenceOrder <= 0 {
			return nil, errors.InvalidInput("stage catalog", "main stage needs a positive sequence order: "+string(s.ID))
		}
		r.stages[s.ID] = s
		if !s.Special {
			r.ordered = append(r.ordered, s)
		}
	}

	sort.Slice(r.ordered, func(i, j int) bool {
		return r.ordered[i].SequenceOrder < r.ordered[j].SequenceOrder
	})

	if len(r.ordered) < 2 {
		return nil, errors.InvalidInput("stage catalog", "at least two main stages required")
	}
	for i, s := range r.ordered {
		if s.SequenceOrder != i+1 {
			return nil, errors.InvalidInput("stage catalog",
				"main stage sequence orders must be contiguous starting at 1, got "+string(s.ID))
		}
	}
	for _, special := range []ID{Suspended, Cancelled} {
		s, ok := r.stages[special]
		if !ok || !s.Special {
			return nil, errors.InvalidInput("stage catalog", "missing special stage: "+string(special))
		}
	}

	return r, nil
}

// Lookup returns the stage for the given id.
func (r *Registry) Lookup(id ID) (*Stage, error) {
	s, ok := r.stages[id]
	if !ok {
		return nil, errors.NotFound("stage", string(id))
	}
	return s, nil
}

// OrderedMainStages returns the main stages sorted by sequence order,
// special stages excluded. Callers must not mutate the result.
func (r *Registry) OrderedMainStages() []*Stage {
	return r.ordered
}

// IsSpecial reports whether id names a special holding stage. Unknown ids
// are not special.
func (r *Registry) IsSpecial(id ID) bool {
	s, ok := r.stages[id]
	return ok && s.Special
}

// First returns the first main stage, where new cases start.
func (r *Registry) First() *Stage {
	return r.ordered[0]
}

// Terminal returns the final closure stage.
func (r *Registry) Terminal() *Stage {
	return r.ordered[len(r.ordered)-1]
}

// Progress computes the case progress percentage on entering target. For
// special stages the case keeps its current percentage.
func (r *Registry) Progress(target ID, current int) int {
	s, ok := r.stages[target]
	if !ok || s.Special {
		return current
	}
	span := len(r.ordered) - 1
	return int(math.Round(float64(s.SequenceOrder-1) / float64(span) * 100))
}

// RequiredItems returns the required checklist items of a stage's template.
func (r *Registry) RequiredItems(id ID) []ChecklistItem {
	s, ok := r.stages[id]
	if !ok {
		return nil
	}
	var items []ChecklistItem
	for _, item := range s.Checklist {
		if item.Required {
			items = append(items, item)
		}
	}
	return items
}
