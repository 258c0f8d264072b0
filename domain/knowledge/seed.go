// Package knowledge holds the medical knowledge graph: symptoms, diagnoses
// and medications, linked by HAS_SYMPTOM, TREATS and CONTRAINDICATED_FOR
// edges. It seeds the graph through the graph controller and serves lookups.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/medgraph/medgraph/pkg/logger"
)

// Node tables.
const (
	TableSymptom    = "symptom"
	TableDiagnosis  = "diagnosis"
	TableMedication = "medication"
)

// Edge tables.
const (
	EdgeHasSymptom         = "HAS_SYMPTOM"
	EdgeTreats             = "TREATS"
	EdgeContraindicatedFor = "CONTRAINDICATED_FOR"
)

// Node is a graph vertex.
type Node struct {
	Table string
	Key   string
	Name  string
}

// Record returns the node's record reference.
func (n Node) Record() string { return n.Table + ":" + n.Key }

// Edge is a directed, typed link with an optional payload.
type Edge struct {
	From    string
	Table   string
	To      string
	Payload map[string]any
}

// Nodes returns the seed vertices.
func Nodes() []Node {
	return []Node{
		{Table: TableSymptom, Key: "loss_of_appetite", Name: "Loss of appetite"},
		{Table: TableSymptom, Key: "fatigue", Name: "Fatigue"},
		{Table: TableDiagnosis, Key: "depression", Name: "Depression"},
		{Table: TableDiagnosis, Key: "flu", Name: "Influenza (Flu)"},
		{Table: TableMedication, Key: "prozac", Name: "Prozac"},
		{Table: TableMedication, Key: "ibuprofen", Name: "Ibuprofen"},
		{Table: TableMedication, Key: "warfarin", Name: "Warfarin"},
	}
}

// Edges returns the seed edges. Every endpoint is one of Nodes().
func Edges() []Edge {
	const bleeding = "Increases risk of bleeding when taken concurrently."
	return []Edge{
		// diagnosis -> HAS_SYMPTOM -> symptom
		{From: "diagnosis:depression", Table: EdgeHasSymptom, To: "symptom:loss_of_appetite",
			Payload: map[string]any{"note": "Common symptom in depression"}},
		{From: "diagnosis:depression", Table: EdgeHasSymptom, To: "symptom:fatigue",
			Payload: map[string]any{"note": "Patients often report feeling very tired"}},
		{From: "diagnosis:flu", Table: EdgeHasSymptom, To: "symptom:fatigue",
			Payload: map[string]any{"note": "Fatigue is frequently reported in flu"}},

		// medication -> TREATS -> diagnosis
		{From: "medication:prozac", Table: EdgeTreats, To: "diagnosis:depression",
			Payload: map[string]any{"note": "Used for major depressive disorder"}},
		{From: "medication:ibuprofen", Table: EdgeTreats, To: "diagnosis:flu",
			Payload: map[string]any{"note": "Helps reduce fever and pain"}},

		// symptom -> CONTRAINDICATED_FOR -> medication
		{From: "symptom:fatigue", Table: EdgeContraindicatedFor, To: "medication:prozac",
			Payload: map[string]any{"reason": "Prozac can worsen sedation in some patients"}},
		{From: "symptom:fatigue", Table: EdgeContraindicatedFor, To: "medication:warfarin",
			Payload: map[string]any{"reason": bleeding}},

		// medication -> CONTRAINDICATED_FOR -> medication
		{From: "medication:warfarin", Table: EdgeContraindicatedFor, To: "medication:ibuprofen",
			Payload: map[string]any{"reason": bleeding}},
		{From: "medication:warfarin", Table: EdgeContraindicatedFor, To: "medication:prozac",
			Payload: map[string]any{"reason": bleeding}},
	}
}

// GraphWriter is the part of graph.Controller the seeder needs.
type GraphWriter interface {
	Upsert(ctx context.Context, record string, fields map[string]any) (any, error)
	Relate(ctx context.Context, source, edgeTable, destination string, payload map[string]any) (any, error)
}

// EdgeInvalidator drops cached lookups of edge tables the seeder wrote to.
type EdgeInvalidator interface {
	InvalidateEdges(ctx context.Context, edgeTables ...string)
}

// SeedReport summarizes a seeding run.
type SeedReport struct {
	Nodes    int           `json:"nodes"`
	Edges    int           `json:"edges"`
	Duration time.Duration `json:"duration_ns"`
}

// Seeder writes the seed graph.
type Seeder struct {
	graph GraphWriter
	cache EdgeInvalidator
	log   *slog.Logger
}

// NewSeeder creates a seeder.
func NewSeeder(graph GraphWriter, log *slog.Logger) *Seeder {
	if log == nil {
		log = slog.Default()
	}
	return &Seeder{graph: graph, log: log.With(logger.Scope("knowledge"))}
}

// SetInvalidator makes Seed drop cached lookups of every edge table it wrote to.
func (s *Seeder) SetInvalidator(inv EdgeInvalidator) {
	s.cache = inv
}

// Seed upserts every node, then relates every edge. Nodes are idempotent;
// edges are created anew on each run. It stops at the first failure; edges
// written before it still invalidate their cached lookups.
func (s *Seeder) Seed(ctx context.Context) (*SeedReport, error) {
	start := time.Now()
	report := &SeedReport{}

	var written []string
	defer func() {
		if s.cache != nil && len(written) > 0 {
			s.cache.InvalidateEdges(context.WithoutCancel(ctx), written...)
		}
	}()

	for _, n := range Nodes() {
		if _, err := s.graph.Upsert(ctx, n.Record(), map[string]any{"name": n.Name}); err != nil {
			return report, fmt.Errorf("upsert node %s: %w", n.Record(), err)
		}
		report.Nodes++
	}

	for _, e := range Edges() {
		if _, err := s.graph.Relate(ctx, e.From, e.Table, e.To, e.Payload); err != nil {
			return report, fmt.Errorf("relate %s -> %s -> %s: %w", e.From, e.Table, e.To, err)
		}
		if !slices.Contains(written, e.Table) {
			written = append(written, e.Table)
		}
		report.Edges++
	}

	report.Duration = time.Since(start)
	s.log.Info("knowledge graph seeded",
		slog.Int("nodes", report.Nodes),
		slog.Int("edges", report.Edges),
		slog.Duration("duration", report.Duration))
	return report, nil
}
