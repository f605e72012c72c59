// Package report renders analysis results as JSON plans, CSV tables,
// repository maps, and Mermaid diagrams.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/rjpower/portmap/internal/pipeline"
)

const planSchemaVersion = "v1"

var (
	schemaCacheMu sync.Mutex
	schemaCache   = make(map[string]*jsonschema.Schema)
)

// PlanDocument is the serialized form of a processing plan.
type PlanDocument struct {
	SchemaVersion string        `json:"schema_version"`
	GeneratedAt   string        `json:"generated_at"`
	Source        PlanSource    `json:"source"`
	Batches       []PlanBatch   `json:"batches"`
	SkippedFiles  []SkippedFile `json:"skipped_files,omitempty"`
}

type PlanSource struct {
	Files    int `json:"files"`
	Entities int `json:"entities"`
	Edges    int `json:"edges"`
	Cycles   int `json:"cycles"`
}

type PlanBatch struct {
	Index    int          `json:"index"`
	IsCycle  bool         `json:"is_cycle"`
	Entities []PlanEntity `json:"entities"`
	Internal []string     `json:"internal_deps,omitempty"`
	External []string     `json:"external_deps,omitempty"`
}

type PlanEntity struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Namespace string `json:"namespace"`
	File      string `json:"file"`
	Line      int    `json:"line"`
	HasBody   bool   `json:"has_body"`
}

type SkippedFile struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

// BuildPlanDocument flattens an analysis result into its serialized form.
func BuildPlanDocument(res *pipeline.Result) *PlanDocument {
	doc := &PlanDocument{
		SchemaVersion: planSchemaVersion,
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
		Source: PlanSource{
			Files:    res.Stats.Files,
			Entities: res.Stats.Entities,
			Edges:    res.Stats.Edges,
			Cycles:   res.Stats.Cycles,
		},
		Batches: make([]PlanBatch, 0, len(res.Plan.Batches)),
	}

	for i, b := range res.Plan.Batches {
		batch := PlanBatch{
			Index:    i,
			IsCycle:  b.IsCycle,
			Entities: make([]PlanEntity, 0, len(b.Entities)),
			Internal: b.Internal,
			External: b.External,
		}
		for _, e := range b.Entities {
			batch.Entities = append(batch.Entities, PlanEntity{
				Name:      e.Name,
				Kind:      string(e.Kind),
				Namespace: string(e.Kind.Namespace()),
				File:      e.File,
				Line:      e.Line,
				HasBody:   e.HasBody,
			})
		}
		doc.Batches = append(doc.Batches, batch)
	}

	for _, pe := range res.ParseErrors {
		doc.SkippedFiles = append(doc.SkippedFiles, SkippedFile{File: pe.File, Reason: pe.Reason})
	}
	return doc
}

// LoadPlan reads and structurally validates a previously saved plan.
func LoadPlan(path string) (*PlanDocument, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc PlanDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// SavePlan validates the document against the plan JSON schema and
// writes it indented.
func SavePlan(path string, doc *PlanDocument) error {
	if err := validatePlanWithSchema(path, doc); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return os.WriteFile(path, b, 0644)
}

// Validate checks document shape: batch indices, non-empty batches, and
// key uniqueness. Field-level constraints are left to the JSON schema.
func (d *PlanDocument) Validate() error {
	if d == nil {
		return fmt.Errorf("plan document is nil")
	}
	if d.SchemaVersion == "" {
		return fmt.Errorf("schema_version is required")
	}
	seen := make(map[string]bool)
	for i, b := range d.Batches {
		if b.Index != i {
			return fmt.Errorf("batch %d carries index %d", i, b.Index)
		}
		if len(b.Entities) == 0 {
			return fmt.Errorf("batch %d has no entities", i)
		}
		for _, e := range b.Entities {
			if e.Name == "" {
				return fmt.Errorf("batch %d contains an unnamed entity", i)
			}
			key := e.Namespace + ":" + e.Name
			if seen[key] {
				return fmt.Errorf("duplicate entity in plan: %s", key)
			}
			seen[key] = true
		}
	}
	return nil
}

func validatePlanWithSchema(planPath string, doc *PlanDocument) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	schemaPath := resolvePlanSchemaPath(planPath)
	if schemaPath == "" {
		return fmt.Errorf("plan schema file not found")
	}

	schema, err := loadCompiledSchema(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to compile plan schema: %w", err)
	}

	var v any
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal plan for schema validation: %w", err)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("failed to normalize plan for schema validation: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("plan schema validation failed: %w", err)
	}
	return nil
}

func resolvePlanSchemaPath(planPath string) string {
	candidates := []string{
		filepath.Join(filepath.Dir(planPath), "plan.schema.json"),
		filepath.Join("docs", "plan.schema.json"),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func loadCompiledSchema(schemaPath string) (*jsonschema.Schema, error) {
	abs, err := filepath.Abs(schemaPath)
	if err != nil {
		return nil, err
	}

	schemaCacheMu.Lock()
	if cached, ok := schemaCache[abs]; ok {
		schemaCacheMu.Unlock()
		return cached, nil
	}
	schemaCacheMu.Unlock()

	compiler := jsonschema.NewCompiler()
	compiled, err := compiler.Compile("file://" + filepath.ToSlash(abs))
	if err != nil {
		return nil, err
	}

	schemaCacheMu.Lock()
	schemaCache[abs] = compiled
	schemaCacheMu.Unlock()
	return compiled, nil
}
