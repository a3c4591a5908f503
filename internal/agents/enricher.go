package agents

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"

	"crucible/internal/pipeline"
	"crucible/internal/session"
)

// Enricher attaches semantic context to an evaluated conversion: terms built
// from the normalized metadata against the configured ontology, anchored by a
// stable knowledge-graph reference.
type Enricher struct {
	ontology string
	log      *slog.Logger
}

// NewEnricher builds the enrichment worker.
func NewEnricher(ontology string) (*Enricher, error) {
	if ontology == "" {
		return nil, fmt.Errorf("enricher: ontology not configured")
	}
	return &Enricher{ontology: ontology, log: newLog(pipeline.KindEnrichment)}, nil
}

func (e *Enricher) Kind() pipeline.Kind { return pipeline.KindEnrichment }

// Execute derives ontology terms from the session's metadata and mints the
// knowledge-graph reference. The same session and metadata always produce
// the same reference, so re-running enrichment after a reset is stable.
func (e *Enricher) Execute(ctx context.Context, req pipeline.Request) (*pipeline.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := req.Slots[session.SlotEvaluationReport]; !ok {
		return nil, fmt.Errorf("enricher: session slot %q is empty", session.SlotEvaluationReport)
	}
	meta, _ := req.Slots[session.SlotNormalizedMetadata].(map[string]any)
	if len(meta) == 0 {
		return nil, fmt.Errorf("enricher: session slot %q is empty", session.SlotNormalizedMetadata)
	}

	terms := deriveTerms(e.ontology, meta)
	ref := graphRef(e.ontology, req.SessionKey, terms)

	e.log.Info("metadata enriched", "ontology", e.ontology, "terms", len(terms), "ref", ref)

	return &pipeline.Response{Payload: map[string]any{
		"knowledge_graph_ref": ref,
		"ontology":            e.ontology,
		"terms":               terms,
	}}, nil
}

// deriveTerms maps metadata keys onto ontology-qualified term labels.
func deriveTerms(ontology string, meta map[string]any) []string {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	terms := make([]string, 0, len(keys))
	for _, k := range keys {
		terms = append(terms, fmt.Sprintf("%s:%s", ontology, k))
	}
	return terms
}

// graphRef mints a deterministic kg:// reference from the session key and
// derived terms.
func graphRef(ontology, sessionKey string, terms []string) string {
	h := sha256.New()
	h.Write([]byte(sessionKey))
	for _, t := range terms {
		h.Write([]byte{0})
		h.Write([]byte(t))
	}
	return fmt.Sprintf("kg://%s/%s", ontology, hex.EncodeToString(h.Sum(nil))[:16])
}
