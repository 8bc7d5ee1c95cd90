package history

import (
	"context"
	"strings"
)

// RetrieverConfig bounds evidence retrieval.
type RetrieverConfig struct {
	TopK             int // items handed to the model (default 6)
	SearchMargin     int // extra similarity hits fetched before merging (default 4, negative for none)
	ChronicScanLimit int // chronic records scanned per query (default 50)
}

func (c RetrieverConfig) withDefaults() RetrieverConfig {
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.SearchMargin < 0 {
		c.SearchMargin = 0
	} else if c.SearchMargin == 0 {
		c.SearchMargin = 4
	}
	if c.ChronicScanLimit <= 0 {
		c.ChronicScanLimit = 50
	}
	return c
}

// Retriever gathers the ranked evidence set for a patient's symptoms.
type Retriever struct {
	store  *Store
	scorer *Scorer
	cfg    RetrieverConfig
}

// NewRetriever creates a Retriever.
func NewRetriever(store *Store, scorer *Scorer, cfg RetrieverConfig) *Retriever {
	return &Retriever{store: store, scorer: scorer, cfg: cfg.withDefaults()}
}

// TopK returns the configured evidence bound.
func (r *Retriever) TopK() int { return r.cfg.TopK }

// Evidence runs the similarity search for topK+margin hits and the chronic
// scan, then merges them. The result never exceeds the configured TopK;
// topK <= 0 searches with that bound too.
func (r *Retriever) Evidence(ctx context.Context, patientID, symptoms string, topK int) ([]ScoredItem, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, NewInputError("patient_id", "must not be empty")
	}
	if topK <= 0 {
		topK = r.cfg.TopK
	}

	similar, err := r.store.Similar(ctx, patientID, symptoms, topK+r.cfg.SearchMargin)
	if err != nil {
		return nil, err
	}
	chronic, err := r.store.Chronic(ctx, patientID, r.cfg.ChronicScanLimit)
	if err != nil {
		return nil, err
	}
	return Merge(similar, chronic, r.scorer, r.cfg.TopK), nil
}
