package model

import "time"

// Batch is a set of records scored together against a single "now".
type Batch struct {
	ID         string         `json:"id" yaml:"id"`
	Source     string         `json:"source" yaml:"source"`
	ScoredAt   time.Time      `json:"scored_at" yaml:"scored_at"`
	ConfigHash string         `json:"config_hash" yaml:"config_hash"`
	Count      int            `json:"record_count" yaml:"record_count"`
	Records    []ClientRecord `json:"records,omitempty" yaml:"records,omitempty"`
	CreatedAt  time.Time      `json:"created_at" yaml:"created_at"`
}

// BatchMeta returns a copy of the batch without its records.
func (b Batch) BatchMeta() Batch {
	b.Records = nil
	return b
}
