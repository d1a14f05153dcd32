package model

import (
	"encoding/json"
)

// JobKind names a unit of background work.
type JobKind string

const (
	JobImportFeed      JobKind = "import_feed"
	JobProcessProducts JobKind = "process_products"
	JobGenerateArticle JobKind = "generate_article"
)

// Job is a queued unit of background work. Payload is kind-specific JSON.
type Job struct {
	Kind    JobKind         `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}
