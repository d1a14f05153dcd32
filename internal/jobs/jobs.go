// Package jobs runs background work: feed imports, product processing, and
// article generation. Jobs run on a bounded worker pool, retry on failure,
// and land in the dead letter queue when they run out of attempts.
package jobs

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/hubizz/hubizz/internal/model"
)

// Handler runs one job of a given kind.
type Handler func(ctx context.Context, payload json.RawMessage) error

// ImportFeedPayload is the payload of an import_feed job.
type ImportFeedPayload struct {
	FeedID int64 `json:"feed_id"`
}

// ProcessProductsPayload is the payload of a process_products job.
type ProcessProductsPayload struct {
	ContentID int64 `json:"content_id"`
}

// GenerateArticlePayload is the payload of a generate_article job.
type GenerateArticlePayload struct {
	Topic           string `json:"topic"`
	Words           int    `json:"words,omitempty"`
	Category        string `json:"category,omitempty"`
	Publish         bool   `json:"publish,omitempty"`
	AllowDuplicates bool   `json:"allow_duplicates,omitempty"`
}

// ImportFeedJob builds an import_feed job.
func ImportFeedJob(feedID int64) model.Job {
	return newJob(model.JobImportFeed, ImportFeedPayload{FeedID: feedID})
}

// ProcessProductsJob builds a process_products job.
func ProcessProductsJob(contentID int64) model.Job {
	return newJob(model.JobProcessProducts, ProcessProductsPayload{ContentID: contentID})
}

// GenerateArticleJob builds a generate_article job.
func GenerateArticleJob(p GenerateArticlePayload) model.Job {
	return newJob(model.JobGenerateArticle, p)
}

func newJob(kind model.JobKind, payload any) model.Job {
	// The payload types above always marshal.
	raw, _ := json.Marshal(payload)
	return model.Job{Kind: kind, Payload: raw}
}

func decode[T any](kind model.JobKind, raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, model.Wrap(model.ErrInvalidInput, eris.Wrapf(err, "jobs: decode %s payload", kind))
	}
	return v, nil
}
