package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hubizz/hubizz/internal/model"
	"github.com/hubizz/hubizz/internal/monitoring"
	"github.com/hubizz/hubizz/internal/resilience"
)

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func formatFeeds(out io.Writer, feeds []model.Feed) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tCATEGORY\tINTERVAL\tACTIVE\tPRIORITY\tLAST CHECKED\tFAILS")
	for _, f := range feeds {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\t%d\t%s\t%d\n",
			f.ID, truncate(f.Title, 40), f.Category, f.FetchInterval, f.IsActive, f.Priority,
			formatTime(f.LastCheckedAt), f.FailCount)
	}
	_ = w.Flush()
}

func formatImport(out io.Writer, rec *model.ImportRecord) {
	fmt.Fprintf(out, "Import %s (feed %d): %s\n", rec.ID, rec.FeedID, rec.Status)
	fmt.Fprintf(out, "  found %d, imported %d, skipped %d\n", rec.ItemsFound, rec.ItemsImported, rec.ItemsSkipped)
	if rec.Error != "" {
		fmt.Fprintf(out, "  error: %s\n", rec.Error)
	}
	if len(rec.Log) == 0 {
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  STATUS\tCONTENT\tTITLE\tREASON")
	for _, e := range rec.Log {
		id := "-"
		if e.ContentID != nil {
			id = fmt.Sprint(*e.ContentID)
		}
		reason := e.Reason
		if e.Error != "" {
			reason = e.Error
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", e.Status, id, truncate(e.Title, 50), reason)
	}
	_ = w.Flush()
}

func formatVerdict(out io.Writer, v *model.Verdict) {
	if !v.IsDuplicate {
		fmt.Fprintf(out, "Unique (best similarity %.2f%%, threshold %.2f%%)\n", v.Similarity, v.Threshold)
		return
	}
	var parts []string
	if v.TitleMatch {
		parts = append(parts, "title")
	}
	if v.BodyMatch {
		parts = append(parts, "body")
	}
	matched := "-"
	if v.MatchedID != nil {
		matched = fmt.Sprint(*v.MatchedID)
	}
	fmt.Fprintf(out, "Duplicate of content %s: %s match, %.2f%% similar", matched, v.MatchType, v.Similarity)
	if len(parts) > 0 {
		fmt.Fprintf(out, " (%s)", strings.Join(parts, ", "))
	}
	fmt.Fprintln(out)
}

func formatStats(out io.Writer, s *model.DedupStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Total hashes:\t%d\n", s.TotalHashes)
	fmt.Fprintf(w, "Unique titles:\t%d\n", s.UniqueTitles)
	fmt.Fprintf(w, "Unique bodies:\t%d\n", s.UniqueBodies)
	fmt.Fprintf(w, "Duplicate title groups:\t%d\n", s.DuplicateTitleGroups)
	fmt.Fprintf(w, "Duplicate body groups:\t%d\n", s.DuplicateBodyGroups)
	fmt.Fprintf(w, "Duplicate percentage:\t%.2f%%\n", s.DuplicatePercentage)
	_ = w.Flush()
}

func formatSnapshot(out io.Writer, s *monitoring.MetricsSnapshot, alerts []monitoring.Alert) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Window:\tlast %dh\n", s.LookbackHours)
	fmt.Fprintf(w, "Imports:\t%d (%d completed, %d failed, %d running)\n",
		s.ImportTotal, s.ImportCompleted, s.ImportFailed, s.ImportRunning)
	fmt.Fprintf(w, "Import failure rate:\t%.1f%%\n", s.ImportFailRate*100)
	fmt.Fprintf(w, "Items imported:\t%d (%d skipped)\n", s.ItemsImported, s.ItemsSkipped)
	fmt.Fprintf(w, "Generations:\t%d (%d tokens, $%.4f)\n", s.GenerationCalls, s.GenerationTokens, s.GenerationCost)
	fmt.Fprintf(w, "DLQ depth:\t%d\n", s.DLQDepth)
	for _, f := range s.FailingFeeds {
		fmt.Fprintf(w, "Failing feed:\t#%d %s (%d failures)\n", f.ID, truncate(f.URL, 60), f.FailCount)
	}
	_ = w.Flush()

	if len(alerts) == 0 {
		fmt.Fprintln(out, "No alerts.")
		return
	}
	for _, a := range alerts {
		fmt.Fprintf(out, "[%s] %s\n", a.Severity, a.Message)
	}
}

func formatMatches(out io.Writer, matches []model.ProductMatch) {
	if len(matches) == 0 {
		fmt.Fprintln(out, "No products found.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCATEGORY\tSOURCE\tCONFIDENCE\tMENTIONS\tCATALOG")
	for _, m := range matches {
		catalogID := "-"
		if m.CatalogID != nil {
			catalogID = fmt.Sprint(*m.CatalogID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%d\t%s\n",
			m.Name, m.Category, m.Source, m.Confidence, m.MentionCount, catalogID)
	}
	_ = w.Flush()
}

func formatDLQ(out io.Writer, entries []resilience.DLQEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tTYPE\tRETRIES\tNEXT RETRY\tERROR")
	for _, e := range entries {
		next := e.NextRetryAt
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			e.ID, e.Job.Kind, e.ErrorType, e.RetryCount, e.MaxRetries, formatTime(&next), truncate(e.Error, 60))
	}
	_ = w.Flush()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
