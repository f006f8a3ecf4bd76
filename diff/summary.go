package diff

// Summary aggregates a Result.
type Summary struct {
	TotalAdded       int `json:"total_added"`
	TotalRemoved     int `json:"total_removed"`
	TotalModified    int `json:"total_modified"`
	TotalUnchanged   int `json:"total_unchanged"`
	NeedsTranslation int `json:"needs_translation"`
	NeedsReview      int `json:"needs_review"`
}

// Summarize counts each bucket. NeedsTranslation counts added records with
// meaningful text; NeedsReview counts modified records whose source text is
// meaningful.
func Summarize(r Result) Summary {
	s := Summary{
		TotalAdded:     len(r.Added),
		TotalRemoved:   len(r.Removed),
		TotalModified:  len(r.Modified),
		TotalUnchanged: len(r.Unchanged),
	}
	for _, rec := range r.Added {
		if IsMeaningful(rec.Content) {
			s.NeedsTranslation++
		}
	}
	for _, rec := range r.Modified {
		if IsMeaningful(rec.SourceContent) {
			s.NeedsReview++
		}
	}
	return s
}
