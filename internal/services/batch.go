package services

// BatchItem is the outcome of one (template, period) or (date, type) slot in a
// generation run.
type BatchItem struct {
	Key        string `json:"key"`
	Created    bool   `json:"created"`
	SkipReason string `json:"skip_reason,omitempty"`
	Error      string `json:"error,omitempty"`
}

// BatchSummary is returned by every batch job. A failing item never aborts the
// run; it is recorded here and the run continues.
type BatchSummary struct {
	Created int         `json:"created"`
	Skipped int         `json:"skipped"`
	Failed  int         `json:"failed"`
	Items   []BatchItem `json:"items"`
}

func (s *BatchSummary) addCreated(key string) {
	s.Created++
	s.Items = append(s.Items, BatchItem{Key: key, Created: true})
}

func (s *BatchSummary) addSkipped(key, reason string) {
	s.Skipped++
	s.Items = append(s.Items, BatchItem{Key: key, SkipReason: reason})
}

func (s *BatchSummary) addFailed(key string, err error) {
	s.Failed++
	s.Items = append(s.Items, BatchItem{Key: key, Error: err.Error()})
}
