package meme

import (
	"fmt"
	"path"
	"strings"
)

// Outcome is the result of processing one item in a batch.
type Outcome struct {
	sourceID    string
	description string
	err         error
}

// NewOutcome creates an Outcome. A nil err means the item was indexed.
func NewOutcome(sourceID, description string, err error) Outcome {
	return Outcome{sourceID: sourceID, description: description, err: err}
}

// SourceID returns the canonical identifier of the item.
func (o Outcome) SourceID() string { return o.sourceID }

// Description returns the generated caption, empty on failure.
func (o Outcome) Description() string { return o.description }

// Err returns the failure reason, or nil.
func (o Outcome) Err() error { return o.err }

// Succeeded reports whether the item was indexed.
func (o Outcome) Succeeded() bool { return o.err == nil }

// Summary describes a completed indexing batch.
type Summary struct {
	discovered int
	skipped    int
	outcomes   []Outcome
}

// NewSummary creates a Summary. Outcomes are kept in processing order.
func NewSummary(discovered, skipped int, outcomes []Outcome) Summary {
	out := make([]Outcome, len(outcomes))
	copy(out, outcomes)
	return Summary{discovered: discovered, skipped: skipped, outcomes: out}
}

// Discovered returns the number of distinct identifiers submitted.
func (s Summary) Discovered() int { return s.discovered }

// Skipped returns the number of identifiers that were already indexed.
func (s Summary) Skipped() int { return s.skipped }

// Outcomes returns per-item outcomes for the items that were attempted.
func (s Summary) Outcomes() []Outcome {
	out := make([]Outcome, len(s.outcomes))
	copy(out, s.outcomes)
	return out
}

// Indexed returns the identifiers that were successfully indexed.
func (s Summary) Indexed() []string {
	ids := make([]string, 0, len(s.outcomes))
	for _, o := range s.outcomes {
		if o.Succeeded() {
			ids = append(ids, o.sourceID)
		}
	}
	return ids
}

// Succeeded returns the number of indexed items.
func (s Summary) Succeeded() int { return len(s.Indexed()) }

// Failures returns the outcomes that failed.
func (s Summary) Failures() []Outcome {
	var failed []Outcome
	for _, o := range s.outcomes {
		if !o.Succeeded() {
			failed = append(failed, o)
		}
	}
	return failed
}

// Failed returns the number of failed items.
func (s Summary) Failed() int { return len(s.Failures()) }

// NothingToDo reports whether every submitted item was already indexed.
func (s Summary) NothingToDo() bool { return len(s.outcomes) == 0 }

// InvalidFolderMessage is shown when a folder to index does not exist.
const InvalidFolderMessage = "Error: Please provide a valid folder path."

// Report renders the batch as the progress text shown to users.
func (s Summary) Report() string {
	if s.NothingToDo() {
		return "All memes are already indexed. Nothing to do."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d new memes to index...\n", len(s.outcomes))
	for _, o := range s.outcomes {
		if o.Succeeded() {
			fmt.Fprintf(&b, "Generated description for '%s'\n", path.Base(o.sourceID))
			continue
		}
		fmt.Fprintf(&b, "Could not process %s: %v\n", o.sourceID, o.err)
	}
	if n := s.Succeeded(); n > 0 {
		fmt.Fprintf(&b, "\nSuccessfully indexed %d new memes.", n)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
