package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

const (
	// Version identifies the tool that produced an export.
	Version = "0.1.0"
	// ExportVersion is the version of the export document layout.
	ExportVersion = 1
)

// Envelope heads an export document.
type Envelope struct {
	Version       int    `json:"version"`
	ExportedAt    string `json:"exported_at"`
	SchemaVersion int    `json:"schema_version"`
	Source        string `json:"source"`
}

// ExportedRun is the JSON form of a Run.
type ExportedRun struct {
	RunID      string `json:"run_id"`
	Mode       string `json:"mode"`
	Endpoint   string `json:"endpoint"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	Passed     int    `json:"passed"`
	Failed     int    `json:"failed"`
}

// ExportedResult is the JSON form of an Entry.
type ExportedResult struct {
	RunID      string `json:"run_id"`
	Seq        int    `json:"seq"`
	Name       string `json:"name"`
	Mode       string `json:"mode"`
	Category   string `json:"category"`
	Key        string `json:"key"`
	Size       int64  `json:"size"`
	Passed     bool   `json:"passed"`
	Reason     string `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Document is a full ledger export.
type Document struct {
	Export  Envelope         `json:"integrity_export"`
	Runs    []ExportedRun    `json:"runs"`
	Results []ExportedResult `json:"results"`
}

// ExportOptions selects what to export.
type ExportOptions struct {
	// RunID restricts the export to one run. Empty exports every run.
	RunID string
	// FailedOnly drops passing results.
	FailedOnly bool
}

// Export writes the ledger as an indented JSON document.
func (s *Store) Export(ctx context.Context, w io.Writer, opts ExportOptions) error {
	runs, err := s.Runs(ctx)
	if err != nil {
		return err
	}

	doc := Document{
		Export: Envelope{
			Version:       ExportVersion,
			ExportedAt:    time.Now().UTC().Format(timeFormat),
			SchemaVersion: schemaVersion,
			Source:        "go/" + Version,
		},
		Runs:    []ExportedRun{},
		Results: []ExportedResult{},
	}

	found := opts.RunID == ""
	for _, r := range runs {
		if opts.RunID != "" && r.RunID != opts.RunID {
			continue
		}
		found = true
		er := ExportedRun{
			RunID:     r.RunID,
			Mode:      r.Mode,
			Endpoint:  r.Endpoint,
			StartedAt: r.StartedAt.UTC().Format(timeFormat),
			Passed:    r.Passed,
			Failed:    r.Failed,
		}
		if !r.FinishedAt.IsZero() {
			er.FinishedAt = r.FinishedAt.UTC().Format(timeFormat)
		}
		doc.Runs = append(doc.Runs, er)

		entries, err := s.Results(ctx, r.RunID, opts.FailedOnly)
		if err != nil {
			return err
		}
		for _, e := range entries {
			doc.Results = append(doc.Results, ExportedResult{
				RunID:      e.RunID,
				Seq:        e.Seq,
				Name:       e.Name,
				Mode:       e.Mode,
				Category:   e.Category,
				Key:        e.Key,
				Size:       e.Size,
				Passed:     e.Passed,
				Reason:     e.Reason,
				Error:      e.Error,
				DurationMS: e.Duration.Milliseconds(),
			})
		}
	}
	if !found {
		return fmt.Errorf("run %q not found", opts.RunID)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding export: %w", err)
	}
	return nil
}
