// Package report collects scenario results of a run and renders them as a
// JSON document or a plain-text summary.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Result is the outcome of one scenario or plan step.
type Result struct {
	Name          string        `json:"name"`
	Mode          string        `json:"mode"`
	Category      string        `json:"category,omitempty"`
	Key           string        `json:"key,omitempty"`
	Size          int64         `json:"size"`
	ExpectFailure bool          `json:"expect_failure"`
	Passed        bool          `json:"passed"`
	Reason        string        `json:"reason,omitempty"`
	Error         string        `json:"error,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// Report is the complete run report.
type Report struct {
	RunID      string        `json:"run_id"`
	Mode       string        `json:"mode"`
	Endpoint   string        `json:"endpoint,omitempty"`
	Bucket     string        `json:"bucket"`
	StartTime  time.Time     `json:"start_time"`
	EndTime    time.Time     `json:"end_time"`
	Duration   time.Duration `json:"duration"`
	TotalTests int           `json:"total_tests"`
	Passed     int           `json:"passed"`
	Failed     int           `json:"failed"`
	Results    []Result      `json:"results"`

	mu sync.Mutex
}

// New starts a report.
func New(runID, mode, endpoint, bucket string) *Report {
	return &Report{
		RunID:     runID,
		Mode:      mode,
		Endpoint:  endpoint,
		Bucket:    bucket,
		StartTime: time.Now(),
		Results:   []Result{},
	}
}

// Add appends a result and updates the counters. Safe for concurrent use.
func (r *Report) Add(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Results = append(r.Results, res)
	r.TotalTests++
	if res.Passed {
		r.Passed++
	} else {
		r.Failed++
	}
}

// Finish stamps the end time.
func (r *Report) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}

// OK reports whether every result passed.
func (r *Report) OK() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Failed == 0
}

// Merge adds every result of other to r.
func (r *Report) Merge(other *Report) {
	other.mu.Lock()
	results := append([]Result(nil), other.Results...)
	other.mu.Unlock()
	for _, res := range results {
		r.Add(res)
	}
}

// JSON encodes the report with two-space indentation.
func (r *Report) JSON() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding report: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteFile writes the JSON report to path.
func (r *Report) WriteFile(path string) error {
	data, err := r.JSON()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report %q: %w", path, err)
	}
	return nil
}

// PrintResult writes one result line, plus its error when it failed.
func PrintResult(w io.Writer, res Result) {
	status := "PASSED"
	if !res.Passed {
		status = "FAILED"
	}
	fmt.Fprintf(w, "[%s] %s (%v)\n", status, res.Name, res.Duration.Round(time.Millisecond))
	if !res.Passed && res.Error != "" {
		fmt.Fprintf(w, "  Error: %s\n", res.Error)
	}
}

// PrintSummary writes the closing summary block.
func (r *Report) PrintSummary(w io.Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(w, "-------------------------------------------")
	fmt.Fprintln(w, "Test Summary")
	fmt.Fprintln(w, "-------------------------------------------")
	fmt.Fprintf(w, "Passed: %d\n", r.Passed)
	fmt.Fprintf(w, "Failed: %d\n", r.Failed)
	fmt.Fprintf(w, "Total:  %d\n", r.TotalTests)
	fmt.Fprintf(w, "Duration: %v\n", r.Duration.Round(time.Millisecond))
	for _, res := range r.Results {
		if !res.Passed {
			fmt.Fprintf(w, "  failed: %s: %s\n", res.Name, res.Error)
		}
	}
}
