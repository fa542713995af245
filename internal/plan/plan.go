// Package plan loads and runs declarative test plans: ordered lists of
// storage operations executed against a shared, mutable test context.
package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	herr "github.com/bleepstore/integrity/internal/errors"
	"github.com/bleepstore/integrity/internal/faultinject"
)

// Plan is a parsed test plan.
type Plan struct {
	Desc  string
	Steps []Step
}

// Step is one decoded plan entry.
type Step struct {
	// Index is the 1-based position of the step in the plan.
	Index int
	Op    Operation
	// Overrides are merged into the test context before the step runs and
	// stay in effect for later steps.
	Overrides     Overrides
	ExpectSuccess bool
	Description   string
}

// Overrides are the context fields a step may replace.
type Overrides struct {
	Bucket   *string
	Key      *string
	Body     *string
	Download *string
}

// document is the on-disk shape of a YAML plan.
type document struct {
	Desc  string      `yaml:"desc"`
	Tests []yaml.Node `yaml:"tests"`
}

// jsonDocument is the on-disk shape of a JSON plan.
type jsonDocument struct {
	Desc  string            `json:"desc"`
	Tests []json.RawMessage `json:"tests"`
}

type rawStep struct {
	Op       string   `yaml:"op" json:"op"`
	Desc     string   `yaml:"desc" json:"desc"`
	Expect   *bool    `yaml:"expect" json:"expect"`
	Bucket   *string  `yaml:"bucket" json:"bucket"`
	Key      *string  `yaml:"key" json:"key"`
	Body     *string  `yaml:"body" json:"body"`
	Download *string  `yaml:"download" json:"download"`
	Fault    string   `yaml:"fi" json:"fi"`
	Freq     string   `yaml:"freq" json:"freq"`
	Match    []string `yaml:"match" json:"match"`
}

// ValidateInputs checks that the body file and the plan file both exist and
// are regular files.
func ValidateInputs(body, planPath string) error {
	for _, in := range []struct{ flag, path string }{{"--body", body}, {"--test-plan", planPath}} {
		if in.path == "" {
			return herr.ErrMissingRequiredInput.WithDetail("%s is required", in.flag)
		}
		info, err := os.Stat(in.path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return herr.ErrMissingRequiredInput.WithDetail("%s %q does not exist", in.flag, in.path)
			}
			return herr.ErrMissingRequiredInput.WithDetail("%s %q: %v", in.flag, in.path, err)
		}
		if !info.Mode().IsRegular() {
			return herr.ErrMissingRequiredInput.WithDetail("%s %q is not a regular file", in.flag, in.path)
		}
	}
	return nil
}

// Load reads and decodes the plan at path. Files ending in .json are decoded
// as JSON, anything else goes through Parse.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, herr.ErrMissingRequiredInput.WithDetail("reading test plan %q: %v", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return parseJSON(data)
	}
	return Parse(data)
}

// Parse decodes a plan document. A valid JSON object is decoded as JSON;
// everything else, YAML flow mappings included, is YAML. Every step is decoded up front so
// that a malformed step or an unsupported fault frequency is reported before
// anything runs.
func Parse(data []byte) (*Plan, error) {
	if trimmed := bytes.TrimLeft(data, " \t\r\n"); len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed) {
		return parseJSON(data)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, herr.ErrMalformedPlan.WithDetail("%v", err)
	}
	p := newPlan(doc.Desc)
	for i, node := range doc.Tests {
		var raw rawStep
		if err := node.Decode(&raw); err != nil {
			return nil, herr.ErrMalformedPlan.WithDetail("step %d: %v", i+1, err)
		}
		if err := p.add(raw); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func parseJSON(data []byte) (*Plan, error) {
	var doc jsonDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, herr.ErrMalformedPlan.WithDetail("%v", err)
	}
	p := newPlan(doc.Desc)
	for i, msg := range doc.Tests {
		var raw rawStep
		if err := json.Unmarshal(msg, &raw); err != nil {
			return nil, herr.ErrMalformedPlan.WithDetail("step %d: %v", i+1, err)
		}
		if err := p.add(raw); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func newPlan(desc string) *Plan {
	if desc == "" {
		desc = "Test"
	}
	return &Plan{Desc: desc}
}

func (p *Plan) add(raw rawStep) error {
	step, err := decodeStep(len(p.Steps)+1, raw)
	if err != nil {
		return err
	}
	p.Steps = append(p.Steps, step)
	return nil
}

func decodeStep(index int, raw rawStep) (Step, error) {
	s := Step{
		Index:         index,
		ExpectSuccess: raw.Expect == nil || *raw.Expect,
		Description:   raw.Desc,
		Overrides: Overrides{
			Bucket:   raw.Bucket,
			Key:      raw.Key,
			Body:     raw.Body,
			Download: raw.Download,
		},
	}
	if s.Description == "" {
		s.Description = "Test"
	}

	switch raw.Op {
	case "create-bucket":
		s.Op = CreateBucket{}
	case "delete-bucket":
		s.Op = DeleteBucket{}
	case "put-object":
		s.Op = PutObject{}
	case "get-object":
		s.Op = GetObject{Match: raw.Match}
	case "head-object":
		s.Op = HeadObject{}
	case "delete-object":
		s.Op = DeleteObject{}
	case "enable-fi":
		if raw.Fault == "" {
			return s, herr.ErrMalformedPlan.WithDetail("step %d: enable-fi requires fi", index)
		}
		freq := raw.Freq
		if freq == "" {
			freq = faultinject.Always
		}
		if freq != faultinject.Always {
			return s, herr.ErrUnsupportedFrequency.WithDetail("step %d: %q for fault %q", index, freq, raw.Fault)
		}
		s.Op = EnableFault{Name: raw.Fault, Frequency: freq}
		if raw.Desc == "" {
			s.Description = "Enable FI"
		}
	case "disable-fi":
		if raw.Fault == "" {
			return s, herr.ErrMalformedPlan.WithDetail("step %d: disable-fi requires fi", index)
		}
		s.Op = DisableFault{Name: raw.Fault}
		if raw.Desc == "" {
			s.Description = "Disable FI"
		}
	case "create-multipart":
		s.Op = CreateMultipart{}
	case "upload-part":
		s.Op = UploadPart{}
	case "complete-multipart":
		s.Op = CompleteMultipart{}
	case "list-parts":
		s.Op = ListParts{}
	case "abort-multipart":
		s.Op = AbortMultipart{}
	default:
		s.Op = Unrecognized{Name: raw.Op}
	}
	return s, nil
}

// String renders the step for diagnostics.
func (s Step) String() string {
	return fmt.Sprintf("step %d (%s: %s)", s.Index, s.Op.Verb(), s.Description)
}
