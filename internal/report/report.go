// Package report exports a finished session as a JSON integrity report.
//
// Every report is validated against the embedded schema before it leaves
// the process, so downstream consumers (review tooling, archival) can rely
// on the shape.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Von-Etana/lune-sub000/internal/session"
	"github.com/Von-Etana/lune-sub000/internal/store"
)

// Schema is the integrity-report JSON Schema.
const Schema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://lune.dev/schema/integrity-report-v1.schema.json",
  "type": "object",
  "required": ["generated_at", "session", "violation_count"],
  "properties": {
    "generated_at": {"type": "string"},
    "violation_count": {"type": "integer", "minimum": 0},
    "critical_count": {"type": "integer", "minimum": 0},
    "session": {
      "type": "object",
      "required": ["session_id", "candidate_id", "assessment_id", "status", "integrity_score", "violations"],
      "properties": {
        "session_id": {"type": "string", "minLength": 1},
        "candidate_id": {"type": "string", "minLength": 1},
        "assessment_id": {"type": "string", "minLength": 1},
        "status": {"enum": ["active", "flagged", "terminated", "completed"]},
        "integrity_score": {"type": "integer", "minimum": 0, "maximum": 100},
        "violations": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["id", "type", "severity", "description", "action"],
            "properties": {
              "id": {"type": "string", "minLength": 1},
              "type": {"type": "string", "minLength": 1},
              "severity": {"enum": ["low", "medium", "high", "critical"]},
              "description": {"type": "string"},
              "action": {"enum": ["warning", "flagged", "terminated"]},
              "acknowledged": {"type": "boolean"}
            }
          }
        }
      }
    }
  }
}`

// Report is the exported integrity report for one session.
type Report struct {
	GeneratedAt    time.Time        `json:"generated_at"`
	Session        session.Snapshot `json:"session"`
	ViolationCount int              `json:"violation_count"`
	CriticalCount  int              `json:"critical_count"`
}

// Build assembles a report from a final session snapshot.
func Build(snap *session.Snapshot) Report {
	r := Report{
		GeneratedAt:    time.Now(),
		Session:        *snap,
		ViolationCount: len(snap.Violations),
	}
	for _, v := range snap.Violations {
		if v.Severity == session.SeverityCritical {
			r.CriticalCount++
		}
	}
	return r
}

// FromStore builds a report for an archived session.
func FromStore(st *store.Store, sessionID string) (Report, error) {
	snap, err := st.Session(sessionID)
	if err != nil {
		return Report{}, err
	}
	return Build(snap), nil
}

var compiledSchema = jsonschema.MustCompileString("integrity-report-v1.schema.json", Schema)

// Marshal serializes the report and validates it against the schema.
func (r Report) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, fmt.Errorf("reparse report: %w", err)
	}
	if err := compiledSchema.Validate(instance); err != nil {
		return nil, fmt.Errorf("report failed schema validation: %w", err)
	}
	return data, nil
}

// Export writes the validated report to path.
func (r Report) Export(path string) error {
	data, err := r.Marshal()
	if err != nil {
		return err
	}
	data = append(bytes.TrimRight(data, "\n"), '\n')
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
