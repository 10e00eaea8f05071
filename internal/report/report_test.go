package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Von-Etana/lune-sub000/internal/environment"
	"github.com/Von-Etana/lune-sub000/internal/session"
	"github.com/Von-Etana/lune-sub000/internal/store"
)

func finishedSnapshot() *session.Snapshot {
	start := time.Unix(1756450000, 0)
	return &session.Snapshot{
		SessionID:      "sess-1",
		CandidateID:    "cand",
		AssessmentID:   "exam",
		StartTime:      start,
		EndTime:        start.Add(time.Hour),
		Status:         session.StatusTerminated,
		IntegrityScore: 55,
		Violations: []session.Violation{
			{
				ID:          "v-1",
				Type:        session.ViolationCopyPaste,
				Severity:    session.SeverityMedium,
				Timestamp:   start.Add(5 * time.Minute),
				Description: "content pasted",
				Action:      session.ActionWarning,
			},
			{
				ID:          "v-2",
				Type:        session.ViolationMultipleDevices,
				Severity:    session.SeverityCritical,
				Timestamp:   start.Add(6 * time.Minute),
				Description: "assessment already open on 1 other device(s)",
				Action:      session.ActionTerminated,
			},
		},
		Environment: environment.Check(environment.Inputs{}),
	}
}

func TestBuildCounts(t *testing.T) {
	r := Build(finishedSnapshot())

	assert.Equal(t, 2, r.ViolationCount)
	assert.Equal(t, 1, r.CriticalCount)
	assert.False(t, r.GeneratedAt.IsZero())
	assert.Equal(t, "sess-1", r.Session.SessionID)
}

func TestMarshalValidatesAgainstSchema(t *testing.T) {
	data, err := Build(finishedSnapshot()).Marshal()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.EqualValues(t, 2, decoded["violation_count"])
}

func TestMarshalRejectsInvalidReport(t *testing.T) {
	snap := finishedSnapshot()
	snap.SessionID = ""

	_, err := Build(snap).Marshal()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema validation")
}

func TestMarshalRejectsUnknownStatus(t *testing.T) {
	snap := finishedSnapshot()
	snap.Status = session.Status("abandoned")

	_, err := Build(snap).Marshal()
	assert.Error(t, err)
}

func TestExportWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, Build(finishedSnapshot()).Export(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), data[len(data)-1])

	var r Report
	require.NoError(t, json.Unmarshal(data, &r))
	assert.Equal(t, "sess-1", r.Session.SessionID)
	assert.Equal(t, 1, r.CriticalCount)
}

func TestFromStore(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "proctord.db"))
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.ArchiveSession(finishedSnapshot()))

	r, err := FromStore(st, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 2, r.ViolationCount)

	_, err = FromStore(st, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
