package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/osmigrate/internal/domain"
)

func TestHighestSeverity(t *testing.T) {
	tests := []struct {
		name     string
		actions  map[string]Action
		expected domain.Severity
		found    bool
	}{
		{
			name: "error outranks everything",
			actions: map[string]Action{
				"a": {
					Result: RawMessage{Level: "SUCCESS"},
					Messages: []RawMessage{
						{Level: "WARNING"},
						{Level: "ERROR"},
					},
				},
				"b": {Result: RawMessage{Level: "INFO"}},
			},
			expected: domain.SeverityError,
			found:    true,
		},
		{
			name: "overridable outranks skip",
			actions: map[string]Action{
				"a": {Result: RawMessage{Level: "SKIP"}},
				"b": {Result: RawMessage{Level: "OVERRIDABLE"}},
			},
			expected: domain.SeverityOverridable,
			found:    true,
		},
		{
			name: "result level counts alongside message levels",
			actions: map[string]Action{
				"a": {
					Result:   RawMessage{Level: "WARNING"},
					Messages: []RawMessage{{Level: "INFO"}},
				},
			},
			expected: domain.SeverityWarning,
			found:    true,
		},
		{
			name: "unknown tiers are ignored",
			actions: map[string]Action{
				"a": {
					Result:   RawMessage{Level: "BOGUS"},
					Messages: []RawMessage{{Level: "INFO"}},
				},
			},
			expected: domain.SeverityInfo,
			found:    true,
		},
		{
			name: "only unknown tiers yields nothing",
			actions: map[string]Action{
				"a": {Result: RawMessage{Level: "BOGUS"}},
			},
			found: false,
		},
		{
			name:    "empty actions yields nothing",
			actions: map[string]Action{},
			found:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			highest, found := HighestSeverity(tt.actions)
			assert.Equal(t, tt.found, found)
			if tt.found {
				assert.Equal(t, tt.expected, highest)
			}
		})
	}
}

func TestTransformMessage(t *testing.T) {
	msg := RawMessage{
		ID:          "SOME_CHECK",
		Level:       "ERROR",
		Title:       "Some check",
		Description: "Something looked wrong",
		Diagnosis:   "Found a bad thing",
		Remediation: "Remove the bad thing",
	}

	finding, ok := TransformMessage(msg, "my_action")
	require.True(t, ok)

	assert.Equal(t, "my_action::SOME_CHECK", finding.Key)
	assert.Equal(t, "ERROR", finding.Severity)
	assert.Equal(t, "Some check", finding.Title)
	assert.Equal(t, "Something looked wrong", finding.Summary)
	require.Len(t, finding.Detail.Remediations, 1)
	assert.Equal(t, "Remove the bad thing", finding.Detail.Remediations[0].Context)
	require.Len(t, finding.Detail.Diagnosis, 1)
	assert.Equal(t, "Found a bad thing", finding.Detail.Diagnosis[0].Context)
	assert.NotNil(t, finding.Modifiers)
	assert.Empty(t, finding.Modifiers)
}

func TestTransformMessage_DropsSuccess(t *testing.T) {
	_, ok := TransformMessage(RawMessage{ID: "OK", Level: "SUCCESS"}, "a")
	assert.False(t, ok)
}

func TestTransformMessage_PrefersRemediationsField(t *testing.T) {
	msg := RawMessage{
		ID:           "X",
		Level:        "WARNING",
		Remediation:  "old field",
		Remediations: "new field",
	}
	finding, ok := TransformMessage(msg, "a")
	require.True(t, ok)
	assert.Equal(t, "new field", finding.Detail.Remediations[0].Context)
}

func TestTransformMessage_EmptyDetailContexts(t *testing.T) {
	finding, ok := TransformMessage(RawMessage{ID: "X", Level: "WARNING"}, "a")
	require.True(t, ok)
	// Absent fields still yield a single empty context each.
	require.Len(t, finding.Detail.Remediations, 1)
	assert.Equal(t, "", finding.Detail.Remediations[0].Context)
	require.Len(t, finding.Detail.Diagnosis, 1)
	assert.Equal(t, "", finding.Detail.Diagnosis[0].Context)
}

func TestFlatten(t *testing.T) {
	actions := map[string]Action{
		"second": {
			Result: RawMessage{ID: "RESULT_OK", Level: "SUCCESS"},
			Messages: []RawMessage{
				{ID: "MSG", Level: "INFO"},
			},
		},
		"first": {
			Result: RawMessage{ID: "RESULT_BAD", Level: "ERROR"},
			Messages: []RawMessage{
				{ID: "NOISE", Level: "SUCCESS"},
				{ID: "WARN", Level: "WARNING"},
			},
		},
	}

	findings := Flatten(actions)

	// SUCCESS records are dropped; actions are visited in sorted id order
	// with messages before the action's own result.
	require.Len(t, findings, 3)
	assert.Equal(t, "first::WARN", findings[0].Key)
	assert.Equal(t, "first::RESULT_BAD", findings[1].Key)
	assert.Equal(t, "second::MSG", findings[2].Key)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		rep := Load(filepath.Join(dir, "nope.json"))
		assert.Empty(t, rep.Actions)
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(dir, "empty.json")
		require.NoError(t, os.WriteFile(path, nil, 0644))
		rep := Load(path)
		assert.Empty(t, rep.Actions)
	})

	t.Run("invalid content", func(t *testing.T) {
		path := filepath.Join(dir, "invalid.json")
		require.NoError(t, os.WriteFile(path, []byte("not json at all"), 0644))
		rep := Load(path)
		assert.Empty(t, rep.Actions)
	})

	t.Run("valid report", func(t *testing.T) {
		path := filepath.Join(dir, "report.json")
		content := `{"actions": {"a": {"result": {"id": "R", "level": "WARNING"}, "messages": []}}}`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		rep := Load(path)
		require.Len(t, rep.Actions, 1)
		assert.Equal(t, "WARNING", rep.Actions["a"].Result.Level)
	})
}

func TestLoadText(t *testing.T) {
	dir := t.TempDir()

	assert.Equal(t, "", LoadText(filepath.Join(dir, "nope.txt")))

	path := filepath.Join(dir, "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("textual report"), 0644))
	assert.Equal(t, "textual report", LoadText(path))
}
