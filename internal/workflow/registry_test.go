package workflow

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/warble/internal/models"
)

func validDefinition(name string) models.WorkflowDefinition {
	return models.WorkflowDefinition{
		Name:        name,
		Description: "test workflow",
		Type:        models.WorkflowOneShot,
		Steps: []models.WorkflowStep{
			{
				Name:       "search",
				Type:       models.TypeSearchTweets,
				Parameters: map[string]any{"query": "{{query}}"},
				Required:   true,
			},
		},
	}
}

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(validDefinition("smoke_test")))

	def, ok := r.Get("smoke_test")
	require.True(t, ok)
	assert.Equal(t, "smoke_test", def.Name)
	assert.Equal(t, models.WorkflowOneShot, def.Type)
	assert.Equal(t, "1.0.0", def.Version, "version should default when omitted")

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()

	cases := []struct {
		name   string
		mutate func(*models.WorkflowDefinition)
	}{
		{"empty name", func(d *models.WorkflowDefinition) { d.Name = "" }},
		{"bad type", func(d *models.WorkflowDefinition) { d.Type = "continuous" }},
		{"no steps", func(d *models.WorkflowDefinition) { d.Steps = nil }},
		{"unnamed step", func(d *models.WorkflowDefinition) { d.Steps[0].Name = "" }},
		{"unknown step type", func(d *models.WorkflowDefinition) { d.Steps[0].Type = "teleport" }},
		{"nested workflow step", func(d *models.WorkflowDefinition) { d.Steps[0].Type = models.TypeRunWorkflow }},
		{"duplicate step names", func(d *models.WorkflowDefinition) {
			d.Steps = append(d.Steps, d.Steps[0])
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			def := validDefinition("invalid_case")
			tc.mutate(&def)
			assert.Error(t, r.Register(def))
		})
	}
	assert.Equal(t, 0, r.Len(), "failed registrations should not be stored")
}

func TestRegisterOverwrites(t *testing.T) {
	r := NewRegistry()

	first := validDefinition("report")
	first.Description = "v1"
	require.NoError(t, r.Register(first))

	second := validDefinition("report")
	second.Description = "v2"
	require.NoError(t, r.Register(second))

	def, ok := r.Get("report")
	require.True(t, ok)
	assert.Equal(t, "v2", def.Description)
	assert.Equal(t, 1, r.Len())
}

func TestGetReturnsCopy(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(validDefinition("isolated")))

	def, ok := r.Get("isolated")
	require.True(t, ok)
	def.Steps[0].Parameters["query"] = "tampered"
	def.Description = "tampered"

	again, ok := r.Get("isolated")
	require.True(t, ok)
	assert.Equal(t, "{{query}}", again.Steps[0].Parameters["query"])
	assert.Equal(t, "test workflow", again.Description)
}

func TestListSortedByName(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zebra", "alpha", "mike"} {
		require.NoError(t, r.Register(validDefinition(name)))
	}

	defs := r.List()
	require.Len(t, defs, 3)
	assert.Equal(t, "alpha", defs[0].Name)
	assert.Equal(t, "mike", defs[1].Name)
	assert.Equal(t, "zebra", defs[2].Name)
}

func TestRemove(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(validDefinition("ephemeral")))

	require.NoError(t, r.Remove("ephemeral"))
	_, ok := r.Get("ephemeral")
	assert.False(t, ok)

	assert.Error(t, r.Remove("ephemeral"))
}

func TestBuiltins(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r))

	expected := map[string]models.WorkflowType{
		"trend_monitor":    models.WorkflowRecurring,
		"user_monitor":     models.WorkflowRecurring,
		"sentiment_report": models.WorkflowOneShot,
		"engagement_boost": models.WorkflowOneShot,
	}
	assert.Equal(t, len(expected), r.Len())

	for name, wfType := range expected {
		def, ok := r.Get(name)
		require.True(t, ok, "builtin %s should be registered", name)
		assert.Equal(t, wfType, def.Type, "builtin %s has wrong type", name)
		assert.NotEmpty(t, def.Steps, "builtin %s should have steps", name)
	}
}

const sampleWorkflowYAML = `
workflows:
  - name: mention_digest
    description: Summarize recent mentions
    type: one_shot
    steps:
      - name: search
        type: search_tweets
        parameters:
          query: "{{query}}"
        required: true
      - name: sentiment
        type: analyze_sentiment
        parameters:
          texts: "{{steps.search.texts}}"
        required: false
`

const singleWorkflowYAML = `
name: follower_check
type: one_shot
steps:
  - name: info
    type: get_user_info
    parameters:
      username: "{{username}}"
    required: true
`

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "digest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleWorkflowYAML), 0o644))

	r := NewRegistry()
	n, err := LoadFile(r, path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	def, ok := r.Get("mention_digest")
	require.True(t, ok)
	assert.Len(t, def.Steps, 2)
	assert.Equal(t, models.TypeAnalyzeSentiment, def.Steps[1].Type)
	assert.False(t, def.Steps[1].Required)
}

func TestLoadFileSingleDefinition(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "follower.yml")
	require.NoError(t, os.WriteFile(path, []byte(singleWorkflowYAML), 0o644))

	r := NewRegistry()
	n, err := LoadFile(r, path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok := r.Get("follower_check")
	assert.True(t, ok)
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()

	r := NewRegistry()
	_, err := LoadFile(r, filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("workflows: [!!!"), 0o644))
	_, err = LoadFile(r, bad)
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("# nothing here\n"), 0o644))
	_, err = LoadFile(r, empty)
	assert.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "digest.yaml"), []byte(sampleWorkflowYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "follower.yml"), []byte(singleWorkflowYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte(":::"), 0o644))

	r := NewRegistry()
	n, err := LoadDir(r, dir)
	assert.Error(t, err, "broken file should surface in the joined error")
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, r.Len())
}

func TestLoadDirMissing(t *testing.T) {
	r := NewRegistry()
	n, err := LoadDir(r, filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry()

	w, err := NewWatcher(r, dir, nil)
	require.NoError(t, err)
	defer w.Close()

	path := filepath.Join(dir, "digest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleWorkflowYAML), 0o644))

	deadline := time.After(3 * time.Second)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-deadline:
			t.Fatal("watcher did not register workflow in time")
		case <-ticker.C:
			if _, ok := r.Get("mention_digest"); ok {
				return
			}
		}
	}
}
