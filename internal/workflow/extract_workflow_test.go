package workflow

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/yourorg/kb-extract/internal/activities"
	"github.com/yourorg/kb-extract/internal/config"
	"github.com/yourorg/kb-extract/internal/types"
)

const dump = `[
{"id":"Q1","labels":{"en":{"language":"en","value":"Ada"}},"descriptions":{},"aliases":{},"claims":{"P31":[{"mainsnak":{"snaktype":"value","property":"P31","datavalue":{"type":"wikibase-entityid","value":{"id":"Q5"}}}}],"P569":[{"mainsnak":{"snaktype":"value","property":"P569","datavalue":{"type":"time","value":{"time":"+1900-01-01T00:00:00Z"}}}}]}},
{"id":"Q2","labels":{"en":{"language":"en","value":"Acme"}},"descriptions":{},"aliases":{},"claims":{"P31":[{"mainsnak":{"snaktype":"value","property":"P31","datavalue":{"type":"wikibase-entityid","value":{"id":"Q4830453"}}}}]}}
]
`

func baseConfig() config.Config {
	return config.Config{
		EntityTypes: []string{"person", "organization"},
		Lang:        "en",
		Format:      "MessagePack",
		Workers:     2,
		BatchSize:   10,
		Resolver:    config.ResolverConfig{Enabled: false, BatchSize: 50},
		Images:      config.ImagesConfig{Width: 64},
	}
}

func newEnv(scratch string, base config.Config) *testsuite.TestWorkflowEnvironment {
	var s testsuite.WorkflowTestSuite
	env := s.NewTestWorkflowEnvironment()
	activities.New(activities.Config{ScratchDir: scratch, Base: base}).Register(env)
	env.RegisterWorkflow(ExtractWorkflow)
	return env
}

func writeInput(t *testing.T, content string) string {
	t.Helper()
	in := filepath.Join(t.TempDir(), "dump.json")
	require.NoError(t, os.WriteFile(in, []byte(content), 0o644))
	return in
}

func setup(t *testing.T) (*testsuite.TestWorkflowEnvironment, string, string) {
	t.Helper()
	scratch := t.TempDir()
	return newEnv(scratch, baseConfig()), scratch, writeInput(t, dump)
}

func TestExtractWorkflowPublishesAndCleansUp(t *testing.T) {
	env, scratch, in := setup(t)
	dest := t.TempDir()

	env.ExecuteWorkflow(ExtractWorkflow, types.ExtractParams{
		InputURI:     in,
		OutputSubdir: "run-1",
		PublishURI:   "file://" + dest,
		LoadKV:       true,
	})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var res types.ExtractResult
	require.NoError(t, env.GetWorkflowResult(&res))
	assert.Equal(t, int64(2), res.Stats.Matched)
	assert.Equal(t, uint64(2), res.KVEntries)
	assert.Len(t, res.Published, 4)

	for _, name := range []string{"person.csv", "organization.csv", "entity_kv_store.msgpack", "manifest.json"} {
		assert.FileExists(t, filepath.Join(dest, name))
	}
	b, err := os.ReadFile(filepath.Join(dest, "person.csv"))
	require.NoError(t, err)
	assert.Equal(t, "Ada,Q1\n", string(b))

	assert.NoDirExists(t, filepath.Join(scratch, "run-1"))
}

func TestExtractWorkflowKeepsOutputsWithoutPublish(t *testing.T) {
	env, scratch, in := setup(t)

	env.ExecuteWorkflow(ExtractWorkflow, types.ExtractParams{
		InputURI:     in,
		OutputSubdir: "run-2",
		EntityTypes:  []string{"organization"},
		Format:       "JSONLines",
	})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var res types.ExtractResult
	require.NoError(t, env.GetWorkflowResult(&res))
	assert.Equal(t, int64(1), res.Stats.Matched)
	assert.Empty(t, res.Published)
	assert.FileExists(t, filepath.Join(scratch, "run-2", "entity_kv_store.jsonl"))
	assert.FileExists(t, filepath.Join(scratch, "run-2", "organization.csv"))
}

const citizenDump = `{"id":"Q1","labels":{"en":{"language":"en","value":"Ada"}},"descriptions":{},"aliases":{},"claims":{"P31":[{"mainsnak":{"snaktype":"value","property":"P31","datavalue":{"type":"wikibase-entityid","value":{"id":"Q5"}}}}],"P27":[{"mainsnak":{"snaktype":"value","property":"P27","datavalue":{"type":"wikibase-entityid","value":{"id":"Q145"}}}}]}}
`

func TestExtractWorkflowReusesLabelCacheAcrossRuns(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = fmt.Fprint(w, `{"entities":{"Q145":{"id":"Q145","labels":{"en":{"language":"en","value":"United Kingdom"}}}}}`)
	}))
	defer srv.Close()

	scratch := t.TempDir()
	base := baseConfig()
	base.Resolver = config.ResolverConfig{Enabled: true, Endpoint: srv.URL, BatchSize: 50, Timeout: 5 * time.Second}
	in := writeInput(t, citizenDump)

	for _, run := range []string{"run-a", "run-b"} {
		env := newEnv(scratch, base)
		env.ExecuteWorkflow(ExtractWorkflow, types.ExtractParams{
			InputURI:     in,
			OutputSubdir: run,
			EntityTypes:  []string{"person"},
			PublishURI:   "file://" + t.TempDir(),
		})
		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())

		var res types.ExtractResult
		require.NoError(t, env.GetWorkflowResult(&res))
		assert.Equal(t, 1, res.CachedLabels, run)
		assert.NoDirExists(t, filepath.Join(scratch, run))
	}
	assert.Equal(t, int32(1), hits.Load())
	assert.DirExists(t, filepath.Join(scratch, "label_cache"))
}

func TestExtractWorkflowRejectsBadParams(t *testing.T) {
	env, _, in := setup(t)

	env.ExecuteWorkflow(ExtractWorkflow, types.ExtractParams{
		InputURI:     in,
		OutputSubdir: "../escape",
	})
	require.True(t, env.IsWorkflowCompleted())
	assert.Error(t, env.GetWorkflowError())
}
