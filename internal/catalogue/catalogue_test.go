package catalogue

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReload_ListForm(t *testing.T) {
	path := writeFile(t, `[{"id":"backup","cmd":["/bin/backup.sh","[task_name]"],"label":"nightly"}]`)
	c := New()
	require.NoError(t, c.Reload(path))

	job, ok := c.Lookup("backup")
	require.True(t, ok)
	assert.Equal(t, "nightly", job.Label)
	assert.Empty(t, c.Diagnostic())
}

func TestReload_ObjectForm(t *testing.T) {
	path := writeFile(t, `{"jobs":[{"id":"vacuum","cmd":["vacuumdb"]}]}`)
	c := New()
	require.NoError(t, c.Reload(path))

	_, ok := c.Lookup("vacuum")
	require.True(t, ok)
}

func TestReload_DiscardsMalformedEntries(t *testing.T) {
	path := writeFile(t, `[{"id":"ok","cmd":["echo"]},{"cmd":["no-id"]},{"id":"bad-cmd","cmd":"not-an-array"}]`)
	c := New()
	require.NoError(t, c.Reload(path))

	_, ok := c.Lookup("ok")
	assert.True(t, ok)
	_, ok = c.Lookup("bad-cmd")
	assert.False(t, ok)
	assert.Contains(t, c.Diagnostic(), "discarded")
}

func TestReload_ParseErrorKeepsPreviousSnapshot(t *testing.T) {
	path := writeFile(t, `[{"id":"keep-me","cmd":["echo"]}]`)
	c := New()
	require.NoError(t, c.Reload(path))

	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o600))
	err := c.Reload(path)
	require.Error(t, err)

	_, ok := c.Lookup("keep-me")
	assert.True(t, ok, "previous snapshot must be retained on a failed reload")
	assert.NotEmpty(t, c.Diagnostic())
}

func TestReload_UnchangedContentSkipsReparse(t *testing.T) {
	path := writeFile(t, `[{"id":"a","cmd":["echo"]}]`)
	c := New()
	require.NoError(t, c.Reload(path))
	require.NoError(t, c.Reload(path))

	_, ok := c.Lookup("a")
	assert.True(t, ok)
}

func TestResolveArgv_SubstitutesTokens(t *testing.T) {
	j := Job{Cmd: []string{"/bin/run.sh", "[label]", "{style}", "[task_name]"}, Label: "l", Style: "s"}
	argv := ResolveArgv(j, "my-task", []string{"--extra"})
	assert.Equal(t, []string{"/bin/run.sh", "l", "s", "my-task", "--extra"}, argv)
}
