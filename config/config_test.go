package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlephTX/usrl/shm"
)

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "region.toml")
	content := `
name = "r1"
size = 4194304

[[topics]]
name = "ticks"
type = "mwmr"
slot_count = 1024
payload_size = 64
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	spec, err := LoadTOML(path)
	require.NoError(t, err)
	assert.Equal(t, "r1", spec.Name)
	assert.EqualValues(t, 4194304, spec.Size)

	topics, err := spec.Topics()
	require.NoError(t, err)
	require.Len(t, topics, 1)
	assert.Equal(t, shm.MWMR, topics[0].Type)
}

func TestLoadJSONWithComments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "region.jsonc")
	content := `{
  // region name
  "name": "r1",
  "size": 4194304,
  "topics": [
    { "name": "ticks", "type": "swmr", "slot_count": 16, "payload_size": 32 },
  ],
}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	spec, err := LoadJSON(path)
	require.NoError(t, err)
	require.Len(t, spec.TopicSpecs, 1)
	assert.Equal(t, "ticks", spec.TopicSpecs[0].Name)
}

func TestParseRingTypeRejectsUnknown(t *testing.T) {
	spec := RegionSpec{TopicSpecs: []TopicSpec{{Name: "t", Type: "bogus"}}}
	_, err := spec.Topics()
	assert.Error(t, err)
}
