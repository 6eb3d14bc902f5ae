package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConfigureFileSinkWritesToFile checks that, after configuring a file
// sink, a log line actually lands in the file on disk.
func TestConfigureFileSinkWritesToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "diorama.log")

	ConfigureFileSink(path)
	t.Cleanup(func() { logger = buildLogger() })

	S().Infow("hello from test")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from test")
}
