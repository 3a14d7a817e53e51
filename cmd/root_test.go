package cmd

import (
	"bytes"
	"encoding/base64"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeysPrintsDecodableValues(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"keys"})
	require.NoError(t, root.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	for _, l := range lines {
		_, v, ok := strings.Cut(l, "=")
		require.True(t, ok, l)
		b, err := base64.StdEncoding.DecodeString(v)
		require.NoError(t, err)
		assert.Len(t, b, 32)
	}
	assert.True(t, strings.HasPrefix(lines[2], "export WORKER_TOKEN="))
}

func TestVersion(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "dropsched dev")
	assert.Contains(t, out.String(), "0002_community.sql (2 migrations)")
	assert.Contains(t, out.String(), runtime.Version())
}

func TestVersionShort(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--short"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "dev\n", out.String())
}

func TestMigrateList(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"migrate", "--list"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "0001_init.sql")
}
