package migrate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesAreOrderedAndEmbedded(t *testing.T) {
	files, err := Files()
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "0001_init.sql", files[0])
	assert.IsNonDecreasing(t, files)
}

func TestInitDeclaresClaimIndexes(t *testing.T) {
	b, err := fs.ReadFile("0001_init.sql")
	require.NoError(t, err)
	sql := string(b)

	for _, name := range []string{
		"plan_entries_family_item_key",
		"plan_entries_plan_claimant_key",
		"plan_entries_family_claimant_key",
	} {
		assert.True(t, strings.Contains(sql, name), "missing %s", name)
	}
}

func TestCommunityTablesFollowInit(t *testing.T) {
	files, err := Files()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(files), 2)
	assert.Equal(t, "0002_community.sql", files[1])

	b, err := fs.ReadFile("0002_community.sql")
	require.NoError(t, err)
	for _, table := range []string{"message_stats", "invite_links", "invited_users"} {
		assert.Contains(t, string(b), "CREATE TABLE IF NOT EXISTS "+table)
	}
}
