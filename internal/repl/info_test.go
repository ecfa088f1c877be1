package repl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInfoSectionMaster(t *testing.T) {
	info := NewInfo(RoleMaster, "0123456789012345678901234567890123456789")
	info.AddOffset(42)

	section := info.Section()
	require.True(t, strings.HasPrefix(section, "role:master\n"))
	require.Contains(t, section, "master_repl_offset:42")
	require.True(t, strings.HasSuffix(section, "\r\n"))
}

func TestInfoOffsetMonotonic(t *testing.T) {
	info := NewInfo(RoleSlave, "x")
	require.Equal(t, int64(10), info.AddOffset(10))
	require.Equal(t, int64(25), info.AddOffset(15))
}
