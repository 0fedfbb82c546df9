package sh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/uci.go/pkg/uci/msgs"
)

func TestParseOpcode(t *testing.T) {
	gid, oid, n, err := ParseOpcode([]string{"core.get_caps", "{}"})
	require.NoError(t, err)
	assert.Equal(t, msgs.GroupCore, gid)
	assert.Equal(t, msgs.OIDCoreGetCaps, oid)
	assert.Equal(t, 1, n)

	gid, oid, n, err = ParseOpcode([]string{"e", "3f", `{"a": 1}`})
	require.NoError(t, err)
	assert.Equal(t, byte(0xe), gid)
	assert.Equal(t, byte(0x3f), oid)
	assert.Equal(t, 2, n)

	for _, args := range [][]string{
		nil,
		{"core.unknown"},
		{"10", "01"},
		{"1", "40"},
		{"x", "1"},
	} {
		_, _, _, err := ParseOpcode(args)
		assert.Error(t, err, "%v", args)
	}
}
