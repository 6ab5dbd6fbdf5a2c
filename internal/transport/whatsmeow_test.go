package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mau.fi/whatsmeow/types"
)

func TestParseTarget(t *testing.T) {
	jid, err := parseTarget("+5511999999999")
	require.NoError(t, err)
	assert.Equal(t, "5511999999999", jid.User)
	assert.Equal(t, types.DefaultUserServer, jid.Server)

	jid, err = parseTarget("5511999999999")
	require.NoError(t, err)
	assert.Equal(t, "5511999999999", jid.User)

	jid, err = parseTarget("5511999999999@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, "5511999999999", jid.User)
	assert.Equal(t, "s.whatsapp.net", jid.Server)

	_, err = parseTarget("   ")
	assert.Error(t, err)
}
