package crypto

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	box := NewBox("test-key")
	payload := []byte(`{"api_key":"k","identifier":"i","password":"p"}`)

	sealed, err := box.Seal(payload)
	require.NoError(t, err)
	assert.NotEqual(t, string(payload), sealed)

	ivHex, ctHex, found := strings.Cut(sealed, ":")
	require.True(t, found, "sealed format is hex(iv):hex(ct)")
	iv, err := hex.DecodeString(ivHex)
	require.NoError(t, err)
	assert.Len(t, iv, 16)
	_, err = hex.DecodeString(ctHex)
	require.NoError(t, err)

	opened, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, payload, opened)
}

func TestSealIsRandomised(t *testing.T) {
	box := NewBox("test-key")
	a, err := box.Seal([]byte("secret"))
	require.NoError(t, err)
	b, err := box.Seal([]byte("secret"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "a fresh iv per seal")
}

func TestPassthroughWithoutKey(t *testing.T) {
	box := NewBox("")
	assert.False(t, box.Encrypting())

	sealed, err := box.Seal([]byte(`{"k":"v"}`))
	require.NoError(t, err)
	assert.Equal(t, `{"k":"v"}`, sealed)

	opened, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"k":"v"}`), opened)
}

func TestOpenLegacyPlaintext(t *testing.T) {
	box := NewBox("test-key")
	// A row written before the key existed: raw JSON, possibly containing ':'.
	raw := `{"api_key":"a:b"}`
	opened, err := box.Open(raw)
	require.NoError(t, err)
	assert.Equal(t, []byte(raw), opened)
}

func TestOpenRejectsCorruptPadding(t *testing.T) {
	box := NewBox("test-key")
	sealed, err := box.Seal([]byte("payload"))
	require.NoError(t, err)

	ivHex, ctHex, _ := strings.Cut(sealed, ":")
	ct, _ := hex.DecodeString(ctHex)
	ct[len(ct)-1] ^= 0xff
	opened, err := box.Open(ivHex + ":" + hex.EncodeToString(ct))
	if err == nil {
		// CBC tampering garbles the plaintext even when the padding byte
		// happens to stay well-formed.
		assert.NotEqual(t, []byte("payload"), opened)
	}
}
