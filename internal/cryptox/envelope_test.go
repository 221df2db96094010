package cryptox

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeyNonce(t *testing.T) (key, nonce []byte) {
	t.Helper()
	key = []byte("0123456789abcdef")
	nonce = []byte("fixednonce12")
	require.Len(t, key, EnvelopeKeySize)
	require.Len(t, nonce, EnvelopeNonceSize)
	return key, nonce
}

func TestEnvelope_RoundTripJSON(t *testing.T) {
	key, nonce := testKeyNonce(t)

	env, err := Seal([]byte(`{"id":7,"username":"alice"}`), key, nonce)
	require.NoError(t, err)

	v, err := Decode(env)
	require.NoError(t, err)

	m, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(7), m["id"])
	assert.Equal(t, "alice", m["username"])
}

func TestEnvelope_RoundTripPlainText(t *testing.T) {
	key, nonce := testKeyNonce(t)

	env, err := Seal([]byte("not json at all"), key, nonce)
	require.NoError(t, err)

	v, err := Decode(env)
	require.NoError(t, err)
	assert.Equal(t, "not json at all", v)
}

func TestEnvelope_TamperedTagFails(t *testing.T) {
	key, nonce := testKeyNonce(t)

	env, err := Seal([]byte(`{"ok":true}`), key, nonce)
	require.NoError(t, err)

	tag, err := base64.StdEncoding.DecodeString(env.T)
	require.NoError(t, err)
	tag[0] ^= 0x01
	env.T = base64.StdEncoding.EncodeToString(tag)

	_, err = Open(env)
	require.ErrorIs(t, err, ErrDecode)
}

func TestEnvelope_TamperedCiphertextFails(t *testing.T) {
	key, nonce := testKeyNonce(t)

	env, err := Seal([]byte(`{"ok":true}`), key, nonce)
	require.NoError(t, err)

	d, err := base64.StdEncoding.DecodeString(env.D)
	require.NoError(t, err)
	// flip a bit past the embedded key, inside the ciphertext body
	d[EnvelopeKeySize] ^= 0x80
	env.D = base64.StdEncoding.EncodeToString(d)

	_, err = Open(env)
	require.ErrorIs(t, err, ErrDecode)
}

func TestEnvelope_BadBase64Fails(t *testing.T) {
	_, err := Open(Envelope{D: "!!!", T: "AA==", N: "AA=="})
	require.ErrorIs(t, err, ErrDecode)
}

func TestEnvelope_ShortDFails(t *testing.T) {
	key, nonce := testKeyNonce(t)

	env, err := Seal([]byte("x"), key, nonce)
	require.NoError(t, err)

	// truncate d below the 16-byte key material
	env.D = base64.StdEncoding.EncodeToString([]byte("too-short"))
	_, err = Open(env)
	require.ErrorIs(t, err, ErrDecode)
}

func TestEnvelope_WrongNonceSizeFails(t *testing.T) {
	key, nonce := testKeyNonce(t)

	env, err := Seal([]byte("x"), key, nonce)
	require.NoError(t, err)

	env.N = base64.StdEncoding.EncodeToString([]byte("short"))
	_, err = Open(env)
	require.ErrorIs(t, err, ErrDecode)
}

func TestEnvelope_IsComplete(t *testing.T) {
	assert.False(t, Envelope{}.IsComplete())
	assert.False(t, Envelope{D: "a", T: "b"}.IsComplete())
	assert.True(t, Envelope{D: "a", T: "b", N: "c"}.IsComplete())
}
