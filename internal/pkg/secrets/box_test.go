package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(key)
}

func TestSealOpenRoundTrip(t *testing.T) {
	box, err := New(testKey(t), "", true)
	require.NoError(t, err)

	sealed, err := box.Seal("api-key-12345")
	require.NoError(t, err)
	assert.NotEqual(t, "api-key-12345", sealed)

	opened, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "api-key-12345", opened)
}

func TestSealProducesUniqueCiphertexts(t *testing.T) {
	box, err := New(testKey(t), "", true)
	require.NoError(t, err)

	a, err := box.Seal("same")
	require.NoError(t, err)
	b, err := box.Seal("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	box, err := New(testKey(t), "", true)
	require.NoError(t, err)

	sealed, err := box.Seal("secret")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff

	_, err = box.Open(base64.StdEncoding.EncodeToString(raw))
	assert.Error(t, err)
}

func TestOpenRejectsWrongKey(t *testing.T) {
	box1, err := New(testKey(t), "", true)
	require.NoError(t, err)
	box2, err := New(testKey(t), "", true)
	require.NoError(t, err)

	sealed, err := box1.Seal("secret")
	require.NoError(t, err)

	_, err = box2.Open(sealed)
	assert.Error(t, err)
}

func TestProductionRequiresExplicitKey(t *testing.T) {
	_, err := New("", "server-secret", true)
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestDevelopmentDerivesFromServerSecret(t *testing.T) {
	box, err := New("", "server-secret", false)
	require.NoError(t, err)

	sealed, err := box.Seal("value")
	require.NoError(t, err)

	// Same secret derives the same key, so a restart can still decrypt.
	box2, err := New("", "server-secret", false)
	require.NoError(t, err)
	opened, err := box2.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "value", opened)
}

func TestRejectsBadKeyMaterial(t *testing.T) {
	_, err := New("not-base64!!!", "", false)
	assert.Error(t, err)

	short := base64.StdEncoding.EncodeToString([]byte("too short"))
	_, err = New(short, "", false)
	assert.Error(t, err)

	_, err = New("", "", false)
	assert.ErrorIs(t, err, ErrNoKey)
}
