package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := []byte("device-key")

	ciphertext, err := Encrypt([]byte("bearer-token-value"), key)
	require.NoError(t, err)
	assert.NotEqual(t, "bearer-token-value", ciphertext)

	plaintext, err := Decrypt(ciphertext, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("bearer-token-value"), plaintext)
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	key := []byte("device-key")

	a, err := Encrypt([]byte("same input"), key)
	require.NoError(t, err)
	b, err := Encrypt([]byte("same input"), key)
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "fresh nonce per encryption")
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	ciphertext, err := Encrypt([]byte("secret"), []byte("key-a"))
	require.NoError(t, err)

	_, err = Decrypt(ciphertext, []byte("key-b"))
	assert.Error(t, err)
}

func TestDecryptRejectsGarbage(t *testing.T) {
	_, err := Decrypt("not base64 at all!!!", []byte("key"))
	assert.Error(t, err)

	_, err = Decrypt("YWJj", []byte("key")) // too short to hold a nonce
	assert.Error(t, err)
}

func TestStringHelpers(t *testing.T) {
	ciphertext, err := EncryptString("secret-token", "device-key")
	require.NoError(t, err)

	plaintext, err := DecryptString(ciphertext, "device-key")
	require.NoError(t, err)
	assert.Equal(t, "secret-token", plaintext)
}

func TestDeriveDeviceKeyIsStable(t *testing.T) {
	a := DeriveDeviceKey("van-31")
	b := DeriveDeviceKey("van-31")
	c := DeriveDeviceKey("van-32")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEmpty(t, a)
}
