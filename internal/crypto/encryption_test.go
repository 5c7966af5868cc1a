package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEncryptor(t *testing.T) *Encryptor {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i * 7)
	}
	e, err := NewEncryptor(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)
	return e
}

func TestNewEncryptorRejectsBadKeys(t *testing.T) {
	tests := []struct {
		name string
		key  string
		ok   bool
	}{
		{"32-byte key", base64.StdEncoding.EncodeToString(make([]byte, 32)), true},
		{"not base64", "%%%not-base64%%%", false},
		{"16-byte key", base64.StdEncoding.EncodeToString(make([]byte, 16)), false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEncryptor(tt.key)
			if tt.ok {
				require.NoError(t, err)
				assert.NotNil(t, e)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	e := testEncryptor(t)

	plaintexts := map[string]string{
		"password":  "hunter2",
		"symbols":   `p4$$ "word" <with> 'everything'`,
		"empty":     "",
		"unicode":   "contraseña 密碼 🔑",
		"multiline": "line one\nline two\r\nline three",
	}

	for name, plaintext := range plaintexts {
		t.Run(name, func(t *testing.T) {
			ciphertext, err := e.Encrypt(plaintext)
			require.NoError(t, err)
			assert.NotEqual(t, plaintext, string(ciphertext))

			decrypted, err := e.Decrypt(ciphertext)
			require.NoError(t, err)
			assert.Equal(t, plaintext, decrypted)
		})
	}
}

func TestEncryptNeverRepeatsCiphertext(t *testing.T) {
	e := testEncryptor(t)

	// GCM prepends a random nonce, so encrypting the same value twice must
	// produce different bytes.
	first, err := e.Encrypt("same secret")
	require.NoError(t, err)
	second, err := e.Encrypt("same secret")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	for _, ciphertext := range [][]byte{first, second} {
		decrypted, err := e.Decrypt(ciphertext)
		require.NoError(t, err)
		assert.Equal(t, "same secret", decrypted)
	}
}

func TestDecryptRejectsInvalidCiphertext(t *testing.T) {
	e := testEncryptor(t)

	t.Run("shorter than nonce", func(t *testing.T) {
		_, err := e.Decrypt([]byte{0x01, 0x02, 0x03})
		assert.Error(t, err)
	})

	t.Run("tampered payload", func(t *testing.T) {
		ciphertext, err := e.Encrypt("imap password")
		require.NoError(t, err)
		ciphertext[len(ciphertext)-1] ^= 0x01

		_, err = e.Decrypt(ciphertext)
		assert.Error(t, err)
	})

	t.Run("wrong key", func(t *testing.T) {
		ciphertext, err := e.Encrypt("imap password")
		require.NoError(t, err)

		other, err := NewEncryptor(base64.StdEncoding.EncodeToString(make([]byte, 32)))
		require.NoError(t, err)
		_, err = other.Decrypt(ciphertext)
		assert.Error(t, err)
	})
}
