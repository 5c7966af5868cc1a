package testutil

import (
	"encoding/base64"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/mailmirror/mailmirror/internal/crypto"
	"github.com/mailmirror/mailmirror/internal/store"
)

// GetTestEncryptor creates a test encryptor with a deterministic key.
// This is shared across all test packages to avoid duplication.
func GetTestEncryptor(t *testing.T) *crypto.Encryptor {
	t.Helper()

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	base64Key := base64.StdEncoding.EncodeToString(key)

	encryptor, err := crypto.NewEncryptor(base64Key)
	if err != nil {
		t.Fatalf("Failed to create encryptor: %v", err)
	}
	return encryptor
}

// NewTestScopes creates a scope manager over a temporary directory. The
// databases are cleaned up with the test's temp dir.
func NewTestScopes(t *testing.T) *store.ScopeManager {
	t.Helper()
	return store.NewScopeManager(t.TempDir(), zaptest.NewLogger(t))
}
