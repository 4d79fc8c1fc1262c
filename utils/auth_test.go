package utils

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/filecoin-project/go-jsonrpc/auth"

	"github.com/stretchr/testify/require"
)

func TestLocalJwtCreateAndVerify(t *testing.T) {
	ctx := context.Background()
	jwt, err := NewLocalJwtClient(t.TempDir())
	require.NoError(t, err)
	perm, err := jwt.Verify(ctx, string(jwt.Token))
	require.NoError(t, err)
	require.Equal(t, []auth.Permission{"admin", "sign", "write", "read"}, perm)
}

func TestIssueLowerPermission(t *testing.T) {
	ctx := context.Background()
	jwt, err := NewLocalJwtClient(t.TempDir())
	require.NoError(t, err)

	token, err := jwt.Issue("viewer", PermWrite)
	require.NoError(t, err)
	perm, err := jwt.Verify(ctx, string(token))
	require.NoError(t, err)
	require.Equal(t, []auth.Permission{"write", "read"}, perm)

	_, err = jwt.Issue("root", "superuser")
	require.Error(t, err)

	other, err := NewLocalJwtClient(t.TempDir())
	require.NoError(t, err)
	_, err = other.Verify(ctx, string(token))
	require.Error(t, err)
}

func TestSaveToken(t *testing.T) {
	repo := t.TempDir()
	jwt, err := NewLocalJwtClient(repo)
	require.NoError(t, err)
	require.NoError(t, jwt.SaveToken())

	data, err := os.ReadFile(filepath.Join(repo, TokenFile))
	require.NoError(t, err)
	require.Equal(t, jwt.Token, data)
}
