package utils

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/filecoin-project/go-jsonrpc/auth"
	jwt3 "github.com/gbrlsnchs/jwt/v3"
)

const TokenFile = "token"

const (
	PermRead  auth.Permission = "read"
	PermWrite auth.Permission = "write"
	PermSign  auth.Permission = "sign"
	PermAdmin auth.Permission = "admin"
)

// permLadder lists the permissions granted by each level, highest first.
var permLadder = []auth.Permission{PermAdmin, PermSign, PermWrite, PermRead}

type JWTPayload struct {
	Perm auth.Permission `json:"perm"`
	Name string          `json:"name"`
}

// LocalJwtClient issues and verifies HS256 tokens with a secret generated at
// startup, so tokens do not survive a daemon restart.
type LocalJwtClient struct {
	repo   string
	Seckey []byte
	Token  []byte
}

func NewLocalJwtClient(repo string) (*LocalJwtClient, error) {
	seckey, err := io.ReadAll(io.LimitReader(rand.Reader, 32))
	if err != nil {
		return nil, err
	}
	l := &LocalJwtClient{repo: repo, Seckey: seckey}
	if l.Token, err = l.Issue("GhostWalletLocalToken", PermAdmin); err != nil {
		return nil, err
	}
	return l, nil
}

// Issue signs a token carrying perm and every permission below it.
func (l *LocalJwtClient) Issue(name string, perm auth.Permission) ([]byte, error) {
	if expand(perm) == nil {
		return nil, fmt.Errorf("unknown permission %q", perm)
	}
	return jwt3.Sign(JWTPayload{Perm: perm, Name: name}, jwt3.NewHS256(l.Seckey))
}

func (l *LocalJwtClient) Verify(ctx context.Context, token string) ([]auth.Permission, error) {
	var payload JWTPayload
	if _, err := jwt3.Verify([]byte(token), jwt3.NewHS256(l.Seckey), &payload); err != nil {
		return nil, fmt.Errorf("JWT Verification failed: %v", err)
	}
	perms := expand(payload.Perm)
	if perms == nil {
		return nil, fmt.Errorf("token %s carries unknown permission %q", payload.Name, payload.Perm)
	}
	return perms, nil
}

func expand(perm auth.Permission) []auth.Permission {
	for i, p := range permLadder {
		if p == perm {
			out := make([]auth.Permission, len(permLadder)-i)
			copy(out, permLadder[i:])
			return out
		}
	}
	return nil
}

func (l *LocalJwtClient) SaveToken() error {
	return os.WriteFile(path.Join(l.repo, TokenFile), l.Token, 0600)
}
