package smtp

import (
	"crypto/sha1" //nolint:gosec // mirrors the legacy "{SHA}" htpasswd format under test
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
)

func TestVerifyHashPlaintext(t *testing.T) {
	if !verifyHash("secret", "secret") {
		t.Error("plaintext entry should match")
	}
	if verifyHash("secret", "wrong") {
		t.Error("plaintext entry should not match wrong password")
	}
}

func TestVerifyHashBcrypt(t *testing.T) {
	// Well-known bcrypt($2a$10$, "password") test vector.
	const hash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"
	if !verifyHash(hash, "password") {
		t.Error("bcrypt entry should match")
	}
	if verifyHash(hash, "wrong") {
		t.Error("bcrypt entry should not match wrong password")
	}
}

func TestVerifyHashSHA(t *testing.T) {
	sum := sha1.Sum([]byte("secret")) //nolint:gosec
	hash := "{SHA}" + base64.StdEncoding.EncodeToString(sum[:])
	if !verifyHash(hash, "secret") {
		t.Error("{SHA} entry should match")
	}
	if verifyHash(hash, "wrong") {
		t.Error("{SHA} entry should not match wrong password")
	}
}

func TestVerifyApr1(t *testing.T) {
	hash := apr1Crypt("secret", "salt1234")
	if !verifyApr1(hash, "secret") {
		t.Error("apr1 entry should match")
	}
	if verifyApr1(hash, "wrong") {
		t.Error("apr1 entry should not match wrong password")
	}
}

func TestLoadHtpasswd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "htpasswd")
	content := "alice:secret\n# a comment\n\nbob:{SHA}" + base64.StdEncoding.EncodeToString(func() []byte {
		sum := sha1.Sum([]byte("hunter2")) //nolint:gosec
		return sum[:]
	}()) + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	h, err := LoadHtpasswd(path)
	if err != nil {
		t.Fatalf("LoadHtpasswd: %v", err)
	}
	if !h.Check("alice", "secret") {
		t.Error("alice should authenticate")
	}
	if !h.Check("bob", "hunter2") {
		t.Error("bob should authenticate")
	}
	if h.Check("alice", "wrong") {
		t.Error("alice should not authenticate with wrong password")
	}
	if h.Check("carol", "anything") {
		t.Error("unknown user should not authenticate")
	}
}

func TestLoadHtpasswdEmptyPath(t *testing.T) {
	h, err := LoadHtpasswd("")
	if err != nil {
		t.Fatalf("LoadHtpasswd: %v", err)
	}
	if h != nil {
		t.Error("empty path should yield nil Htpasswd")
	}
	if h.Check("anyone", "anything") {
		t.Error("nil Htpasswd should reject everyone")
	}
}
