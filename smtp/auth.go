package smtp

import (
	"bufio"
	"crypto/sha1" //nolint:gosec // required for the legacy "{SHA}" htpasswd format
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Htpasswd is a loaded Apache-style flat password file, read once at
// startup and treated as read-only thereafter. Supports bcrypt, "{SHA}"
// SHA-1, APR1-MD5, and plaintext entries; classic crypt(3) DES hashes
// are not supported (no maintained Go library implements crypt(3), and
// it is cryptographically obsolete for a development tool).
type Htpasswd struct {
	entries map[string]string
}

// LoadHtpasswd reads path into memory. An empty path yields a nil
// *Htpasswd, meaning "authentication disabled".
func LoadHtpasswd(path string) (*Htpasswd, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening htpasswd file %q: %w", path, err)
	}
	defer f.Close()

	h := &Htpasswd{entries: map[string]string{}}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		h.entries[line[:idx]] = line[idx+1:]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading htpasswd file %q: %w", path, err)
	}
	return h, nil
}

// Check verifies user/pass against the loaded entries.
func (h *Htpasswd) Check(user, pass string) bool {
	if h == nil {
		return false
	}
	hash, ok := h.entries[user]
	if !ok {
		return false
	}
	return verifyHash(hash, pass)
}

func verifyHash(hash, pass string) bool {
	switch {
	case strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"), strings.HasPrefix(hash, "$2y$"):
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pass)) == nil
	case strings.HasPrefix(hash, "{SHA}"):
		sum := sha1.Sum([]byte(pass)) //nolint:gosec
		encoded := base64.StdEncoding.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(encoded), []byte(hash[len("{SHA}"):])) == 1
	case strings.HasPrefix(hash, "$apr1$"):
		return verifyApr1(hash, pass)
	default:
		// Plaintext entry.
		return subtle.ConstantTimeCompare([]byte(hash), []byte(pass)) == 1
	}
}
