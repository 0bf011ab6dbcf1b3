package smtp

import (
	"bytes"
	"crypto/md5" //nolint:gosec // required to implement the APR1 htpasswd format
	"crypto/subtle"
	"strings"
)

const apr1Alphabet = "./0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// verifyApr1 checks pass against an Apache "$apr1$salt$hash" entry,
// following the well-known APR1-MD5 algorithm (a salted variant of BSD's
// crypt-md5 that Apache's htpasswd tool uses by default).
func verifyApr1(hash, pass string) bool {
	parts := strings.Split(hash, "$")
	if len(parts) != 4 || parts[1] != "apr1" {
		return false
	}
	salt := parts[2]
	computed := apr1Crypt(pass, salt)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

func apr1Crypt(pass, salt string) string {
	magic := "$apr1$"

	ctx := md5.New() //nolint:gosec
	ctx.Write([]byte(pass))
	ctx.Write([]byte(magic))
	ctx.Write([]byte(salt))

	ctx1 := md5.New() //nolint:gosec
	ctx1.Write([]byte(pass))
	ctx1.Write([]byte(salt))
	ctx1.Write([]byte(pass))
	final := ctx1.Sum(nil)

	for i := len(pass); i > 0; i -= 16 {
		if i > 16 {
			ctx.Write(final)
		} else {
			ctx.Write(final[:i])
		}
	}

	for i := len(pass); i > 0; i >>= 1 {
		if i&1 != 0 {
			ctx.Write([]byte{0})
		} else {
			ctx.Write([]byte(pass[:1]))
		}
	}
	final = ctx.Sum(nil)

	for i := 0; i < 1000; i++ {
		c := md5.New() //nolint:gosec
		if i&1 != 0 {
			c.Write([]byte(pass))
		} else {
			c.Write(final)
		}
		if i%3 != 0 {
			c.Write([]byte(salt))
		}
		if i%7 != 0 {
			c.Write([]byte(pass))
		}
		if i&1 != 0 {
			c.Write(final)
		} else {
			c.Write([]byte(pass))
		}
		final = c.Sum(nil)
	}

	var out bytes.Buffer
	out.WriteString(magic)
	out.WriteString(salt)
	out.WriteByte('$')

	triples := [][3]int{{0, 6, 12}, {1, 7, 13}, {2, 8, 14}, {3, 9, 15}, {4, 10, 5}}
	for _, t := range triples {
		v := int(final[t[0]])<<16 | int(final[t[1]])<<8 | int(final[t[2]])
		for j := 0; j < 4; j++ {
			out.WriteByte(apr1Alphabet[v&0x3f])
			v >>= 6
		}
	}
	v := int(final[11])
	for j := 0; j < 2; j++ {
		out.WriteByte(apr1Alphabet[v&0x3f])
		v >>= 6
	}

	return out.String()
}
