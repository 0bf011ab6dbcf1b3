package smtp

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/msztolcman/sendria/internal/apperr"
)

func timeNowAdd(d time.Duration) time.Time {
	return time.Now().Add(d)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func isDecodeError(err error) bool {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr.Kind == apperr.KindDecode
	}
	return false
}

// normalizePeer strips the IPv4-in-IPv6 "::ffff:" prefix net.Conn
// sometimes reports for dual-stack listeners, so the stored peer column
// reads like "1.2.3.4:port" instead of "[::ffff:1.2.3.4]:port".
func normalizePeer(addr string) string {
	const prefix = "[::ffff:"
	if !strings.HasPrefix(addr, prefix) {
		return addr
	}
	rest := addr[len(prefix):]
	closeBracket := strings.IndexByte(rest, ']')
	if closeBracket < 0 {
		return addr
	}
	return rest[:closeBracket] + rest[closeBracket+1:]
}
