package mimedecode

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime/quotedprintable"
)

func decodeBase64(body []byte) ([]byte, error) {
	// Mail clients wrap base64 bodies at 76 columns; strip all
	// whitespace before decoding rather than relying on a line-aware
	// decoder.
	cleaned := make([]byte, 0, len(body))
	for _, b := range body {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			cleaned = append(cleaned, b)
		}
	}
	out := make([]byte, base64.StdEncoding.DecodedLen(len(cleaned)))
	n, err := base64.StdEncoding.Decode(out, cleaned)
	if err != nil {
		// Some senders omit padding; retry leniently.
		n2, err2 := base64.RawStdEncoding.Decode(out, cleaned)
		if err2 != nil {
			return nil, err
		}
		return out[:n2], nil
	}
	return out[:n], nil
}

func decodeQuotedPrintable(body []byte) ([]byte, error) {
	r := quotedprintable.NewReader(bytes.NewReader(body))
	return io.ReadAll(r)
}
