// Package mimedecode parses a raw RFC 5322/2045 message into a decoded
// envelope and a flat list of MIME leaf parts. It is pure: no I/O, no
// shared state, following the teacher's own envelope decoder's shape
// (module-level functions operating on bytes in, structs out) but
// rebuilt around the standard library's mime/net-mail primitives plus
// golang.org/x/text for non-UTF-8 charsets, instead of cgo iconv.
package mimedecode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/msztolcman/sendria/internal/apperr"
)

// Decoded is the result of decoding one SMTP DATA payload.
type Decoded struct {
	SenderMessage string
	To            []string
	Cc            []string
	Bcc           []string
	Subject       string
	ContentType   string
	Parts         []Part
}

// Part mirrors one leaf of the MIME tree.
type Part struct {
	CID          string
	ContentType  string
	IsAttachment bool
	Filename     string
	Charset      string
	Body         []byte
}

var wordDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	charset = strings.ToLower(strings.TrimSpace(charset))
	if charset == "" || charset == "us-ascii" || charset == "utf-8" {
		return input, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		// Unknown charset: pass through verbatim rather than fail the
		// whole message over a single unrecognized header charset.
		return input, nil
	}
	return enc.NewDecoder().Reader(input), nil
}

// DecodeHeader decodes RFC 2047 encoded-words in a single header value.
func DecodeHeader(value string) string {
	if value == "" {
		return ""
	}
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// SplitAddresses parses a header value into "Display Name <addr>" or
// "addr" tokens, tolerating malformed input by falling back to the raw
// comma-separated value.
func SplitAddresses(value string) []string {
	if strings.TrimSpace(value) == "" {
		return []string{}
	}
	addrs, err := mail.ParseAddressList(value)
	if err != nil {
		return []string{strings.TrimSpace(value)}
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}

// Decode parses raw into a Decoded value. Malformed headers or multipart
// structure return an *apperr.Error of kind KindDecode. A part body whose
// transfer encoding cannot be decoded (bad base64 or quoted-printable, or
// an unknown encoding) does not cause an error: the part keeps its raw,
// undecoded bytes.
func Decode(raw []byte) (*Decoded, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDecode, "parsing message headers", err)
	}

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil {
		// No (or malformed) Content-Type: treat as a plain text leaf,
		// matching the source's lenient default.
		mediaType, params = "text/plain", map[string]string{"charset": "us-ascii"}
	}

	body, err := io.ReadAll(msg.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDecode, "reading message body", err)
	}

	var parts []Part
	if strings.HasPrefix(mediaType, "multipart/") {
		parts, err = walkMultipart(body, params)
		if err != nil {
			return nil, err
		}
		if len(parts) == 0 {
			// An empty multipart still yields one synthetic leaf, per
			// the preserved historical behavior.
			parts = []Part{{ContentType: "text/plain", Body: nil}}
		}
	} else {
		parts = []Part{leafFromHeader(textproto.MIMEHeader(msg.Header), mediaType, params, body)}
	}

	return &Decoded{
		SenderMessage: DecodeHeader(msg.Header.Get("From")),
		To:            SplitAddresses(DecodeHeader(msg.Header.Get("To"))),
		Cc:            SplitAddresses(DecodeHeader(msg.Header.Get("Cc"))),
		Bcc:           SplitAddresses(DecodeHeader(msg.Header.Get("Bcc"))),
		Subject:       DecodeHeader(msg.Header.Get("Subject")),
		ContentType:   mediaType,
		Parts:         parts,
	}, nil
}

func walkMultipart(body []byte, params map[string]string) ([]Part, error) {
	boundary := params["boundary"]
	if boundary == "" {
		return nil, apperr.New(apperr.KindDecode, "multipart message missing boundary")
	}
	return walkMultipartReader(multipart.NewReader(bytes.NewReader(body), boundary))
}

func walkMultipartReader(mr *multipart.Reader) ([]Part, error) {
	var out []Part
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.KindDecode, "reading multipart part", err)
		}

		mediaType, params, err := mime.ParseMediaType(p.Header.Get("Content-Type"))
		if err != nil {
			mediaType, params = "text/plain", map[string]string{"charset": "us-ascii"}
		}

		body, err := io.ReadAll(p)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindDecode, "reading multipart body", err)
		}

		if strings.HasPrefix(mediaType, "multipart/") {
			nested, err := walkMultipart(body, params)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
			continue
		}

		out = append(out, leafFromHeader(p.Header, mediaType, params, body))
	}
	return out, nil
}

func leafFromHeader(h textproto.MIMEHeader, mediaType string, ctParams map[string]string, body []byte) Part {
	cid := strings.TrimSpace(h.Get("Content-Id"))
	if cid == "" {
		cid = uuid.NewString()
	} else if len(cid) >= 2 && cid[0] == '<' && cid[len(cid)-1] == '>' {
		cid = cid[1 : len(cid)-1]
	}

	filename := filenameFromHeader(h, ctParams)
	charset := ctParams["charset"]

	decodedBody, err := decodeTransferEncoding(h.Get("Content-Transfer-Encoding"), body)
	if err != nil {
		decodedBody = body
	}

	return Part{
		CID:          cid,
		ContentType:  mediaType,
		IsAttachment: filename != "",
		Filename:     filename,
		Charset:      charset,
		Body:         decodedBody,
	}
}

func filenameFromHeader(h textproto.MIMEHeader, ctParams map[string]string) string {
	if disp := h.Get("Content-Disposition"); disp != "" {
		if _, params, err := mime.ParseMediaType(disp); err == nil {
			if name := params["filename"]; name != "" {
				return decodeFilename(name)
			}
		}
	}
	if name := ctParams["name"]; name != "" {
		return decodeFilename(name)
	}
	return ""
}

func decodeFilename(name string) string {
	if decoded, err := wordDecoder.DecodeHeader(name); err == nil {
		return decoded
	}
	return name
}

func decodeTransferEncoding(cte string, body []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(cte)) {
	case "", "7bit", "8bit", "binary":
		return body, nil
	case "base64":
		return decodeBase64(body)
	case "quoted-printable":
		return decodeQuotedPrintable(body)
	default:
		return nil, fmt.Errorf("unsupported transfer encoding %q", cte)
	}
}
