package httpapi

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/encoding/htmlindex"
)

var cidAttrPattern = regexp.MustCompile(`^cid:(.+)$`)

// Three quote-style alternatives stand in for the source's single
// backreference-based pattern (?P<quote>['"]?)cid:([^'"\)]+)(?P=quote),
// which Go's RE2 engine cannot express directly.
var cidStyleURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`url\("cid:([^'"\\\)]+)"\)`),
	regexp.MustCompile(`url\('cid:([^'"\\\)]+)'\)`),
	regexp.MustCompile(`url\(cid:([^'"\\\)]+)\)`),
}

// rewriteHTML parses body as HTML5 and rewrites every cid: reference
// (element attributes and <style> url(cid:...) text) to an absolute
// href built from hrefForCID, forces every <a> to target="blank", and
// re-serializes the document.
func rewriteHTML(body []byte, hrefForCID func(cid string) string) ([]byte, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for i, attr := range n.Attr {
				if m := cidAttrPattern.FindStringSubmatch(attr.Val); m != nil {
					n.Attr[i].Val = hrefForCID(m[1])
				}
			}
			if n.DataAtom == atom.A {
				setAttr(n, "target", "blank")
			}
			if n.DataAtom == atom.Style && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				n.FirstChild.Data = rewriteStyleCIDs(n.FirstChild.Data, hrefForCID)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func rewriteStyleCIDs(css string, hrefForCID func(cid string) string) string {
	for _, pat := range cidStyleURLPatterns {
		css = pat.ReplaceAllStringFunc(css, func(match string) string {
			sub := pat.FindStringSubmatch(match)
			if sub == nil {
				return match
			}
			return fmt.Sprintf(`url("%s")`, hrefForCID(sub[1]))
		})
	}
	return css
}

// decodeToUTF8 transcodes body from charset to UTF-8, mirroring
// mimedecode's header charsetReader so the rendered HTML part isn't
// mislabeled "utf-8" while still carrying its original-charset bytes.
// An empty, "us-ascii", "utf-8", or unrecognized charset passes body
// through unchanged.
func decodeToUTF8(body []byte, charset string) []byte {
	charset = strings.ToLower(strings.TrimSpace(charset))
	if charset == "" || charset == "us-ascii" || charset == "utf-8" {
		return body
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return body
	}
	decoded, err := io.ReadAll(enc.NewDecoder().Reader(bytes.NewReader(body)))
	if err != nil {
		return body
	}
	return decoded
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
