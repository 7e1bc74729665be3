package decoder

import (
	"bytes"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"assetload/pkg/common"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/unicode/norm"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func decodeText(data []byte, contentType string, stripHTML bool) (common.Value, error) {
	mediaType := "text/plain"
	var declared string
	if contentType != "" {
		mt, params, err := mime.ParseMediaType(contentType)
		if err == nil {
			mediaType = mt
			declared = params["charset"]
		}
	}
	if declared != "" {
		if e, _ := charset.Lookup(declared); e == nil {
			return common.Value{}, fmt.Errorf("unknown charset %q", declared)
		}
	}
	isHTML := mediaType == "text/html" || mediaType == "application/xhtml+xml"

	enc, name, certain := charset.DetermineEncoding(data, contentType)
	if isHTML && !certain && metaDeclaresCharset(data) {
		certain = true
	}

	var text string
	if name == "utf-8" || !certain {
		// Undeclared text is UTF-8 whatever the sniffer guessed.
		body := bytes.TrimPrefix(data, utf8BOM)
		if !utf8.Valid(body) {
			return common.Value{}, fmt.Errorf("invalid utf-8 sequence at byte %d", invalidAt(body))
		}
		text = string(body)
		name = "utf-8"
	} else {
		decoded, err := enc.NewDecoder().Bytes(data)
		if err != nil {
			return common.Value{}, fmt.Errorf("transcode from %s: %w", name, err)
		}
		text = string(bytes.TrimPrefix(decoded, utf8BOM))
	}

	if !utf8.ValidString(text) {
		return common.Value{}, fmt.Errorf("transcoded text from %s is not valid utf-8", name)
	}
	// Presenters compare and measure text by code points; compose first.
	text = norm.NFC.String(text)

	if stripHTML && isHTML {
		visible, err := visibleText(text)
		if err != nil {
			return common.Value{}, err
		}
		text = visible
	}

	return common.TextValue(&common.TextBlob{
		Text:      text,
		MediaType: mediaType,
		Charset:   name,
	}), nil
}

// metaDeclaresCharset reports whether an HTML document names a known
// charset in a <meta> element within the first 1024 bytes, the window
// browsers prescan.
func metaDeclaresCharset(data []byte) bool {
	if len(data) > 1024 {
		data = data[:1024]
	}
	d, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return false
	}
	found := false
	d.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		cs, ok := s.Attr("charset")
		if !ok && strings.EqualFold(s.AttrOr("http-equiv", ""), "content-type") {
			if _, params, err := mime.ParseMediaType(s.AttrOr("content", "")); err == nil {
				cs, ok = params["charset"]
			}
		}
		if ok {
			e, _ := charset.Lookup(strings.TrimSpace(cs))
			found = e != nil
		}
		return !found
	})
	return found
}

// visibleText returns the rendered text of an HTML document, one line per
// non-empty block of text.
func visibleText(doc string) (string, error) {
	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	d.Find("script, style, noscript, template").Remove()

	var lines []string
	for _, line := range strings.Split(d.Find("body").Text(), "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		// Documents without a <body> element (fragments) still have text.
		text := strings.Join(strings.Fields(d.Text()), " ")
		return text, nil
	}
	return strings.Join(lines, "\n"), nil
}

func invalidAt(b []byte) int {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return len(b)
}
