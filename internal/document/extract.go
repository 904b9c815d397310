package document

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/kiranshivaraju/contractsentinel/internal/fault"
	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrUnsupportedFormat is returned for document formats with no extractor.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Extract converts raw document bytes to plain text. The format is chosen
// from the extension of ref.
func Extract(ref string, data []byte) (string, error) {
	switch ext := extension(ref); ext {
	case ".md", ".markdown":
		decoded, err := decodeText(data)
		if err != nil {
			return "", err
		}
		return markdownText([]byte(decoded)), nil
	case ".html", ".htm":
		decoded, err := decodeText(data)
		if err != nil {
			return "", err
		}
		return htmlText(decoded)
	case ".txt", ".text", "":
		return decodeText(data)
	default:
		return "", fault.Invalid("extract text", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext))
	}
}

func extension(ref string) string {
	p := ref
	if u, err := url.Parse(ref); err == nil {
		switch {
		case strings.EqualFold(u.Scheme, "file"):
			p = u.Host + u.Path
		case u.Scheme != "":
			p = u.Path
		}
	}
	return strings.ToLower(path.Ext(p))
}

// decodeText honours a UTF-8 or UTF-16 byte order mark and otherwise reads
// UTF-8. Invalid sequences become U+FFFD so downstream byte offsets always
// index valid UTF-8.
func decodeText(data []byte) (string, error) {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(dec, data)
	if err != nil {
		return "", fault.Invalid("decode text", err)
	}
	return string(out), nil
}

// markdownText renders the text content of a Markdown document, one line per
// block, dropping markup.
func markdownText(source []byte) string {
	root := goldmark.New().Parser().Parse(text.NewReader(source))

	var b bytes.Buffer
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			if n.Type() == gmast.TypeBlock && n.Kind() != gmast.KindDocument {
				endLine(&b)
			}
			return gmast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *gmast.Text:
			b.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *gmast.String:
			b.Write(node.Value)
		case *gmast.AutoLink:
			b.Write(node.URL(source))
			return gmast.WalkSkipChildren, nil
		case *gmast.CodeBlock, *gmast.FencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(source))
			}
			return gmast.WalkSkipChildren, nil
		}
		return gmast.WalkContinue, nil
	})

	return strings.TrimSpace(b.String())
}

func endLine(b *bytes.Buffer) {
	if b.Len() > 0 && b.Bytes()[b.Len()-1] != '\n' {
		b.WriteByte('\n')
	}
}

// htmlBlocks are elements rendered on their own line.
var htmlBlocks = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "br": true,
	"dd": true, "div": true, "dl": true, "dt": true, "footer": true, "h1": true,
	"h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "header": true,
	"hr": true, "li": true, "ol": true, "p": true, "pre": true, "section": true,
	"table": true, "td": true, "th": true, "title": true, "tr": true, "ul": true,
}

// htmlText renders the visible text of an HTML document. Script and style
// content is dropped and runs of whitespace collapse to one space.
func htmlText(source string) (string, error) {
	doc, err := html.Parse(strings.NewReader(source))
	if err != nil {
		return "", fault.Invalid("parse html", err)
	}

	var b bytes.Buffer
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			writeWords(&b, n.Data)
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && htmlBlocks[n.Data] {
			endLine(&b)
		}
	}
	walk(doc)

	return strings.TrimSpace(b.String()), nil
}

func writeWords(b *bytes.Buffer, s string) {
	words := strings.Fields(s)
	if len(words) == 0 {
		return
	}
	if b.Len() > 0 {
		if last := b.Bytes()[b.Len()-1]; last != '\n' && last != ' ' {
			b.WriteByte(' ')
		}
	}
	b.WriteString(strings.Join(words, " "))
}
