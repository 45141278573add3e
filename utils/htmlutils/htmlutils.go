// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package htmlutils provides utility functions for working with HTML.
package htmlutils

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// mojibake found in scraped directory pages saved with the wrong encoding.
var mojibakeReplacer = strings.NewReplacer(
	"\u00e2\u20ac\u00a2", "\u2022", // bullet
	"\u00e2\u20ac\u2122", "\u2019", // right single quote
	"\u00c2\u00a0", " ",
	"\u00a0", " ",
)

// Node2string appends the text content of n to sb, separating text nodes with
// a single space.
func Node2string(n *html.Node, sb *strings.Builder) (err error) {
	if n.Type == html.TextNode {
		tmp := strings.TrimSpace(n.Data)

		// a REPLACEMENT CHARACTER (U+FFFD) means we decoded the page with
		// the wrong charset
		if strings.ContainsRune(tmp, utf8.RuneError) {
			return fmt.Errorf("charset mismatch found: `%s'", tmp)
		}

		tmp = strings.Join(strings.Fields(mojibakeReplacer.Replace(tmp)), " ")

		if len(tmp) > 0 {
			if sb.Len() != 0 {
				sb.WriteByte(' ')
			}

			sb.WriteString(tmp)
		}

		return nil
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if err = Node2string(child, sb); err != nil {
			break
		}
	}

	return err
}

// Text returns the collapsed text content of n.
func Text(n *html.Node) (string, error) {
	sb := strings.Builder{}
	if err := Node2string(n, &sb); err != nil {
		return "", err
	}

	return strings.Join(strings.Fields(sb.String()), " "), nil
}

// Attr returns the value of the attribute named key and whether it was present.
func Attr(n *html.Node, key string) (string, bool) {
	for _, attr := range n.Attr {
		if strings.EqualFold(key, attr.Key) {
			return attr.Val, true
		}
	}

	return "", false
}

// IsElement reports whether n is an element named tag. An empty tag matches
// any element.
func IsElement(n *html.Node, tag string) bool {
	return n.Type == html.ElementNode && (tag == "" || strings.EqualFold(tag, n.Data))
}

// Find returns, in document order, every descendant of n (n included) for
// which match returns true. It does not descend into matched nodes.
func Find(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var ret []*html.Node

	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if match(n) {
			ret = append(ret, n)

			return
		}

		for child := n.FirstChild; child != nil; child = child.NextSibling {
			visit(child)
		}
	}
	visit(n)

	return ret
}

// FindFirst returns the first descendant of n matched by match, or nil.
func FindFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := FindFirst(child, match); found != nil {
			return found
		}
	}

	return nil
}

// Validates that response seems to be an HTML response.
func hasHTMLContentType(media string) bool {
	const expectedMedia = "text/html"

	return strings.EqualFold(
		expectedMedia,
		media[0:min(len(media), len(expectedMedia))],
	)
}

// AsReader converts an HTTP response body to an io.Reader with the correct charset.
func AsReader(resp *http.Response) (io.Reader, error) {
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	media := resp.Header.Get("Content-Type")
	if !hasHTMLContentType(media) {
		return nil, fmt.Errorf("media type is %s", media)
	}

	rr, err := charset.NewReader(resp.Body, media)
	if err != nil {
		return nil, err
	}

	return rr, nil
}

// Transcode sniffs r for a byte order mark or a charset declaration and
// returns a reader producing UTF-8. Used for pages saved to disk, where there
// is no Content-Type header to go by.
func Transcode(r io.Reader) (io.Reader, error) {
	rr, err := charset.NewReader(r, "")
	if err != nil {
		return nil, fmt.Errorf("detecting charset: %w", err)
	}

	return rr, nil
}

// AsNode parses an io.Reader as an HTML node.
func AsNode(r io.Reader) (*html.Node, error) {
	n, err := html.Parse(r)
	if nil != err {
		return nil, fmt.Errorf("parsing body as HTML: %w", err)
	}

	return n, nil
}
