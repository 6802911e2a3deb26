// Package htmlparse extracts usage figures from raw page text when the
// structured endpoints cannot be used.
package htmlparse

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrLayoutChanged means the usage percentage could not be found in the page.
// A missing percentage is not a valid "0% used" state.
var ErrLayoutChanged = errors.New("htmlparse: expected data not found (source layout may have changed)")

// UnknownReset is used when the page carries no reset phrase.
const UnknownReset = "Unknown"

var (
	rePercent = regexp.MustCompile(`(?i)(\d{1,3}(?:\.\d+)?)\s*%\s*used`)
	reResets  = regexp.MustCompile(`(?i)resets?\s+in\s+([^\n.,;|]+)`)
)

// Result holds the two figures the fallback path can recover.
type Result struct {
	UsagePercent float64
	ResetTime    string
}

// Parse applies the percentage and reset patterns to page text independently.
func Parse(text string) (Result, error) {
	m := rePercent.FindStringSubmatch(text)
	if m == nil {
		return Result{}, ErrLayoutChanged
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Result{}, ErrLayoutChanged
	}
	if pct > 100 {
		pct = 100
	}

	res := Result{UsagePercent: pct, ResetTime: UnknownReset}
	if r := reResets.FindStringSubmatch(text); r != nil {
		if phrase := strings.TrimSpace(r[1]); phrase != "" {
			res.ResetTime = phrase
		}
	}
	return res, nil
}

// ParseHTML reduces an HTML document to its visible text and parses it.
func ParseHTML(html string) (Result, error) {
	text, err := Text(html)
	if err != nil {
		return Result{}, err
	}
	return Parse(text)
}

// blockTags start a new line in the extracted text.
var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"dd": true, "div": true, "dl": true, "dt": true, "footer": true,
	"form": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true,
	"h6": true, "header": true, "hr": true, "li": true, "main": true,
	"nav": true, "ol": true, "p": true, "section": true, "table": true,
	"td": true, "th": true, "tr": true, "ul": true,
}

// Text returns the visible text of an HTML document with script, style and
// noscript elements removed. Every text node is kept; block elements and <br>
// break lines so that the reset phrase does not run into neighbouring text.
func Text(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, template").Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	var b strings.Builder
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, c *goquery.Selection) {
			switch name := goquery.NodeName(c); {
			case name == "#text":
				// Source newlines inside a text node are layout, not breaks.
				b.WriteString(strings.NewReplacer("\r", " ", "\n", " ").Replace(c.Text()))
			case name == "br":
				b.WriteByte('\n')
			case blockTags[name]:
				b.WriteByte('\n')
				walk(c)
				b.WriteByte('\n')
			default:
				walk(c)
			}
		})
	}
	walk(root)

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		if t := collapse(line); t != "" {
			lines = append(lines, t)
		}
	}
	return strings.Join(lines, "\n"), nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
