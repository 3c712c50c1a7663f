package agent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Snapshot is the annotated page at one point in time
type Snapshot struct {
	URL string
	Doc *goquery.Document
}

// NewSnapshot parses html captured at url
func NewSnapshot(url, html string) (*Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page html: %w", err)
	}
	return &Snapshot{URL: url, Doc: doc}, nil
}

const clickableSelector = "a, button, [role='link'], [role='button'], [onclick], [data-href]"

const headingSelector = "h1, h2, h3, h4, h5, h6, legend, [role='heading'], .section-title"

// cleanText collapses whitespace runs to single spaces
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func textOf(s *goquery.Selection) string {
	return cleanText(s.Text())
}

func iaID(s *goquery.Selection) string {
	v, _ := s.Attr("data-ia-id")
	return v
}

// selectorFor addresses one annotated element in the live page
func selectorFor(id string) string {
	return fmt.Sprintf(`[data-ia-id="%s"]`, id)
}

func isLeaf(s *goquery.Selection) bool {
	return s.Children().Length() == 0
}

func isVisible(s *goquery.Selection) bool {
	return s.Closest("[data-ia-hidden]").Length() == 0
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// leaves returns the visible elements under root that have no element children
func leaves(root *goquery.Selection) []*goquery.Selection {
	var out []*goquery.Selection
	root.Find("*").Each(func(_ int, s *goquery.Selection) {
		if isLeaf(s) && isVisible(s) {
			out = append(out, s)
		}
	})
	return out
}

// clickTarget returns the annotation id of the element to click for s:
// s itself when clickable, else its first clickable descendant, else its
// nearest clickable ancestor, else s.
func clickTarget(s *goquery.Selection) (string, bool) {
	if s.Is(clickableSelector) {
		return nonEmpty(iaID(s))
	}
	if inner := s.Find(clickableSelector).First(); inner.Length() > 0 {
		return nonEmpty(iaID(inner))
	}
	if outer := s.Closest(clickableSelector); outer.Length() > 0 {
		return nonEmpty(iaID(outer))
	}
	return nonEmpty(iaID(s))
}

func nonEmpty(s string) (string, bool) {
	return s, s != ""
}

// style returns the computed font size and weight stamped by annotate
func style(s *goquery.Selection) (float64, int) {
	var fs float64
	var fw int
	if v, ok := s.Attr("data-ia-fs"); ok {
		fs, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := s.Attr("data-ia-fw"); ok {
		fw, _ = strconv.Atoi(v)
	}
	return fs, fw
}

// tokens splits text on whitespace and trims surrounding punctuation
func tokens(text string) []string {
	fields := strings.Fields(text)
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ",;:()[]#")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// matchingTokens returns the tokens of text that match re
func matchingTokens(re *regexp.Regexp, text string) []string {
	var out []string
	for _, t := range tokens(text) {
		if re.MatchString(t) {
			out = append(out, t)
		}
	}
	return out
}

// appendUnique appends values not already present, keeping order
func appendUnique(dst []string, seen map[string]bool, values ...string) []string {
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		dst = append(dst, v)
	}
	return dst
}

// headerTexts returns the column headers of a table element
func headerTexts(table *goquery.Selection) []string {
	var headers []string
	ths := table.Find("thead th")
	if ths.Length() == 0 {
		ths = table.Find("tr").First().Find("th")
	}
	ths.Each(func(_ int, s *goquery.Selection) {
		headers = append(headers, textOf(s))
	})
	return headers
}

func columnIndex(headers []string, keywords []string) int {
	for _, kw := range keywords {
		for i, h := range headers {
			if containsFold(h, kw) {
				return i
			}
		}
	}
	return -1
}
