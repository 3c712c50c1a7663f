package agent

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Address is a postal address split into positional parts
type Address struct {
	Name         string
	Company      string
	Street       string
	CityStateZip string
	Country      string
}

// ParseAddressLines maps the lines of an address block by position:
//
//	5+ lines: name, company, street lines joined by ", ", city/state/zip, country
//	4 lines:  name, street, city/state/zip, country
//	3 lines:  name, street, city/state/zip
//	2 lines:  name, city/state/zip
//	1 line:   name
//
// This is best effort. Blocks that omit the name or carry two company lines
// shift every part by one position and come out mislabeled.
func ParseAddressLines(lines []string) Address {
	var clean []string
	for _, l := range lines {
		if l = cleanText(l); l != "" {
			clean = append(clean, l)
		}
	}
	n := len(clean)
	switch {
	case n >= 5:
		return Address{
			Name:         clean[0],
			Company:      clean[1],
			Street:       strings.Join(clean[2:n-2], ", "),
			CityStateZip: clean[n-2],
			Country:      clean[n-1],
		}
	case n == 4:
		return Address{Name: clean[0], Street: clean[1], CityStateZip: clean[2], Country: clean[3]}
	case n == 3:
		return Address{Name: clean[0], Street: clean[1], CityStateZip: clean[2]}
	case n == 2:
		return Address{Name: clean[0], CityStateZip: clean[1]}
	case n == 1:
		return Address{Name: clean[0]}
	default:
		return Address{}
	}
}

// Fields renders the non-empty parts under heading
func (ad Address) Fields(heading string) map[string]string {
	out := map[string]string{}
	for _, kv := range [][2]string{
		{"Name", ad.Name},
		{"Company", ad.Company},
		{"Address", ad.Street},
		{"City/State/Zip", ad.CityStateZip},
		{"Country", ad.Country},
	} {
		if kv[1] != "" {
			out[heading+" - "+kv[0]] = kv[1]
		}
	}
	return out
}

const maxAddressLines = 8

// addressFields locates each configured address heading, exact text first
// and substring second, and parses the lines that follow it
func (a *Agent) addressFields(body *goquery.Selection) map[string]string {
	out := map[string]string{}
	for _, heading := range a.cfg.AddressHeadings {
		h := findHeading(body, heading)
		if h == nil {
			continue
		}
		lines := a.dropBoilerplate(linesAfter(h))
		if len(lines) > maxAddressLines {
			lines = lines[:maxAddressLines]
		}
		for k, v := range ParseAddressLines(lines).Fields(heading) {
			out[k] = v
		}
	}
	return out
}

func findHeading(body *goquery.Selection, heading string) *goquery.Selection {
	candidates := leaves(body)
	for _, c := range candidates {
		if strings.EqualFold(trimLabel(textOf(c)), heading) {
			return c
		}
	}
	for _, c := range candidates {
		t := textOf(c)
		if len(t) <= len(heading)+20 && containsFold(t, heading) {
			return c
		}
	}
	return nil
}

// linesAfter collects text lines from the siblings following h up to the
// next heading. A heading without siblings is read through its parent.
func linesAfter(h *goquery.Selection) []string {
	siblings := h.NextAll()
	if siblings.Length() == 0 {
		siblings = h.Parent().NextAll()
	}
	var lines []string
	siblings.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Is(headingSelector) {
			return false
		}
		lines = append(lines, textLines(s)...)
		return true
	})
	return lines
}

var inlineTags = map[string]bool{
	"a": true, "b": true, "strong": true, "em": true, "i": true, "span": true,
	"small": true, "abbr": true, "u": true, "label": true,
}

// textLines splits rendered text into lines at block elements and <br>
func textLines(s *goquery.Selection) []string {
	var (
		lines []string
		cur   strings.Builder
	)
	flush := func() {
		if t := cleanText(cur.String()); t != "" {
			lines = append(lines, t)
		}
		cur.Reset()
	}
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, n *goquery.Selection) {
			switch name := goquery.NodeName(n); {
			case name == "#text":
				cur.WriteString(n.Text())
				cur.WriteByte(' ')
			case name == "br":
				flush()
			case name == "script" || name == "style" || !isVisible(n):
			case inlineTags[name]:
				walk(n)
			default:
				flush()
				walk(n)
				flush()
			}
		})
	}
	walk(s)
	flush()
	return lines
}

func (a *Agent) dropBoilerplate(lines []string) []string {
	out := lines[:0]
	for _, l := range lines {
		skip := false
		for _, b := range a.cfg.BoilerplateLines {
			if strings.EqualFold(l, b) {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, l)
		}
	}
	return out
}
