package scraper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Selectors mirror the ones snapshotJS queries in the live page.
var (
	selBody         = cascadia.MustCompile("body")
	selSpan         = cascadia.MustCompile("span")
	selH1           = cascadia.MustCompile("h1")
	selPageLabel    = cascadia.MustCompile(`[aria-label*="Page"]`)
	selH2           = cascadia.MustCompile("h2")
	selStrong       = cascadia.MustCompile("strong, b")
	selProfileLink  = cascadia.MustCompile(`a[href*="facebook.com/"]`)
	selPreWrap      = cascadia.MustCompile(`div[style*="white-space: pre-wrap"]`)
	selAutoDir      = cascadia.MustCompile(`div[dir="auto"]`)
	selButton       = cascadia.MustCompile(`div[role="button"]`)
	selImg          = cascadia.MustCompile("img")
	styleWidthRe    = regexp.MustCompile(`(?:^|;)\s*width\s*:\s*(\d+)px`)
	styleHeightRe   = regexp.MustCompile(`(?:^|;)\s*height\s*:\s*(\d+)px`)
	styleRadiusRe   = regexp.MustCompile(`border-radius\s*:\s*([^;]+)`)
	whitespaceRunRe = regexp.MustCompile(`[ \t\r\f\v]+`)
	blankLinesRe    = regexp.MustCompile(`\n{2,}`)
)

// skippedTags never contribute rendered text.
var skippedTags = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Head:     true,
}

// blockTags start and end a line in rendered text.
var blockTags = map[atom.Atom]bool{
	atom.Div: true, atom.P: true, atom.Br: true, atom.Li: true, atom.Ul: true, atom.Ol: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true,
	atom.Main: true, atom.Nav: true, atom.Aside: true, atom.Table: true, atom.Tr: true,
	atom.Form: true,
}

// BuildStaticSnapshot rebuilds a Snapshot from serialized page HTML. It is
// used when script evaluation in the page fails. Computed styles are not
// available, so image sizes and border radius come from attributes and
// inline styles only.
func BuildStaticSnapshot(rawHTML string) (*Snapshot, error) {
	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parsing page html: %w", err)
	}
	doc := goquery.NewDocumentFromNode(root)

	snap := &Snapshot{OK: true}
	if body := doc.FindMatcher(selBody); body.Length() > 0 {
		snap.BodyText = innerText(body.Get(0))
	}

	doc.FindMatcher(selSpan).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		t := innerText(s.Get(0))
		if t == "Active" || t == "Inactive" {
			snap.StatusMarker = t
			return false
		}
		return true
	})
	if h1 := doc.FindMatcher(selH1).First(); h1.Length() > 0 {
		snap.H1 = innerText(h1.Get(0))
	}
	doc.FindMatcher(selPageLabel).Each(func(_ int, s *goquery.Selection) {
		snap.PageLabels = append(snap.PageLabels, s.AttrOr("aria-label", ""))
	})
	snap.H2 = texts(doc.FindMatcher(selH2))
	snap.Strong = texts(doc.FindMatcher(selStrong))
	for _, t := range texts(doc.FindMatcher(selSpan)) {
		if len([]rune(t)) <= 100 {
			snap.Spans = append(snap.Spans, t)
		}
	}
	doc.FindMatcher(selProfileLink).Each(func(_ int, a *goquery.Selection) {
		snap.ProfileSpans = append(snap.ProfileSpans, texts(a.FindMatcher(selSpan))...)
	})

	if pw := doc.FindMatcher(selPreWrap).First(); pw.Length() > 0 {
		inner, _ := pw.Html()
		snap.PreWrap = &TextBlock{Text: innerText(pw.Get(0)), HTML: inner}
	}
	doc.FindMatcher(selAutoDir).Each(func(_ int, s *goquery.Selection) {
		inner, _ := s.Html()
		snap.AutoDir = append(snap.AutoDir, TextBlock{Text: innerText(s.Get(0)), HTML: inner})
	})

	snap.Buttons = texts(doc.FindMatcher(selButton))

	doc.FindMatcher(selImg).Each(func(_ int, s *goquery.Selection) {
		style := s.AttrOr("style", "")
		snap.Images = append(snap.Images, ImageInfo{
			Src:          s.AttrOr("src", ""),
			Width:        dimension(s.AttrOr("width", ""), style, styleWidthRe),
			Height:       dimension(s.AttrOr("height", ""), style, styleHeightRe),
			BorderRadius: styleValue(style, styleRadiusRe),
		})
	})
	return snap, nil
}

func texts(sel *goquery.Selection) []string {
	out := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, innerText(s.Get(0)))
	})
	return out
}

func dimension(attr, style string, re *regexp.Regexp) int {
	if n, err := strconv.Atoi(strings.TrimSpace(attr)); err == nil {
		return n
	}
	if m := re.FindStringSubmatch(style); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

func styleValue(style string, re *regexp.Regexp) string {
	if m := re.FindStringSubmatch(style); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// innerText approximates the rendered text of n: whitespace runs collapse
// to one space and block elements break lines.
func innerText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(whitespaceRunRe.ReplaceAllString(strings.ReplaceAll(n.Data, "\n", " "), " "))
			return
		case html.ElementNode:
			if skippedTags[n.DataAtom] {
				return
			}
		}
		block := n.Type == html.ElementNode && blockTags[n.DataAtom]
		if block {
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			b.WriteByte('\n')
		}
	}
	walk(n)

	lines := strings.Split(b.String(), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	out := blankLinesRe.ReplaceAllString(strings.Join(lines, "\n"), "\n")
	return strings.Trim(out, "\n")
}
