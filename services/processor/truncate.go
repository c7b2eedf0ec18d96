package processor

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"

	"github.com/zetadesk/mailgate/internal/models"
)

var newlineRe = regexp.MustCompile(`\r?\n`)

// TruncateText cuts the body at the first match of each delimiter in
// order, keeping the prefix, then rewrites line breaks to <br> so the
// stored body is HTML-safe.
func TruncateText(body string, delimiters []models.Delimiter) string {
	result := body
	for i := range delimiters {
		if idx := delimiters[i].Match(result); idx >= 0 {
			result = result[:idx]
		}
	}
	return newlineRe.ReplaceAllString(result, "<br>")
}

// TruncateHTML applies the delimiters to an HTML document: for each
// delimiter matching the textual content of <body>, the deepest element
// containing the match is removed together with everything to its right,
// walking right-sibling removal up to the body. Input that no delimiter
// matches is returned untouched.
func TruncateHTML(html string, delimiters []models.Delimiter) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", errors.Wrap(err, "failed to parse html body")
	}

	body := doc.Find("body").First()
	if body.Length() == 0 {
		return html, nil
	}

	truncated := false
	for i := range delimiters {
		d := &delimiters[i]
		if !d.Matches(body.Text()) {
			continue
		}

		target := findDeepestMatch(body, d)
		truncateAt(body, target)
		truncated = true
	}

	if !truncated {
		return html, nil
	}

	out, err := doc.Find("html").First().Html()
	if err != nil {
		return "", errors.Wrap(err, "failed to serialize html body")
	}
	return "<html>" + out + "</html>", nil
}

// findDeepestMatch walks children depth-first and stops at the first
// element whose own text still contains the match; when no child
// matches, the current element is the deepest hit.
func findDeepestMatch(sel *goquery.Selection, d *models.Delimiter) *goquery.Selection {
	var matched *goquery.Selection
	sel.Children().EachWithBreak(func(_ int, child *goquery.Selection) bool {
		if d.Matches(child.Text()) {
			matched = child
			return false
		}
		return true
	})

	if matched == nil {
		return sel
	}
	return findDeepestMatch(matched, d)
}

// truncateAt removes target and its right siblings, then removes the
// right siblings of every ancestor up to (excluding) the body. A match
// on the body itself empties it.
func truncateAt(body, target *goquery.Selection) {
	if target.Length() == 0 {
		return
	}
	if target.Nodes[0] == body.Nodes[0] {
		body.Empty()
		return
	}

	parent := target.Parent()
	target.NextAll().Remove()
	target.Remove()

	for parent.Length() > 0 && parent.Nodes[0] != body.Nodes[0] {
		next := parent.Parent()
		parent.NextAll().Remove()
		parent = next
	}
}

// ProcessBody derives the effective body of a message: the html
// alternative when present, else text; extracts permitted attributes and
// applies delimiter truncation when enabled.
func (p *Processor) ProcessBody(msg *models.InboundMessage) {
	isHTML := msg.HTMLBody != ""
	body := msg.TextBody
	if isHTML {
		body = msg.HTMLBody
	}

	msg.ParsedFields = ExtractAttributes(body, p.cfg.PermittedBodyAttributes)

	if !p.cfg.TruncateCommentsAfterDelimiter || len(p.cfg.CommentDelimiters) == 0 {
		msg.Body = body
		return
	}

	if isHTML {
		out, err := TruncateHTML(body, p.cfg.CommentDelimiters)
		if err != nil {
			p.log.Errorf("html truncation failed, keeping original body: %v", err)
			msg.Body = body
			return
		}
		msg.Body = out
		return
	}

	msg.Body = TruncateText(body, p.cfg.CommentDelimiters)
}
