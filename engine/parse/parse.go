// Package parse extracts structured candidate fields from raw post content
// using regex patterns. It is a pure text-to-struct layer: no I/O, no
// logging, fully deterministic for identical input.
package parse

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/propwatch/propwatch/engine/domain"
)

var (
	reCoords  = regexp.MustCompile(`(-?\d{1,2}\.\d+)\s*,\s*(-?\d{1,3}\.\d+)`)
	reDMS     = regexp.MustCompile(`(?i)(\d{1,3})\s*[°º]\s*(\d{1,2})\s*['’′]\s*(\d{1,2}(?:[.,]\d+)?)\s*(?:["”″])?\s*([NSEW])`)
	reAddress = regexp.MustCompile(`^(.+?)\s+(\d+[a-zA-Z]?)\s*,\s*(.+)$`)
	reCross   = regexp.MustCompile(`(?i)^(.+?)\s*(?:/| x | & )\s*(.+?)\s*,\s*(.+)$`)
	reStreet  = regexp.MustCompile(`^(.+?)\s*,\s*(.+)$`)
	reHashtag = regexp.MustCompile(`#([A-Za-z0-9_]+)`)
	reMention = regexp.MustCompile(`^(?:@\w+(?:@[\w.-]+)?)(?:\s+@\w+(?:@[\w.-]+)?)*$`)

	// #sticker_type: / #graffiti_type: free-text field, tolerating the
	// common "grafitti" typo and the German "_typ" suffix.
	reCategory = regexp.MustCompile(`(?im)^\s*#(sticker|graffiti|grafitti)_(?:type|typ)\s*:?\s*([^\n#@]{1,200}?)\s*$`)
	reNote     = regexp.MustCompile(`(?im)^\s*#note\s*:?\s*([^\n#]+)`)

	reLocPrefix = regexp.MustCompile(`(?i)^\s*(ort|location|place)\s*:\s*`)
	reStrAbbrev = regexp.MustCompile(`(?i)(\pL)str\.?\b`)

	reHTMLPara = regexp.MustCompile(`(?i)</p>\s*(<p[^>]*>)?`)
	reHTMLBr   = regexp.MustCompile(`(?i)<br\s*/?>`)
	reHTMLTag  = regexp.MustCompile(`<[^>]+>`)
	reSpaces   = regexp.MustCompile(`[ \t\f\v]+`)
	reBlank    = regexp.MustCompile(`\n{2,}`)
)

const maxNoteRunes = 500

// Parser extracts ParsedPost values for one configured target account.
// Build it with New so the target's mention pattern compiles once.
type Parser struct {
	// Target is the account handle a valid report must mention,
	// without the leading @.
	Target string

	mentionRe *regexp.Regexp
}

// New builds a Parser for the given target account.
func New(target string) Parser {
	p := Parser{Target: target}
	if target != "" {
		p.mentionRe = mentionPattern(target)
	}
	return p
}

func mentionPattern(target string) *regexp.Regexp {
	base := strings.ToLower(strings.TrimPrefix(target, "@"))
	return regexp.MustCompile(`(?i)(^|\s)@` + regexp.QuoteMeta(base) + `(@[\w.-]+)?\b`)
}

// Parse converts a raw post into its structured extraction result.
func (p Parser) Parse(raw domain.RawPost) domain.ParsedPost {
	text := StripHTML(raw.Body)

	out := domain.ParsedPost{
		PostID:           raw.ID,
		AuthorID:         raw.AuthorID,
		SourceURL:        raw.URL,
		PhotoCount:       raw.AttachmentCount,
		Media:            raw.Media,
		CreatedAtRemote:  raw.CreatedAtRemote,
		ReviewerApproved: raw.ReviewerApproved,
		FlaggedIllegal:   raw.FlaggedIllegal,
	}

	out.Hashtags = collectHashtags(raw.Hashtags, text)
	out.Kind, out.Removal, out.KindConflict = classifyKind(out.Hashtags)
	out.MentionsTarget = p.mentionsTarget(text, raw.MentionTargets)
	out.Location, out.AmbiguousLocation = extractLocation(text)
	out.Note = extractNote(text)

	if cat, kind, conflict := extractCategory(text); cat != "" || conflict {
		out.FreeTextCategory = cat
		if conflict {
			out.KindConflict = true
			out.Kind = domain.KindUnknown
		} else if out.Kind == domain.KindUnknown {
			out.Kind = kind
		} else if kind != domain.KindUnknown && kind != out.Kind {
			out.KindConflict = true
			out.Kind = domain.KindUnknown
		}
	}

	return out
}

// StripHTML flattens post HTML to plain text lines.
func StripHTML(s string) string {
	s = reHTMLPara.ReplaceAllString(s, "\n")
	s = reHTMLBr.ReplaceAllString(s, "\n")
	s = reHTMLTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = reSpaces.ReplaceAllString(s, " ")
	s = reBlank.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}

func collectHashtags(given []string, text string) []string {
	seen := make(map[string]bool)
	var tags []string
	add := func(tag string) {
		tag = strings.ToLower(strings.TrimPrefix(tag, "#"))
		if tag != "" && !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	for _, t := range given {
		add(t)
	}
	for _, m := range reHashtag.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	return tags
}

// classifyKind maps report hashtags to a kind and removal intent.
// Absence of a recognized hashtag still parses; validation handles it.
func classifyKind(tags []string) (kind domain.Kind, removal, conflict bool) {
	var sticker, graffiti bool
	for _, t := range tags {
		switch t {
		case "sticker_report":
			sticker = true
		case "graffiti_report", "grafitti_report":
			graffiti = true
		case "sticker_removed":
			sticker, removal = true, true
		case "graffiti_removed", "grafitti_removed":
			graffiti, removal = true, true
		}
	}
	switch {
	case sticker && graffiti:
		return domain.KindUnknown, removal, true
	case sticker:
		return domain.KindSticker, removal, false
	case graffiti:
		return domain.KindGraffiti, removal, false
	default:
		return domain.KindUnknown, removal, false
	}
}

func (p Parser) mentionsTarget(text string, mentions []string) bool {
	if p.Target == "" {
		return false
	}
	base := strings.ToLower(strings.TrimPrefix(p.Target, "@"))
	for _, m := range mentions {
		acct := strings.ToLower(strings.TrimPrefix(m, "@"))
		if acct == base || strings.HasPrefix(acct, base+"@") {
			return true
		}
	}
	re := p.mentionRe
	if re == nil {
		// Zero-value Parser; the compiled form lives on New-built ones.
		re = mentionPattern(p.Target)
	}
	return re.MatchString(text)
}

// extractLocation finds at most one location expression. Distinct
// coordinate pairs, or a coordinate next to a textual address, are
// conflicting input and flag the post ambiguous instead of guessing.
func extractLocation(text string) (*domain.LocationExpr, bool) {
	coords := coordCandidates(text)
	textual := textualCandidate(text)

	switch {
	case len(coords) > 1:
		return nil, true
	case len(coords) == 1 && textual != nil:
		return nil, true
	case len(coords) == 1:
		return coords[0], false
	case textual != nil:
		return textual, false
	default:
		return nil, false
	}
}

func coordCandidates(text string) []*domain.LocationExpr {
	var out []*domain.LocationExpr
	seen := make(map[string]bool)

	if lat, lon, ok := parseDMS(text); ok {
		key := fmtCoord(lat, lon)
		seen[key] = true
		out = append(out, &domain.LocationExpr{
			Raw: key, Kind: domain.ExprCoords, Lat: lat, Lon: lon, Precise: true,
		})
	}

	for _, m := range reCoords.FindAllStringSubmatch(text, -1) {
		lat, err1 := strconv.ParseFloat(m[1], 64)
		lon, err2 := strconv.ParseFloat(m[2], 64)
		if err1 != nil || err2 != nil || !plausible(lat, lon) {
			continue
		}
		key := fmtCoord(lat, lon)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, &domain.LocationExpr{
			Raw:     strings.TrimSpace(m[0]),
			Kind:    domain.ExprCoords,
			Lat:     lat,
			Lon:     lon,
			Precise: decimals(m[1]) >= 4 && decimals(m[2]) >= 4,
		})
	}
	return out
}

// textualCandidate scans for the first line that is neither a hashtag
// line, a pure mention line, nor a coordinate, and tries the address and
// crossing patterns on it.
func textualCandidate(text string) *domain.LocationExpr {
	for _, ln := range strings.Split(text, "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" || strings.HasPrefix(ln, "#") {
			continue
		}
		if strings.HasPrefix(ln, "@") && reMention.MatchString(ln) {
			continue
		}
		if reCoords.MatchString(ln) || reDMS.MatchString(ln) {
			continue
		}

		cand := normalizeLocationLine(ln)

		if m := reAddress.FindStringSubmatch(cand); m != nil {
			return &domain.LocationExpr{
				Raw:   ln,
				Kind:  domain.ExprAddress,
				Query: strings.TrimSpace(m[1]) + " " + strings.TrimSpace(m[2]) + ", " + strings.TrimSpace(m[3]),
			}
		}
		if m := reCross.FindStringSubmatch(cand); m != nil {
			return &domain.LocationExpr{
				Raw:   ln,
				Kind:  domain.ExprCrossing,
				Query: "intersection of " + strings.TrimSpace(m[1]) + " and " + strings.TrimSpace(m[2]) + ", " + strings.TrimSpace(m[3]),
			}
		}
		if m := reStreet.FindStringSubmatch(cand); m != nil {
			return &domain.LocationExpr{
				Raw:   ln,
				Kind:  domain.ExprAddress,
				Query: strings.TrimSpace(m[1]) + ", " + strings.TrimSpace(m[2]),
			}
		}
	}
	return nil
}

// normalizeLocationLine cleans a candidate line: strips Ort:/location:
// prefixes, expands the German "str." abbreviation, and repairs a
// crossing missing its comma before the city ("A / B Hamburg").
func normalizeLocationLine(s string) string {
	s = reLocPrefix.ReplaceAllString(s, "")
	s = reStrAbbrev.ReplaceAllString(s, "${1}straße")
	s = strings.ReplaceAll(s, ".,", ",")
	s = reSpaces.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	if !strings.Contains(s, ",") {
		for _, sep := range []string{" / ", " x ", " & "} {
			if strings.Contains(s, sep) {
				if i := strings.LastIndex(s, " "); i > 0 {
					s = s[:i] + ", " + s[i+1:]
				}
				break
			}
		}
	}
	return s
}

func parseDMS(text string) (lat, lon float64, ok bool) {
	var haveLat, haveLon bool
	for _, m := range reDMS.FindAllStringSubmatch(text, -1) {
		deg, _ := strconv.ParseFloat(m[1], 64)
		min, _ := strconv.ParseFloat(m[2], 64)
		sec, _ := strconv.ParseFloat(strings.ReplaceAll(m[3], ",", "."), 64)
		dd := deg + min/60 + sec/3600
		switch strings.ToUpper(m[4]) {
		case "S":
			dd = -dd
			fallthrough
		case "N":
			if !haveLat && dd >= -90 && dd <= 90 {
				lat, haveLat = dd, true
			}
		case "W":
			dd = -dd
			fallthrough
		case "E":
			if !haveLon && dd >= -180 && dd <= 180 {
				lon, haveLon = dd, true
			}
		}
		if haveLat && haveLon {
			return lat, lon, true
		}
	}
	return 0, 0, false
}

func extractCategory(text string) (cat string, kind domain.Kind, conflict bool) {
	var sticker, graffiti bool
	var vals []string
	for _, m := range reCategory.FindAllStringSubmatch(text, -1) {
		k := strings.ToLower(m[1])
		v := strings.TrimSpace(m[2])
		if v == "" {
			continue
		}
		if k == "sticker" {
			sticker = true
		} else {
			graffiti = true // "grafitti" normalizes to graffiti
		}
		vals = append(vals, v)
	}
	if len(vals) == 0 {
		return "", domain.KindUnknown, false
	}
	if sticker && graffiti {
		return "", domain.KindUnknown, true
	}
	kind = domain.KindSticker
	if graffiti {
		kind = domain.KindGraffiti
	}
	return vals[0], kind, false
}

func extractNote(text string) string {
	m := reNote.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	note := strings.TrimSpace(m[1])
	if r := []rune(note); len(r) > maxNoteRunes {
		note = string(r[:maxNoteRunes])
	}
	return note
}

func plausible(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

func decimals(s string) int {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}

func fmtCoord(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', 5, 64) + "," + strconv.FormatFloat(lon, 'f', 5, 64)
}
