package domain

// Verdict is the result of structural validation. Failures accumulates
// every independent rule violation, not just the first.
type Verdict struct {
	OK       bool
	Failures []string
	// SoftVerify is set when the post is acceptable but should carry a
	// needs-verification flag downstream (e.g. graffiti without a type).
	SoftVerify bool
}

// Validate enforces the structural submission rules on a parsed post.
// It never mutates state and is idempotent for the same input.
func Validate(p ParsedPost) Verdict {
	var v Verdict

	switch {
	case p.PhotoCount == 0:
		v.Failures = append(v.Failures, ReasonMissingPhoto)
	case p.PhotoCount > 1:
		v.Failures = append(v.Failures, ReasonExtraPhotos)
	}

	if p.AmbiguousLocation {
		v.Failures = append(v.Failures, ReasonAmbiguousLocation)
	} else if p.Location == nil {
		v.Failures = append(v.Failures, ReasonMissingLocation)
	}

	if !p.MentionsTarget {
		v.Failures = append(v.Failures, ReasonMissingMention)
	}

	if p.KindConflict {
		v.Failures = append(v.Failures, ReasonKindConflict)
	}

	// A graffiti report without a type field is fine, it just needs a
	// human look later.
	if p.Kind == KindGraffiti && p.FreeTextCategory == "" {
		v.SoftVerify = true
	}

	v.OK = len(v.Failures) == 0
	return v
}
