package decide

import "github.com/propwatch/propwatch/engine/domain"

// Public reply texts, one per reason code. Replies are data; the transport
// adapter posts them. Internal errors never reach this table.

func ReplyPending() string {
	return "Thanks for the report! It is queued for review and will appear on the map once a reviewer confirms it."
}

func ReplyRemoved() string {
	return "Thanks for the update — the spot is now marked as removed on the map."
}

var replyByReason = map[string]string{
	domain.ReasonMissingPhoto:      "Please attach exactly one photo of the sighting so we can verify it.",
	domain.ReasonExtraPhotos:       "Please send exactly one photo per report — one post per sighting keeps the map accurate.",
	domain.ReasonMissingLocation:   "We could not find a location in your post. Please include coordinates, a street with city, or a crossing.",
	domain.ReasonAmbiguousLocation: "Your post contains more than one location. Please report each sighting in its own post with a single location.",
	domain.ReasonKindConflict:      "Your post is tagged as both a sticker and a graffiti report. Please use exactly one report tag.",
	domain.ReasonIllegalSymbol:     "We cannot accept photos showing unblurred illegal symbols. Please blur the symbol and report again.",
	domain.ReasonOutsideBounds:     "The location in your post is outside the area this map covers.",
	domain.ReasonUnresolvable:      "We could not resolve the location in your post. Please check the spelling or add coordinates.",
	domain.ReasonNoMatchingSpot:    "We could not find a tracked spot at that location to mark as removed.",
}

// ReplyForReason returns the reply for a reason code. Unmapped codes fall
// back to a generic ask so a reply is never empty.
func ReplyForReason(reason string) string {
	if text, ok := replyByReason[reason]; ok {
		return text
	}
	return "Something about this report needs a second look. Please check the submission rules and try again."
}
