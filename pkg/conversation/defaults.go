package conversation

import (
	"strings"

	"mercator-hq/tutor/pkg/completion"
	"mercator-hq/tutor/pkg/content"
)

// offlineReplies is the static reply per language, served when neither the
// model nor the cache can answer.
var offlineReplies = map[string]string{
	"en": "The tutor is taking a short break. Keep practicing and try again in a moment.",
	"es": "El tutor está tomando un breve descanso. Sigue practicando e inténtalo de nuevo en un momento.",
	"fr": "Le tuteur fait une courte pause. Continue à pratiquer et réessaie dans un instant.",
	"de": "Der Tutor macht eine kurze Pause. Übe weiter und versuche es gleich noch einmal.",
}

// NewDefaultReplies returns the static reply registry used by the fallback
// chain. Keys follow ReplyCacheKey; unknown languages get the English reply.
func NewDefaultReplies() *content.Defaults[completion.Reply] {
	return content.NewDefaults(OfflineReply)
}

// OfflineReply returns the static reply for a reply cache key.
func OfflineReply(key string) completion.Reply {
	language := key[strings.LastIndex(key, ":")+1:]
	text, ok := offlineReplies[language]
	if !ok {
		text = offlineReplies["en"]
	}
	return completion.Reply{Text: text, FinishReason: "offline"}
}
