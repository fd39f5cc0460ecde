package rag

import (
	"regexp"
	"strings"
)

type Intent string

const (
	IntentDocumentQuery Intent = "document_query"
	IntentGreeting      Intent = "greeting"
	IntentGratitude     Intent = "gratitude"
	IntentFarewell      Intent = "farewell"
	IntentMeta          Intent = "meta"
)

type intentPattern struct {
	intent Intent
	re     *regexp.Regexp
}

// Order matters: the first matching pattern decides the intent. Patterns are
// anchored to the whole trimmed query unless they end without `$`, in which
// case they only need to match its start.
var intentPatterns = []intentPattern{
	{IntentGreeting, regexp.MustCompile(`(?i)^(hi|hello|hey|hiya|howdy|yo|greetings|good (morning|afternoon|evening|day))( there| all| everyone)?[\s!.,]*$`)},
	{IntentGratitude, regexp.MustCompile(`(?i)^(thanks|thank you|thank u|thx|ty|cheers|much appreciated|appreciate it)( (so|very) much| a lot| again)?[\s!.,]*$`)},
	{IntentGratitude, regexp.MustCompile(`(?i)^(thanks|thank you) (for|that)\b[^?]*$`)},
	{IntentFarewell, regexp.MustCompile(`(?i)^(bye|goodbye|good bye|bye bye|see you( later)?|see ya|later|farewell|take care|have a (good|great|nice) (day|one|night|evening))[\s!.,]*$`)},
	{IntentMeta, regexp.MustCompile(`(?i)^(who|what) are you\b`)},
	{IntentMeta, regexp.MustCompile(`(?i)^what can you (do|help)\b`)},
	{IntentMeta, regexp.MustCompile(`(?i)^how (do|does) (you|this) work\b`)},
	{IntentMeta, regexp.MustCompile(`(?i)^help[\s!?.]*$`)},
}

// ClassifyIntent maps a query onto one of the small-talk intents or
// IntentDocumentQuery. Empty input is a document query.
func ClassifyIntent(query string) Intent {
	q := strings.TrimSpace(query)
	if q == "" {
		return IntentDocumentQuery
	}
	for _, p := range intentPatterns {
		if p.re.MatchString(q) {
			return p.intent
		}
	}
	return IntentDocumentQuery
}

func (i Intent) IsConversational() bool {
	return i != IntentDocumentQuery
}
