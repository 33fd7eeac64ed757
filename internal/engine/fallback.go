package engine

import (
	"hash/fnv"

	"github.com/mrviduus/ReplyMate-sub000/internal/provider"
)

// fallbackReplies are safe generic replies used when every generation
// path has failed. The set stays small and bland on purpose.
var fallbackReplies = []string{
	"Thanks for sharing this, it gave me something to think about.",
	"Interesting perspective, I appreciate you posting it.",
	"Good point, thanks for putting this into words.",
	"Thanks for the insight, this is worth a closer read.",
}

const rateLimitedReply = "You're sending requests a little fast. Please wait a moment and try again."

// FallbackText returns a generic reply for a failed request. The pick is
// deterministic in the source text so retries of the same request degrade
// to the same sentence.
func FallbackText(source string, err error) string {
	if provider.IsKind(err, provider.KindRateLimit) {
		return rateLimitedReply
	}
	h := fnv.New32a()
	h.Write([]byte(source))
	return fallbackReplies[int(h.Sum32())%len(fallbackReplies)]
}
