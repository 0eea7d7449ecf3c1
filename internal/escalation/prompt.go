package escalation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/scwf/open-dubbing/internal/subtitle"
)

// simplificationSystemPrompt instructs the model to compress dialogue without
// losing meaning. Keep updates centralized here so it is easy to tweak without
// hunting through call sites.
const simplificationSystemPrompt = `You are an expert dubbing script editor. A subtitle line cannot be spoken naturally within its time window, so you must shorten it while keeping the full meaning and tone.

Rules:

- Preserve the speaker's intent, named entities, and emotional register.

- Prefer dropping filler words and redundant qualifiers over dropping information.

- Keep the output in the same language as the input line.

- Do not add explanations, quotes, or markdown.

You must respond with exactly two lines:
SIMPLIFIED_TEXT: <the shortened line>
REASON: <one short sentence describing what was cut>`

func buildUserPrompt(target subtitle.Cue, window []subtitle.Cue, targetMaxMS int64) string {
	var b strings.Builder
	if len(window) > 0 {
		b.WriteString("Surrounding dialogue for context:\n")
		for _, cue := range window {
			if cue.Index == target.Index {
				fmt.Fprintf(&b, ">> %d: %s\n", cue.Index, cue.Text)
				continue
			}
			fmt.Fprintf(&b, "   %d: %s\n", cue.Index, cue.Text)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Shorten the line marked >> so it can be spoken in at most %.1f seconds:\n%s", float64(targetMaxMS)/1000, target.Text)
	return b.String()
}

// parseReply extracts the simplified text and reason from the two-line reply
// format. Extra leading chatter is tolerated; a missing SIMPLIFIED_TEXT line
// is an error.
func parseReply(content string) (text, reason string, err error) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "SIMPLIFIED_TEXT:"):
			text = strings.TrimSpace(strings.TrimPrefix(line, "SIMPLIFIED_TEXT:"))
		case strings.HasPrefix(line, "REASON:"):
			reason = strings.TrimSpace(strings.TrimPrefix(line, "REASON:"))
		}
	}
	if text == "" {
		return "", "", errors.New("reply missing SIMPLIFIED_TEXT line")
	}
	return text, reason, nil
}
