package session

import (
	"strings"

	"github.com/earshot-ai/earshot/internal/llm"
)

const synthesisTemplate = `You are an insightful assistant. Given the following transcript of a conversation or speech, provide:

1. **Key Points** — the most important ideas mentioned
2. **Summary** — a concise summary of what was discussed
3. **Action Items** — any tasks or next steps mentioned
4. **Open Questions** — any unresolved questions or topics worth exploring

Be concise and use bullet points. If the transcript is short, keep your output proportionally brief.

Transcript:
{{transcript}}`

const insightsDeltaTemplate = `Below are two versions of insights derived from the same growing conversation. Compare them and state only what is new or changed in the latest version. Use concise bullet points. If nothing meaningful changed, reply with nothing at all.

Previous insights:
{{previous}}

Latest insights:
{{latest}}`

const tickerTemplate = `Here is the newest part of a live conversation transcript. Give a ticker-style update: 1-3 very short bullets capturing only what this new part adds. No preamble.

New transcript segment:
{{segment}}`

func synthesisMessages(transcript string) []llm.Message {
	content := strings.ReplaceAll(synthesisTemplate, "{{transcript}}", transcript)
	return []llm.Message{{Role: "user", Content: content}}
}

func insightsDeltaMessages(previous, latest string) []llm.Message {
	content := strings.ReplaceAll(insightsDeltaTemplate, "{{previous}}", previous)
	content = strings.ReplaceAll(content, "{{latest}}", latest)
	return []llm.Message{{Role: "user", Content: content}}
}

func tickerMessages(segment string) []llm.Message {
	content := strings.ReplaceAll(tickerTemplate, "{{segment}}", segment)
	return []llm.Message{{Role: "user", Content: content}}
}
