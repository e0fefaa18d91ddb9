package reactloop

import (
	"encoding/json"
	"strings"
)

type actionKind int

const (
	kindFinalAnswer actionKind = iota
	kindToolAction
	kindSelfQuestion
	kindObservation
	kindUnparseable
)

// parsedAction is one of the five shapes an LLM turn can take, per the
// iteration loop's dispatch step.
type parsedAction struct {
	Kind        actionKind
	Answer      string
	Tool        string
	Input       map[string]any
	Question    string
	Observation string
}

// parseLLMOutput classifies content into one of the five shapes.
// Parsing is tolerant of a JSON object wrapped in a markdown code
// fence, or surrounded by explanatory prose; a JSON object present but
// matching none of the known keys is unparseable rather than guessed
// at. Plain prose with no JSON object at all is treated as a bare
// final answer, the common shape for a model that ignores the
// structured-output instruction once it believes it is done.
func parseLLMOutput(content string) parsedAction {
	body := strings.TrimSpace(content)
	if jsonBody, ok := extractJSONObject(body); ok {
		var generic map[string]any
		if err := json.Unmarshal([]byte(jsonBody), &generic); err == nil {
			switch {
			case isNonEmptyString(generic["tool"]):
				input, _ := generic["input"].(map[string]any)
				return parsedAction{Kind: kindToolAction, Tool: generic["tool"].(string), Input: input}
			case isNonEmptyString(generic["question"]):
				return parsedAction{Kind: kindSelfQuestion, Question: generic["question"].(string)}
			case isNonEmptyString(generic["observation"]):
				return parsedAction{Kind: kindObservation, Observation: generic["observation"].(string)}
			case isNonEmptyString(generic["answer"]):
				return parsedAction{Kind: kindFinalAnswer, Answer: generic["answer"].(string)}
			}
		}
		return parsedAction{Kind: kindUnparseable}
	}

	if body == "" {
		return parsedAction{Kind: kindUnparseable}
	}
	return parsedAction{Kind: kindFinalAnswer, Answer: body}
}

func isNonEmptyString(v any) bool {
	s, ok := v.(string)
	return ok && s != ""
}

// extractJSONObject strips an optional ```json / ``` fence, then looks
// for the outermost {...} span. It does not attempt full brace
// balancing: LLM output rarely nests unrelated braces outside the
// single decision object this loop expects.
func extractJSONObject(body string) (string, bool) {
	trimmed := body
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	}
	start := strings.IndexByte(trimmed, '{')
	end := strings.LastIndexByte(trimmed, '}')
	if start >= 0 && end > start {
		return trimmed[start : end+1], true
	}
	return "", false
}
