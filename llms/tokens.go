package llms

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.RWMutex
)

// TokenEstimator fills in Usage when a provider response omits token
// counts, so getWorkflowStats always has a usage figure to fold over.
type TokenEstimator struct {
	encoding *tiktoken.Tiktoken
	model    string
}

// NewTokenEstimator builds an estimator for model, falling back to the
// cl100k_base encoding when the model is unrecognized.
func NewTokenEstimator(model string) (*TokenEstimator, error) {
	cacheMu.RLock()
	cached, ok := encodingCache[model]
	cacheMu.RUnlock()
	if ok {
		return &TokenEstimator{encoding: cached, model: model}, nil
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("llms: get encoding: %w", err)
		}
	}

	cacheMu.Lock()
	encodingCache[model] = enc
	cacheMu.Unlock()

	return &TokenEstimator{encoding: enc, model: model}, nil
}

// Count returns the token count of text.
func (e *TokenEstimator) Count(text string) int {
	return len(e.encoding.Encode(text, nil, nil))
}

// EstimateUsage fills a Usage from prompt and completion text when a
// provider response arrived without its own usage figures.
func (e *TokenEstimator) EstimateUsage(prompt, completion string) Usage {
	return Usage{
		InputTokens:  e.Count(prompt),
		OutputTokens: e.Count(completion),
	}
}
