package utils

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter handles accurate, model-aware token counting, backing
// ResourceUsage.TokensUsed (spec.md §3) and the Evolution Loop's
// context-budget checks.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	model    string
	mu       sync.RWMutex
}

// Message is a chat message for token counting.
type Message struct {
	Role    string
	Content string
}

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.RWMutex
)

// NewTokenCounter returns a counter for the given model, falling back
// to cl100k_base when the model has no registered encoding.
func NewTokenCounter(model string) (*TokenCounter, error) {
	cacheMu.RLock()
	cached, exists := encodingCache[model]
	cacheMu.RUnlock()
	if exists {
		return &TokenCounter{encoding: cached, model: model}, nil
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get encoding: %w", err)
		}
	}

	cacheMu.Lock()
	encodingCache[model] = encoding
	cacheMu.Unlock()

	return &TokenCounter{encoding: encoding, model: model}, nil
}

// Count returns the token count of text.
func (tc *TokenCounter) Count(text string) int {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return len(tc.encoding.Encode(text, nil, nil))
}

// CountMessages counts tokens across a message list, including the
// per-message role/framing overhead OpenAI's cookbook documents.
func (tc *TokenCounter) CountMessages(messages []Message) int {
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	const tokensPerMessage = 3
	total := 0
	for _, msg := range messages {
		total += tokensPerMessage
		total += len(tc.encoding.Encode(msg.Role, nil, nil))
		total += len(tc.encoding.Encode(msg.Content, nil, nil))
	}
	total += 3 // reply priming
	return total
}

// GetModel returns the model this counter is configured for.
func (tc *TokenCounter) GetModel() string {
	return tc.model
}

// EstimateTokens is a cheap fallback for call sites without a
// TokenCounter available (e.g. before an LLM client is known).
func EstimateTokens(text string) int {
	return len(text) / 4
}
