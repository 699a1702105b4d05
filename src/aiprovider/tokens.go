package aiprovider

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/elee1766/chainpilot/src/aisdk"
)

var (
	codec     tokenizer.Codec
	codecOnce sync.Once
	codecErr  error
)

func getCodec() (tokenizer.Codec, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	return codec, codecErr
}

// EstimateTokens returns an approximate token count for text, 0 if the
// tokenizer is unavailable.
func EstimateTokens(text string) int {
	c, err := getCodec()
	if err != nil {
		return 0
	}
	ids, _, err := c.Encode(text)
	if err != nil {
		return 0
	}
	return len(ids)
}

// EstimateUsage approximates usage for a prompt and its completion.
func EstimateUsage(prompt []aisdk.ChatMessage, completion string) *aisdk.Usage {
	in := 0
	for _, m := range prompt {
		in += EstimateTokens(m.Content)
	}
	out := EstimateTokens(completion)
	return &aisdk.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out}
}
