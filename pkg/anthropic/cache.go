package anthropic

// BuildCachedSystemBlocks constructs system content blocks with a prompt
// cache breakpoint. ttl is "5m" or "1h"; empty uses the API default.
func BuildCachedSystemBlocks(text, ttl string) []SystemBlock {
	return []SystemBlock{
		{
			Text: text,
			CacheControl: &CacheControl{
				TTL: ttl,
			},
		},
	}
}

// SingleTurn builds a request with one cached system prompt and one user
// message, the shape every summary call uses.
func SingleTurn(model string, maxTokens int64, system, user string) MessageRequest {
	return MessageRequest{
		Model:     model,
		MaxTokens: maxTokens,
		System:    BuildCachedSystemBlocks(system, ""),
		Messages:  []Message{{Role: "user", Content: user}},
	}
}
