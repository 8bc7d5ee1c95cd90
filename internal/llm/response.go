package llm

// Response wraps an LLM completion result.
type Response struct {
	Content      string `json:"content"`
	Model        string `json:"model,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	StopReason   string `json:"stop_reason,omitempty"`
}

// Usage reports token accounting in the shape returned to API callers.
// Returns nil when the provider reported no usage.
func (r *Response) Usage() map[string]int {
	if r == nil || (r.InputTokens == 0 && r.OutputTokens == 0) {
		return nil
	}
	return map[string]int{
		"prompt_tokens":     r.InputTokens,
		"completion_tokens": r.OutputTokens,
		"total_tokens":      r.InputTokens + r.OutputTokens,
	}
}
