package providers

// ValidateChat checks the canonical chat request invariants before any
// provider sees it.
func ValidateChat(req *ChatRequest) error {
	if req == nil {
		return &ValidationError{Field: "request", Message: "request cannot be nil"}
	}
	if req.Model == "" {
		return &ValidationError{Field: "model", Message: "model is required"}
	}
	if len(req.Messages) == 0 {
		return &ValidationError{Field: "messages", Message: "at least one message is required"}
	}
	if req.MaxTokens < 0 {
		return &ValidationError{Field: "max_tokens", Message: "max_tokens must be >= 1 when set"}
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		return &ValidationError{Field: "temperature", Message: "temperature must be within [0, 2]"}
	}
	return nil
}

// ValidateCompletion checks the canonical completion request invariants.
func ValidateCompletion(req *CompletionRequest) error {
	if req == nil {
		return &ValidationError{Field: "request", Message: "request cannot be nil"}
	}
	if req.Model == "" {
		return &ValidationError{Field: "model", Message: "model is required"}
	}
	if req.Prompt == "" {
		return &ValidationError{Field: "prompt", Message: "prompt is required"}
	}
	if req.MaxTokens < 0 {
		return &ValidationError{Field: "max_tokens", Message: "max_tokens must be >= 1 when set"}
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		return &ValidationError{Field: "temperature", Message: "temperature must be within [0, 2]"}
	}
	return nil
}

// ValidateEmbedding checks the canonical embedding request invariants.
func ValidateEmbedding(req *EmbeddingRequest) error {
	if req == nil {
		return &ValidationError{Field: "request", Message: "request cannot be nil"}
	}
	if req.Model == "" {
		return &ValidationError{Field: "model", Message: "model is required"}
	}
	if len(req.Input) == 0 {
		return &ValidationError{Field: "input", Message: "at least one input string is required"}
	}
	return nil
}
