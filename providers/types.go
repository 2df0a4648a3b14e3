package providers

// Request is a single-turn completion request.
type Request struct {
	Model       string
	Prompt      string
	Temperature float64
}

// Message represents a single message in the conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response is a parsed completion or stream chunk.
type Response struct {
	Text         string
	FinishReason string
	// Usage is nil when the server did not report token counts.
	Usage *Usage
}

// Usage represents the token usage information for a response.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// ModelDescriptor describes one model known to the server.
type ModelDescriptor struct {
	ID string
	// Name is an alternative key, such as the model key reported by lms.
	Name   string
	Type   string
	Loaded bool
}

// Matches reports whether name refers to this model.
func (m ModelDescriptor) Matches(name string) bool {
	return name != "" && (m.ID == name || m.Name == name)
}
