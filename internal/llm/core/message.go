package core

// StopReason represents the canonical reason a model response stopped.
type StopReason string

const (
	StopReasonStop    StopReason = "stop"
	StopReasonLength  StopReason = "length"
	StopReasonRefusal StopReason = "refusal"
)

// Usage tracks provider token accounting for one request.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Reply is the provider-agnostic result of one backend call.
type Reply struct {
	Text       string
	Usage      Usage
	Model      string
	StopReason StopReason
}
