package cloudflare

// RewriteRequest is one chat message to be rewritten. The full prompt is
// PromptPrefix + RawMessage + PromptSuffix followed by SafetyInstruction.
type RewriteRequest struct {
	RawMessage   string
	PromptPrefix string
	PromptSuffix string
}

// Prompt builds the user message sent to the model.
func (r RewriteRequest) Prompt() string {
	return r.PromptPrefix + r.RawMessage + r.PromptSuffix + SafetyInstruction
}

// SafetyInstruction is appended to every prompt so the model keeps its
// output printable in game chat.
const SafetyInstruction = "\n(Do not use special characters, formatting codes, emoji or any characters that are illegal in game chat. Output plain text only.)"

// Result is the outcome of a rewrite. Err is nil on success.
type Result struct {
	Text string
	Err  error
}

// OK reports whether the rewrite succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// inputMessage is one entry of the inference "input" array.
type inputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
