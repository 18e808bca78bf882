package gemini

import "context"

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	// RoleError marks a message that reports a failed turn; it is never sent back as history.
	RoleError Role = "error"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Part is one piece of context: text, or inline binary data with its MIME type.
type Part struct {
	Text     string
	MIMEType string
	Data     []byte
}

func TextPart(text string) Part { return Part{Text: text} }

func InlinePart(mimeType string, data []byte) Part { return Part{MIMEType: mimeType, Data: data} }

func (p Part) Inline() bool { return len(p.Data) > 0 }

// Client is the generative-AI boundary.
type Client interface {
	// Complete answers the last user message in history using contextParts as
	// the knowledge the model may draw on.
	Complete(ctx context.Context, history []Message, systemInstruction string, contextParts []Part) (string, error)
	// ExtractDocument transcribes a document to markdown.
	ExtractDocument(ctx context.Context, data []byte, mimeType string) (string, error)
}
