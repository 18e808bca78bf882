package gemini

import (
	"encoding/base64"
	"strings"

	"github.com/yungbote/course-assistant-backend/internal/domain/knowledge"
)

const SystemInstruction = `You are a virtual assistant for students, an expert at analysing and synthesising information precisely.

**Master rule:** your one and only source of truth is the "Knowledge Base" (text and images) provided to you. Do NOT use outside knowledge or make assumptions beyond what is explicitly available.

**Your task:** use the "Knowledge Base" to:
1.  **Answer questions:** reply to the user's doubts directly from the provided data, including visual information from the images when relevant.
2.  **Synthesise and summarise:** when asked, produce summaries or extract the main ideas of the content.
3.  **Explain and elaborate:** give detailed explanations of the concepts found in the text and images.

**Missing information:** if the question is about a topic the "Knowledge Base" does not cover, say clearly and kindly that you have no information on that specific topic. Do not guess or infer information that is not present.

--- KNOWLEDGE BASE START ---
(The text and image content is provided in the next turn of the history)
--- KNOWLEDGE BASE END ---

Now, applying these rules strictly, process and answer the user's request.`

const ExtractionInstruction = `You are an expert in information extraction and structuring.
Your task is to analyse the provided document (image, PDF, DOCX, etc.) and convert all of its text into well-structured Markdown.

**Instructions:**
1.  **Extract ALL text:** capture every word of the document.
2.  **Format as Markdown:** use headings (#, ##), lists (*, -), bold (**), italics (*), etc. to keep the structure and hierarchy of the original.
3.  **Tables:** format any tables as Markdown tables.
4.  **Coherence:** the result must be a single Markdown text that faithfully represents the document.
5.  **Do not summarise or omit:** the goal is a complete, formatted transcription.

Process the following document and return its content exclusively as Markdown.`

const (
	ContextAck = "Knowledge base received. I am ready to help."

	EmptyKnowledgeBase = "The knowledge base is empty. No information has been provided. " +
		"Tell the user about this situation and suggest that an administrator must upload the content."

	noContent = "No text content has been provided."
	noLinks   = "None"
)

// BuildContext renders the selected courses as the knowledge-base turn: one
// text part with a section per course, followed by each course image.
func BuildContext(records []*knowledge.CourseRecord) []Part {
	var (
		text   strings.Builder
		images []Part
	)
	for _, rec := range records {
		if rec == nil {
			continue
		}
		text.WriteString(courseSection(rec))
		text.WriteString("\n\n---\n\n")

		if img := rec.Image(); img != nil {
			data, err := base64.StdEncoding.DecodeString(stripDataURL(img.Base64))
			if err == nil && len(data) > 0 {
				images = append(images, InlinePart(img.Type, data))
			}
		}
	}

	body := text.String()
	if strings.TrimSpace(body) == "" {
		body = EmptyKnowledgeBase
	}
	return append([]Part{TextPart(body)}, images...)
}

func courseSection(rec *knowledge.CourseRecord) string {
	content := rec.Content
	if strings.TrimSpace(content) == "" {
		content = noContent
	}
	links := noLinks
	if l := rec.LinkList(); len(l) > 0 {
		links = strings.Join(l, "\n- ")
	}

	var b strings.Builder
	b.WriteString("## Course: ")
	b.WriteString(rec.Course)
	b.WriteString("\n\n**Main content:**\n```\n")
	b.WriteString(content)
	b.WriteString("\n```\n\n**Reference links:**\n- ")
	b.WriteString(links)
	return b.String()
}

// stripDataURL accepts both raw base64 and "data:<mime>;base64,<payload>".
func stripDataURL(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			return s[i+1:]
		}
	}
	return s
}
