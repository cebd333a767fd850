package rag

import "strings"

const emptyContextMarker = "(no context available)"

// BuildPrompt assembles the generation prompt from the question and the
// retrieved chunk texts, most similar first. With no retrieved chunks the
// context section carries an explicit placeholder so the model is told to
// answer from nothing rather than hallucinate.
func BuildPrompt(question string, contexts []string) string {
	var b strings.Builder
	b.WriteString("You are a helpful assistant that answers questions about a document.\n")
	b.WriteString("Use only the context below. If the context does not contain the answer, say the document does not cover it.\n")
	b.WriteString("Answer in the same language as the question.\n\n")
	b.WriteString("Context:\n")
	if len(contexts) == 0 {
		b.WriteString(emptyContextMarker)
		b.WriteString("\n")
	} else {
		for i, c := range contexts {
			if i > 0 {
				b.WriteString("\n---\n")
			}
			b.WriteString(strings.TrimSpace(c))
			b.WriteString("\n")
		}
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}
