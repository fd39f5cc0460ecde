package rag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/model"
)

const SystemPrompt = `You are a careful assistant that answers questions about the user's documents.
- Answer only from the facts and context provided. Do not use outside knowledge.
- Cite the page of every statement you make, e.g. [Page 3]. When several documents are given, name the document too.
- If the context does not contain the answer, say plainly that the documents do not cover it.
- Keep answers short and use the same language as the question.`

const conversationalPrompt = `You are a friendly assistant for questions about the user's documents.
Reply briefly and naturally to small talk. If asked what you can do, explain that you answer questions using the documents the user has uploaded, with page citations.`

// DocumentFacts are the structured facts of one document.
type DocumentFacts struct {
	DocumentName string
	Facts        model.StructuredFacts
}

type PromptInput struct {
	Query   string
	Intent  Intent
	Chunks  []model.Chunk
	Facts   []DocumentFacts
	History []model.Message
}

// AssemblePrompt builds the system instruction and the single user turn sent
// to the generator. The turn holds, in order: structured facts, retrieved
// context, recent conversation, and the question.
func AssemblePrompt(in PromptInput) *ai.GenerateRequest {
	system := SystemPrompt
	if in.Intent.IsConversational() {
		system = conversationalPrompt
	}
	var sb strings.Builder
	if facts := formatFacts(in.Facts); facts != "" {
		sb.WriteString("STRUCTURED FACTS:\n")
		sb.WriteString(facts)
		sb.WriteString("\n")
	}
	if ctxText := formatChunks(in.Chunks); ctxText != "" {
		sb.WriteString("CONTEXT:\n")
		sb.WriteString(ctxText)
		sb.WriteString("\n")
	}
	if hist := formatHistory(in.History); hist != "" {
		sb.WriteString("CONVERSATION SO FAR:\n")
		sb.WriteString(hist)
		sb.WriteString("\n")
	}
	sb.WriteString("QUESTION:\n")
	sb.WriteString(strings.TrimSpace(in.Query))
	return &ai.GenerateRequest{
		System:   system,
		Messages: []ai.ChatMessage{{Role: ai.RoleUser, Content: sb.String()}},
	}
}

func formatFacts(all []DocumentFacts) string {
	var sb strings.Builder
	labelled := len(all) > 1
	for _, df := range all {
		if len(df.Facts) == 0 {
			continue
		}
		if labelled {
			fmt.Fprintf(&sb, "## %s\n", df.DocumentName)
		}
		keys := make([]string, 0, len(df.Facts))
		for k := range df.Facts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "- %s: %s\n", k, df.Facts[k])
		}
	}
	return sb.String()
}

// formatChunks labels each chunk with its page. Chunks from more than one
// document are grouped under document headings, ordered by each document's
// best-ranked chunk.
func formatChunks(chunks []model.Chunk) string {
	if len(chunks) == 0 {
		return ""
	}
	order := make([]string, 0)
	groups := make(map[string][]model.Chunk)
	names := make(map[string]string)
	for _, c := range chunks {
		if _, ok := groups[c.DocumentID]; !ok {
			order = append(order, c.DocumentID)
			names[c.DocumentID] = c.DocumentName
		}
		groups[c.DocumentID] = append(groups[c.DocumentID], c)
	}
	var sb strings.Builder
	if len(order) == 1 {
		writeChunks(&sb, chunks)
		return sb.String()
	}
	for _, id := range order {
		name := names[id]
		if name == "" {
			name = id
		}
		fmt.Fprintf(&sb, "## Document: %s\n", name)
		writeChunks(&sb, groups[id])
	}
	return sb.String()
}

func writeChunks(sb *strings.Builder, chunks []model.Chunk) {
	for _, c := range chunks {
		fmt.Fprintf(sb, "[Page %d]\n%s\n\n", c.PageNumber, strings.TrimSpace(c.Content))
	}
}

func formatHistory(msgs []model.Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		role := "User"
		if m.Role == model.RoleAssistant {
			role = "Assistant"
		}
		fmt.Fprintf(&sb, "%s: %s\n", role, strings.TrimSpace(m.Content))
	}
	return sb.String()
}

// BuildSources turns the top chunks into citations, grouped by document in
// order of each document's best chunk.
func BuildSources(chunks []model.Chunk, max int) []model.Source {
	if max <= 0 || len(chunks) == 0 {
		return nil
	}
	top := chunks
	if len(top) > max {
		top = top[:max]
	}
	order := make([]string, 0)
	groups := make(map[string][]model.Source)
	for _, c := range top {
		if _, ok := groups[c.DocumentID]; !ok {
			order = append(order, c.DocumentID)
		}
		groups[c.DocumentID] = append(groups[c.DocumentID], model.Source{
			ChunkID:      c.ID,
			DocumentID:   c.DocumentID,
			DocumentName: c.DocumentName,
			PageNumber:   c.PageNumber,
			BoundingBox:  cloneChunk(c).BoundingBox,
			Snippet:      snippet(c.Content, snippetRunes),
			Score:        c.Score(),
		})
	}
	out := make([]model.Source, 0, len(top))
	for _, id := range order {
		out = append(out, groups[id]...)
	}
	return out
}

const snippetRunes = 240

func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "..."
}
