// Package assemble builds the bounded prompt context for one compare
// request. Assembly is deterministic for a given input snapshot: the
// same thread state, document and instruction always produce the same
// ordered segments.
package assemble

import (
	"fmt"

	"github.com/lumenhq/lumen/internal/provider"
)

// Mode selects the assembly shape.
type Mode string

const (
	// ModeEdit includes the current document snapshot so providers
	// propose a revision of it.
	ModeEdit Mode = "edit"
	// ModeQA answers questions without ever exposing document content
	// as an editable draft.
	ModeQA Mode = "qa"
)

// Segment is one labeled, ordered part of the assembled context.
type Segment struct {
	Label   string
	Role    string
	Content string
}

// PromptContext is the fully assembled, immutable context snapshot
// handed to the fan-out coordinator.
type PromptContext struct {
	Mode     Mode
	Segments []Segment
}

// Messages renders the segments as provider messages in order.
// Labeled segments carry their label as a heading so providers can
// tell history from document from retrieved material.
func (p PromptContext) Messages() []provider.Message {
	msgs := make([]provider.Message, 0, len(p.Segments))
	for _, seg := range p.Segments {
		content := seg.Content
		if seg.Label != "" && seg.Role != "user" {
			content = fmt.Sprintf("## %s\n\n%s", seg.Label, seg.Content)
		}
		msgs = append(msgs, provider.Message{Role: seg.Role, Content: content})
	}
	return msgs
}

const editPreamble = `You are a careful writing assistant. Using the conversation, the current document and any attached material, produce a complete revised draft of the document that fulfils the user's instruction. Return only the draft text.`

const qaPreamble = `You are a careful assistant. Answer the user's question using the conversation and any attached material. Do not produce a document draft.`

// preambleFor returns the default system preamble for a mode.
func preambleFor(mode Mode) string {
	if mode == ModeQA {
		return qaPreamble
	}
	return editPreamble
}
