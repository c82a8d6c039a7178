// Package models defines flow node models for graph execution.
package models

// NodeKind discriminates the payload variant of a flow node.
type NodeKind string

const (
	NodeKindMessage     NodeKind = "message"      // Text, optionally with reply buttons
	NodeKindImage       NodeKind = "image"        // Media reference with optional caption
	NodeKindVideo       NodeKind = "video"        // Media reference with optional caption
	NodeKindAudio       NodeKind = "audio"        // Media reference, no caption on the wire
	NodeKindDocument    NodeKind = "document"     // Media reference with caption and filename
	NodeKindConnectFlow NodeKind = "connect_flow" // Jump to another flow's entry node
)

// MediaRef points at a previously uploaded media asset on the provider side.
type MediaRef struct {
	ID       string `json:"id"                 validate:"required"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// Button is a reply button on a message node. Each button carries its own
// edge target; a reply exactly matching Label advances to Next.
type Button struct {
	Label string `json:"label" validate:"required"`
	Next  string `json:"next"  validate:"required"`
}

// FlowNode represents one step of a flow. Kind selects which payload fields
// are meaningful; handling is exhaustive over NodeKind in the engine and the
// dispatch adapter.
type FlowNode struct {
	ID           string    `json:"id"   validate:"required"`
	Kind         NodeKind  `json:"kind" validate:"required"`
	Text         string    `json:"text,omitempty"`
	Media        *MediaRef `json:"media,omitempty"`
	Buttons      []Button  `json:"buttons,omitempty"`
	Next         *string   `json:"next,omitempty"` // default edge; nil and no buttons = terminal
	TargetFlowID string    `json:"target_flow_id,omitempty"`
}

// IsBranching reports whether the node routes by reply-button label.
func (n *FlowNode) IsBranching() bool {
	return n.Kind == NodeKindMessage && len(n.Buttons) > 0
}

// IsTerminal reports whether executing the node ends the conversation.
func (n *FlowNode) IsTerminal() bool {
	return n.Next == nil && len(n.Buttons) == 0 && n.Kind != NodeKindConnectFlow
}

// ButtonTarget returns the edge target for a reply label, if any button matches.
func (n *FlowNode) ButtonTarget(label string) (string, bool) {
	for _, b := range n.Buttons {
		if b.Label == label {
			return b.Next, true
		}
	}

	return "", false
}
