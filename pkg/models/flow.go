// Package models defines the core domain models for flow-based chat automation.
package models

import "time"

// FlowStatus represents the lifecycle state of a flow.
type FlowStatus string

const (
	FlowStatusActive   FlowStatus = "active"   // Matched against inbound triggers
	FlowStatusInactive FlowStatus = "inactive" // Kept but never triggered
	FlowStatusDisabled FlowStatus = "disabled" // Administratively locked, rejects edits
)

// Flow represents a stored chatbot definition: trigger keywords plus a node graph.
type Flow struct {
	ID        string      `json:"id"`
	AccountID string      `json:"account_id" validate:"required"`
	Name      string      `json:"name"       validate:"required,min=3"`
	Triggers  []string    `json:"triggers"   validate:"required,min=1,dive,required"`
	Start     string      `json:"start"      validate:"required"` // entry node id
	Nodes     []*FlowNode `json:"nodes"      validate:"required,min=1"`
	Status    FlowStatus  `json:"status"     validate:"required"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Node returns the node with the given id, or nil if the graph has no such node.
func (f *Flow) Node(id string) *FlowNode {
	for _, n := range f.Nodes {
		if n.ID == id {
			return n
		}
	}

	return nil
}

// IsActive reports whether the flow participates in trigger matching.
func (f *Flow) IsActive() bool {
	return f.Status == FlowStatusActive
}
