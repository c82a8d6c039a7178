// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrFlowNotFound indicates a flow was not found by the given identifier.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrRecipientNotFound indicates a recipient was not found.
	ErrRecipientNotFound = errors.New("recipient not found")

	// ErrMessageNotFound indicates a message was not found by id or wamid.
	ErrMessageNotFound = errors.New("message not found")

	// ErrCampaignNotFound indicates a campaign was not found.
	ErrCampaignNotFound = errors.New("campaign not found")

	// ErrRecipientAlreadyExists indicates a recipient with the same phone
	// already exists for the account.
	ErrRecipientAlreadyExists = errors.New("recipient already exists")
)

// FlowError wraps flow-related storage errors with operation context.
type FlowError struct {
	Op     string // Operation being performed (e.g. "GetByID", "Save", "Delete")
	FlowID string
	Err    error
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("%s operation failed for flow %s: %v", e.Op, e.FlowID, e.Err)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

func (e *FlowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewFlowError creates a new flow error with context.
func NewFlowError(op, flowID string, err error) *FlowError {
	return &FlowError{Op: op, FlowID: flowID, Err: err}
}

// CampaignError wraps campaign-related storage errors with operation context.
type CampaignError struct {
	Op         string
	CampaignID string
	Err        error
}

func (e *CampaignError) Error() string {
	return fmt.Sprintf("%s operation failed for campaign %s: %v", e.Op, e.CampaignID, e.Err)
}

func (e *CampaignError) Unwrap() error {
	return e.Err
}

func (e *CampaignError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewCampaignQueryError creates a campaign error for read operations.
func NewCampaignQueryError(campaignID string, err error) *CampaignError {
	return &CampaignError{Op: "Query", CampaignID: campaignID, Err: err}
}

// NewCampaignSaveError creates a campaign error for write operations.
func NewCampaignSaveError(campaignID string, err error) *CampaignError {
	return &CampaignError{Op: "Save", CampaignID: campaignID, Err: err}
}

// IsFlowNotFound checks if an error indicates a flow was not found.
func IsFlowNotFound(err error) bool {
	return errors.Is(err, ErrFlowNotFound)
}

// IsRecipientNotFound checks if an error indicates a recipient was not found.
func IsRecipientNotFound(err error) bool {
	return errors.Is(err, ErrRecipientNotFound)
}

// IsMessageNotFound checks if an error indicates a message was not found.
func IsMessageNotFound(err error) bool {
	return errors.Is(err, ErrMessageNotFound)
}

// IsCampaignNotFound checks if an error indicates a campaign was not found.
func IsCampaignNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound)
}
