// Package web provides the HTTP surface: webhook endpoints, flow CRUD and
// campaign sends.
package web

import (
	"github.com/zapflow/zapflow/pkg/campaign"
	"github.com/zapflow/zapflow/pkg/models"
)

// FlowRequest is the request body for creating or updating a flow.
type FlowRequest struct {
	Name     string             `json:"name"     validate:"required,min=3"`
	Triggers []string           `json:"triggers" validate:"required,min=1,dive,required"`
	Start    string             `json:"start"    validate:"required"`
	Nodes    []*models.FlowNode `json:"nodes"    validate:"required,min=1,dive"`
	Status   models.FlowStatus  `json:"status,omitempty" validate:"omitempty,oneof=active inactive disabled"`
}

// ToModel builds the flow model for the given account. ID is empty on create.
func (r *FlowRequest) ToModel(accountID, id string) *models.Flow {
	return &models.Flow{
		ID:        id,
		AccountID: accountID,
		Name:      r.Name,
		Triggers:  r.Triggers,
		Start:     r.Start,
		Nodes:     r.Nodes,
		Status:    r.Status,
	}
}

// CampaignSendRequest is the request body for a campaign batch send. When
// Schedule is set the campaign is stored and fired by the scheduler instead
// of running inline.
type CampaignSendRequest struct {
	Name          string              `json:"name"            validate:"required,min=3"`
	TemplateName  string              `json:"template_name"   validate:"required"`
	Language      string              `json:"language,omitempty"`
	PhoneNumberID string              `json:"phone_number_id" validate:"required"`
	RecipientIDs  []string            `json:"recipient_ids"   validate:"required,min=1,dive,required"`
	Variables     []campaign.Variable `json:"variables,omitempty" validate:"omitempty,dive"`
	Schedule      string              `json:"schedule,omitempty"`
}

// CampaignSendResponse is the synchronous batch result.
type CampaignSendResponse struct {
	CampaignID string                `json:"campaign_id"`
	Status     models.CampaignStatus `json:"status"`
	Outcomes   []campaign.Outcome    `json:"outcomes,omitempty"`
}
