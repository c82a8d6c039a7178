// Package campaign renders template bindings and drives batch sends.
package campaign

import (
	"fmt"

	"github.com/zapflow/zapflow/pkg/dispatch"
	"github.com/zapflow/zapflow/pkg/models"
)

// Variable is one template parameter binding. A literal Value (or MediaID for
// images) wins; otherwise the value is looked up on the recipient's
// attributes with Fallback covering absent or empty attributes.
type Variable struct {
	Component string `json:"component" validate:"required,oneof=header body"`
	Type      string `json:"type"      validate:"required,oneof=text image"`
	Value     string `json:"value,omitempty"`
	Attribute string `json:"attribute,omitempty"`
	Fallback  string `json:"fallback,omitempty"`
	MediaID   string `json:"media_id,omitempty"`
}

// renderTemplate resolves the variable bindings for one recipient into the
// provider template payload.
func renderTemplate(campaign *models.Campaign, recipient *models.Recipient, variables []Variable) (*dispatch.TemplatePayload, error) {
	language := campaign.Language
	if language == "" {
		language = "en"
	}

	template := &dispatch.TemplatePayload{
		Name:     campaign.TemplateName,
		Language: dispatch.TemplateLanguage{Code: language},
	}

	byComponent := map[string][]dispatch.TemplateParameter{}

	for _, variable := range variables {
		param, err := renderVariable(recipient, variable)
		if err != nil {
			return nil, err
		}

		byComponent[variable.Component] = append(byComponent[variable.Component], param)
	}

	// Header before body, matching the provider's component ordering.
	for _, component := range []string{"header", "body"} {
		params, ok := byComponent[component]
		if !ok {
			continue
		}

		template.Components = append(template.Components, dispatch.TemplateComponent{
			Type:       component,
			Parameters: params,
		})
	}

	return template, nil
}

func renderVariable(recipient *models.Recipient, variable Variable) (dispatch.TemplateParameter, error) {
	switch variable.Type {
	case "image":
		mediaID := variable.MediaID
		if mediaID == "" {
			mediaID = recipient.Attribute(variable.Attribute, variable.Fallback)
		}

		if mediaID == "" {
			return dispatch.TemplateParameter{}, fmt.Errorf("%s parameter: %w", variable.Component, dispatch.ErrMissingMedia)
		}

		return dispatch.TemplateParameter{
			Type:  "image",
			Image: &dispatch.MediaPayload{ID: mediaID},
		}, nil

	default:
		value := variable.Value
		if value == "" {
			value = recipient.Attribute(variable.Attribute, variable.Fallback)
		}

		return dispatch.TemplateParameter{Type: "text", Text: value}, nil
	}
}
