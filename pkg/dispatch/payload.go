// Package dispatch renders flow nodes and campaign templates into the
// provider wire format and records the outbound message lifecycle.
package dispatch

// Payload is the provider send request body.
type Payload struct {
	MessagingProduct string              `json:"messaging_product"`
	To               string              `json:"to"`
	Type             string              `json:"type"`
	Text             *TextPayload        `json:"text,omitempty"`
	Image            *MediaPayload       `json:"image,omitempty"`
	Video            *MediaPayload       `json:"video,omitempty"`
	Audio            *MediaPayload       `json:"audio,omitempty"`
	Document         *MediaPayload       `json:"document,omitempty"`
	Interactive      *InteractivePayload `json:"interactive,omitempty"`
	Template         *TemplatePayload    `json:"template,omitempty"`
}

type TextPayload struct {
	Body string `json:"body"`
}

type MediaPayload struct {
	ID       string `json:"id"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type InteractivePayload struct {
	Type   string            `json:"type"`
	Body   InteractiveBody   `json:"body"`
	Action InteractiveAction `json:"action"`
}

type InteractiveBody struct {
	Text string `json:"text"`
}

type InteractiveAction struct {
	Buttons []InteractiveButton `json:"buttons"`
}

type InteractiveButton struct {
	Type  string      `json:"type"`
	Reply ButtonReply `json:"reply"`
}

type ButtonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type TemplatePayload struct {
	Name       string              `json:"name"`
	Language   TemplateLanguage    `json:"language"`
	Components []TemplateComponent `json:"components,omitempty"`
}

type TemplateLanguage struct {
	Code string `json:"code"`
}

type TemplateComponent struct {
	Type       string              `json:"type"` // "header" or "body"
	Parameters []TemplateParameter `json:"parameters"`
}

type TemplateParameter struct {
	Type  string        `json:"type"` // "text" or "image"
	Text  string        `json:"text,omitempty"`
	Image *MediaPayload `json:"image,omitempty"`
}

func newPayload(to, kind string) *Payload {
	return &Payload{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             kind,
	}
}
