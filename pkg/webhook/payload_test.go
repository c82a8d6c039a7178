package webhook

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInboundMessage_Body(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			"free text",
			`{"from":"5511","id":"wamid.1","type":"text","text":{"body":"hello"}}`,
			"hello",
		},
		{
			"template button reply",
			`{"from":"5511","id":"wamid.2","type":"button","button":{"text":"Confirm","payload":"confirm"}}`,
			"Confirm",
		},
		{
			"interactive button reply",
			`{"from":"5511","id":"wamid.3","type":"interactive","interactive":{"type":"button_reply","button_reply":{"id":"pricing","title":"Pricing"}}}`,
			"Pricing",
		},
		{
			"unsupported type",
			`{"from":"5511","id":"wamid.4","type":"sticker"}`,
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var message InboundMessage

			require.NoError(t, json.Unmarshal([]byte(tt.raw), &message))
			assert.Equal(t, tt.want, message.Body())
		})
	}
}

func TestStatus_ErrorDetail(t *testing.T) {
	t.Parallel()

	assert.Empty(t, (&Status{}).ErrorDetail())

	withMessage := &Status{Errors: []StatusError{{Code: 131026, Title: "Undeliverable", Message: "Message undeliverable"}}}
	assert.Equal(t, "Message undeliverable", withMessage.ErrorDetail())

	titleOnly := &Status{Errors: []StatusError{{Code: 131047, Title: "Re-engagement message"}}}
	assert.Equal(t, "Re-engagement message", titleOnly.ErrorDetail())
}

func TestIsOptOut(t *testing.T) {
	t.Parallel()

	tests := []struct {
		body string
		want bool
	}{
		{"stop", true},
		{"STOP", true},
		{"  StOp  ", true},
		{"s t o p", true},
		{"stop!", false},
		{"please stop", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, isOptOut(tt.body), "body %q", tt.body)
	}
}
