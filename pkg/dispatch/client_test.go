package dispatch_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zapflow/zapflow/pkg/dispatch"
)

func textPayload(to, body string) *dispatch.Payload {
	return &dispatch.Payload{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             &dispatch.TextPayload{Body: body},
	}
}

func TestGraphClient_Send(t *testing.T) {
	t.Parallel()

	var captured struct {
		path   string
		auth   string
		body   map[string]any
		called bool
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.called = true
		captured.path = r.URL.Path
		captured.auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured.body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.ABC123"}]}`))
	}))
	defer server.Close()

	client := dispatch.NewGraphClient(server.URL)
	payload := &dispatch.Payload{
		MessagingProduct: "whatsapp",
		To:               "5511999990000",
		Type:             "text",
		Text:             &dispatch.TextPayload{Body: "hello there"},
	}

	wamid, err := client.Send(context.Background(), "123456", "secret-token", payload)
	require.NoError(t, err)
	assert.Equal(t, "wamid.ABC123", wamid)

	require.True(t, captured.called)
	assert.Equal(t, "/123456/messages", captured.path)
	assert.Equal(t, "Bearer secret-token", captured.auth)
	assert.Equal(t, "whatsapp", captured.body["messaging_product"])
	assert.Equal(t, "5511999990000", captured.body["to"])
	assert.Equal(t, "text", captured.body["type"])
}

func TestGraphClient_Send_ProviderError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid OAuth access token","code":190}}`))
	}))
	defer server.Close()

	client := dispatch.NewGraphClient(server.URL)

	_, err := client.Send(context.Background(), "123456", "bad-token", textPayload("551199", "x"))
	require.Error(t, err)
	assert.True(t, dispatch.IsProviderSend(err))

	var providerErr *dispatch.ProviderError

	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, http.StatusUnauthorized, providerErr.StatusCode)
	assert.Equal(t, 190, providerErr.Code)
	assert.Contains(t, providerErr.Message, "Invalid OAuth")
}

func TestGraphClient_Send_EmptyResponse(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := dispatch.NewGraphClient(server.URL)

	_, err := client.Send(context.Background(), "123456", "token", textPayload("551199", "x"))
	require.Error(t, err)
	assert.True(t, dispatch.IsProviderSend(err))
}
