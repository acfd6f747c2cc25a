package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookPayloadTextMessage(t *testing.T) {
	raw := `{
		"entry": [{
			"changes": [{
				"value": {
					"messages": [{
						"from": "972501234567",
						"type": "text",
						"text": {"body": "שלום"}
					}]
				}
			}]
		}]
	}`

	var payload webhookPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))

	msgs := payload.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "972501234567", msgs[0].From)
	assert.Equal(t, "text", msgs[0].Type)
	require.NotNil(t, msgs[0].Text)
	assert.Equal(t, "שלום", msgs[0].Text.Body)
}

func TestWebhookPayloadListReply(t *testing.T) {
	raw := `{
		"entry": [{
			"changes": [{
				"value": {
					"messages": [{
						"from": "972501234567",
						"type": "interactive",
						"interactive": {
							"type": "list_reply",
							"list_reply": {"id": "menu:pay", "title": "💳 הזמנה ותשלום"}
						}
					}]
				}
			}]
		}]
	}`

	var payload webhookPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))

	msgs := payload.messages()
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].Interactive)
	assert.Equal(t, "menu:pay", msgs[0].Interactive.replyID())
}

func TestWebhookPayloadButtonReply(t *testing.T) {
	reply := &interactiveReply{
		Type: "button_reply",
		ButtonReply: &struct {
			ID string `json:"id"`
		}{ID: "broken:form"},
	}
	assert.Equal(t, "broken:form", reply.replyID())
}

func TestWebhookPayloadStatusOnlyDelivery(t *testing.T) {
	// delivery receipts come through the same envelope with no messages
	raw := `{"entry": [{"changes": [{"value": {"statuses": [{"status": "delivered"}]}}]}]}`

	var payload webhookPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	assert.Empty(t, payload.messages())
}

func TestWebhookPayloadBatchedMessages(t *testing.T) {
	raw := `{
		"entry": [
			{"changes": [{"value": {"messages": [
				{"from": "1", "type": "text", "text": {"body": "a"}},
				{"from": "2", "type": "text", "text": {"body": "b"}}
			]}}]},
			{"changes": [{"value": {"messages": [
				{"from": "3", "type": "text", "text": {"body": "c"}}
			]}}]}
		]
	}`

	var payload webhookPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	assert.Len(t, payload.messages(), 3)
}

func TestInteractiveReplyWithoutSelection(t *testing.T) {
	reply := &interactiveReply{Type: "nfm_reply"}
	assert.Empty(t, reply.replyID())
}
