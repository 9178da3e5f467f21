package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageResponseText(t *testing.T) {
	resp := &MessageResponse{
		Content: []ContentBlock{
			{Type: "text", Text: "{\"supplier_name\": "},
			{Type: "tool_use", Text: "ignored"},
			{Type: "text", Text: "\"SMA Solar\"}"},
		},
	}

	assert.Equal(t, `{"supplier_name": "SMA Solar"}`, resp.Text())
}

func TestMessageResponseTextEmpty(t *testing.T) {
	assert.Equal(t, "", (&MessageResponse{}).Text())
}

func TestToSDKMessages(t *testing.T) {
	msgs := toSDKMessages([]Message{
		{Role: "user", Content: "extract this"},
		{Role: "assistant", Content: "{}"},
		{Role: "", Content: "defaults to user"},
	})

	assert.Len(t, msgs, 3)
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "assistant", string(msgs[1].Role))
	assert.Equal(t, "user", string(msgs[2].Role))
}

func TestNewClientImplementsInterface(t *testing.T) {
	var _ Client = NewClient("test-key")
}
