package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// EinoClient adapts an eino chat model to Client. The model is stateless, so
// each conversation replays its full history on every turn. Audio is always
// sent inline as a data URL; eino has no file storage API.
type EinoClient struct {
	chatModel model.BaseChatModel
}

// NewEinoClient wraps chatModel.
func NewEinoClient(chatModel model.BaseChatModel) *EinoClient {
	return &EinoClient{chatModel: chatModel}
}

// Upload is not supported by eino chat models.
func (e *EinoClient) Upload(_ context.Context, _ []byte, _ string) (*FileRef, error) {
	return nil, ErrUploadUnsupported
}

// DeleteFile is a no-op; Upload never stores anything.
func (e *EinoClient) DeleteFile(_ context.Context, _ *FileRef) error {
	return nil
}

// StartConversation converts history to eino messages. No request is made
// until the first Send.
func (e *EinoClient) StartConversation(_ context.Context, history []Turn) (Conversation, error) {
	messages := make([]*schema.Message, 0, len(history)+2)
	for _, turn := range history {
		msg, err := toMessage(turn)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return &einoConversation{chatModel: e.chatModel, history: messages}, nil
}

type einoConversation struct {
	mu        sync.Mutex
	chatModel model.BaseChatModel
	history   []*schema.Message
}

func (c *einoConversation) Send(ctx context.Context, message string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	input := make([]*schema.Message, 0, len(c.history)+1)
	input = append(input, c.history...)
	input = append(input, schema.UserMessage(message))

	reply, err := c.chatModel.Generate(ctx, input)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if reply == nil {
		return "", fmt.Errorf("generate: empty response")
	}

	// History only grows on success so a failed turn can be retried.
	c.history = append(input, schema.AssistantMessage(reply.Content, nil))
	log.Printf("[eino] turn completed, history=%d length=%d", len(c.history), len(reply.Content))
	return reply.Content, nil
}

func toMessage(turn Turn) (*schema.Message, error) {
	if turn.Role == RoleModel {
		var text string
		for _, p := range turn.Parts {
			text += p.Text
		}
		return schema.AssistantMessage(text, nil), nil
	}

	parts := make([]schema.ChatMessagePart, 0, len(turn.Parts))
	for _, p := range turn.Parts {
		switch {
		case p.File != nil:
			return nil, fmt.Errorf("file references are not supported by eino models: %w", ErrUploadUnsupported)
		case p.Data != nil:
			parts = append(parts, schema.ChatMessagePart{
				Type: schema.ChatMessagePartTypeAudioURL,
				AudioURL: &schema.ChatMessageAudioURL{
					URL:      dataURL(p.Data, p.MIMEType),
					MIMEType: p.MIMEType,
				},
			})
		default:
			parts = append(parts, schema.ChatMessagePart{
				Type: schema.ChatMessagePartTypeText,
				Text: p.Text,
			})
		}
	}

	return &schema.Message{Role: schema.User, MultiContent: parts}, nil
}

func dataURL(data []byte, mimeType string) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
