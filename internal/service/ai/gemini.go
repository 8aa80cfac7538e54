package ai

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"sync"

	"google.golang.org/genai"

	"github.com/zhouzirui/claudio/internal/config"
)

// GeminiClient talks to the Gemini API through the genai SDK.
type GeminiClient struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

// NewGeminiClient creates a client for the configured Gemini model.
func NewGeminiClient(ctx context.Context, cfg config.AIConfig) (*GeminiClient, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.GeminiBaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.GeminiBaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		model:  cfg.GeminiModel,
		config: generateConfig(cfg),
	}, nil
}

func generateConfig(cfg config.AIConfig) *genai.GenerateContentConfig {
	if cfg.Temperature == nil && cfg.MaxTokens == nil {
		return nil
	}

	gc := &genai.GenerateContentConfig{}
	if cfg.Temperature != nil {
		gc.Temperature = genai.Ptr(float32(*cfg.Temperature))
	}
	if cfg.MaxTokens != nil {
		gc.MaxOutputTokens = int32(*cfg.MaxTokens)
	}
	return gc
}

// Upload stores data with the Files API.
func (g *GeminiClient) Upload(ctx context.Context, data []byte, mimeType string) (*FileRef, error) {
	file, err := g.client.Files.Upload(ctx, bytes.NewReader(data), &genai.UploadFileConfig{MIMEType: mimeType})
	if err != nil {
		return nil, fmt.Errorf("upload file: %w", err)
	}

	log.Printf("[gemini] uploaded file name=%s size=%d", file.Name, len(data))
	ref := &FileRef{Name: file.Name, URI: file.URI, MIMEType: file.MIMEType}
	if ref.MIMEType == "" {
		ref.MIMEType = mimeType
	}
	return ref, nil
}

// DeleteFile removes a file stored with Upload.
func (g *GeminiClient) DeleteFile(ctx context.Context, ref *FileRef) error {
	if ref == nil || ref.Name == "" {
		return nil
	}
	if _, err := g.client.Files.Delete(ctx, ref.Name, nil); err != nil {
		return fmt.Errorf("delete file %s: %w", ref.Name, err)
	}
	return nil
}

// StartConversation opens a chat seeded with history.
func (g *GeminiClient) StartConversation(ctx context.Context, history []Turn) (Conversation, error) {
	chat, err := g.client.Chats.Create(ctx, g.model, g.config, toContents(history))
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	return &geminiConversation{chat: chat}, nil
}

type geminiConversation struct {
	mu   sync.Mutex
	chat *genai.Chat
}

// Send appends a user turn. The chat keeps its history locally, so turns on
// one conversation are serialised.
func (c *geminiConversation) Send(ctx context.Context, message string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.chat.SendMessage(ctx, genai.Part{Text: message})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("send message: empty response")
	}
	return resp.Text(), nil
}

func toContents(history []Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		parts := make([]*genai.Part, 0, len(turn.Parts))
		for _, p := range turn.Parts {
			parts = append(parts, toPart(p))
		}

		role := genai.Role(genai.RoleUser)
		if turn.Role == RoleModel {
			role = genai.Role(genai.RoleModel)
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}
	return contents
}

func toPart(p Part) *genai.Part {
	switch {
	case p.File != nil:
		return genai.NewPartFromURI(p.File.URI, p.MIMEType)
	case p.Data != nil:
		return genai.NewPartFromBytes(p.Data, p.MIMEType)
	default:
		return genai.NewPartFromText(p.Text)
	}
}
