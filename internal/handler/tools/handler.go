package tools

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/zhouzirui/claudio/internal/model/audio"
	"github.com/zhouzirui/claudio/internal/service/listen"
)

const (
	ListenToolName = "listen_to_audio"
	AskToolName    = "ask_about_audio"

	remoteServiceName = "the remote audio-understanding service"
)

// AudioService is the subset of listen.Service used by the tools.
type AudioService interface {
	Listen(ctx context.Context, filePath, question string) (listen.Result, error)
	Ask(ctx context.Context, sessionID, question string) (string, error)
}

// Handler exposes the audio service as MCP tools. Every outcome, including
// failures, is returned as plain text; the tools never fail at protocol level.
type Handler struct {
	svc AudioService
}

// New creates a tool handler.
func New(svc AudioService) *Handler {
	return &Handler{svc: svc}
}

// Register adds both tools to s.
func (h *Handler) Register(s *server.MCPServer) {
	s.AddTool(listenTool(), h.handleListen)
	s.AddTool(askTool(), h.handleAsk)
}

func listenTool() mcp.Tool {
	return mcp.NewTool(ListenToolName,
		mcp.WithDescription("Start listening to an audio file and ask a question about it. "+
			"Returns an answer along with a session_id for follow-up questions."),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Path to a local audio file (mp3, wav, flac, etc.)"),
		),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description(`Your question about the audio (e.g., "Describe this music", "What instruments are playing?", "Transcribe the lyrics")`),
		),
	)
}

func askTool() mcp.Tool {
	return mcp.NewTool(AskToolName,
		mcp.WithDescription("Ask a follow-up question about audio from an existing session."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session ID from a previous listen_to_audio call"),
		),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("Your follow-up question about the audio"),
		),
	)
}

func (h *Handler) handleListen(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := h.ListenToAudio(ctx, req.GetString("file_path", ""), req.GetString("question", ""))
	return mcp.NewToolResultText(text), nil
}

func (h *Handler) handleAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := h.AskAboutAudio(ctx, req.GetString("session_id", ""), req.GetString("question", ""))
	return mcp.NewToolResultText(text), nil
}

// ListenToAudio runs listen_to_audio and renders its text output.
func (h *Handler) ListenToAudio(ctx context.Context, filePath, question string) (text string) {
	defer recoverAsText(ListenToolName, &text)

	res, err := h.svc.Listen(ctx, filePath, question)
	if err != nil {
		log.Printf("[mcp] %s failed: %v", ListenToolName, err)
		return formatError(err)
	}
	return fmt.Sprintf("%s\n\n---\nSession ID: %s\n(Use this ID with %s for follow-up questions)", res.Answer, res.SessionID, AskToolName)
}

// AskAboutAudio runs ask_about_audio and renders its text output.
func (h *Handler) AskAboutAudio(ctx context.Context, sessionID, question string) (text string) {
	defer recoverAsText(AskToolName, &text)

	answer, err := h.svc.Ask(ctx, sessionID, question)
	if err != nil {
		log.Printf("[mcp] %s failed: %v", AskToolName, err)
		return formatError(err)
	}
	return answer
}

func recoverAsText(tool string, text *string) {
	if r := recover(); r != nil {
		log.Printf("[mcp] %s panicked: %v", tool, r)
		*text = formatError(fmt.Errorf("%v", r))
	}
}

func formatError(err error) string {
	var lerr *listen.Error
	if !errors.As(err, &lerr) {
		return fmt.Sprintf("Error communicating with %s: %v", remoteServiceName, err)
	}

	switch lerr.Kind {
	case listen.KindFileNotFound:
		return "Error: File not found: " + lerr.Subject
	case listen.KindUnsupportedFormat:
		return "Error: Unsupported audio format. Supported formats: " + strings.Join(audio.SupportedExtensions(), ", ")
	case listen.KindSessionNotFound:
		return fmt.Sprintf("Error: Session '%s' not found. Use %s first to start a new session.", lerr.Subject, ListenToolName)
	default:
		detail := err
		if lerr.Err != nil {
			detail = lerr.Err
		}
		return fmt.Sprintf("Error communicating with %s: %v", remoteServiceName, detail)
	}
}
