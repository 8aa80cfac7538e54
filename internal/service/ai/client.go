package ai

import (
	"context"
	"errors"
)

// ErrUploadUnsupported is returned by providers without a file storage API.
var ErrUploadUnsupported = errors.New("provider does not support file uploads")

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Part is one piece of a turn: text, inline bytes or a reference to an uploaded file.
type Part struct {
	Text     string
	Data     []byte
	File     *FileRef
	MIMEType string
}

// TextPart wraps plain text.
func TextPart(text string) Part {
	return Part{Text: text}
}

// InlinePart attaches raw bytes with their content type.
func InlinePart(data []byte, mimeType string) Part {
	return Part{Data: data, MIMEType: mimeType}
}

// FilePart references a file previously stored with Client.Upload.
func FilePart(ref *FileRef) Part {
	return Part{File: ref, MIMEType: ref.MIMEType}
}

// Turn is a single message in a conversation history.
type Turn struct {
	Role  Role
	Parts []Part
}

// FileRef points at a file held by the remote service.
type FileRef struct {
	Name     string
	URI      string
	MIMEType string
}

// Conversation is an ongoing multi-turn exchange held by the remote service.
type Conversation interface {
	Send(ctx context.Context, message string) (string, error)
}

// Client is the remote audio-understanding service.
type Client interface {
	Upload(ctx context.Context, data []byte, mimeType string) (*FileRef, error)
	StartConversation(ctx context.Context, history []Turn) (Conversation, error)
	DeleteFile(ctx context.Context, ref *FileRef) error
}
