package listen

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/claudio/internal/model/audio"
	"github.com/zhouzirui/claudio/internal/service/ai"
	"github.com/zhouzirui/claudio/internal/service/session"
)

// InlineSizeLimit is the largest file sent inline; bigger files are uploaded first.
const InlineSizeLimit = 20 * 1024 * 1024

const deleteFileTimeout = 30 * time.Second

// Result is the outcome of a successful Listen.
type Result struct {
	Answer    string
	SessionID string
}

// Config tunes the service. Zero values fall back to defaults.
type Config struct {
	Preamble        ai.Preamble
	InlineSizeLimit int64
}

// Service starts and continues conversations about local audio files.
type Service struct {
	client      ai.Client
	sessions    *session.Registry
	preamble    ai.Preamble
	inlineLimit int64
	releases    sync.WaitGroup
}

// NewService wires the remote client and the session registry.
func NewService(client ai.Client, sessions *session.Registry, cfg Config) *Service {
	preamble := cfg.Preamble
	if preamble.Instruction == "" && preamble.Acknowledgment == "" {
		preamble = ai.DefaultPreamble
	}

	limit := cfg.InlineSizeLimit
	if limit <= 0 {
		limit = InlineSizeLimit
	}

	return &Service{
		client:      client,
		sessions:    sessions,
		preamble:    preamble,
		inlineLimit: limit,
	}
}

// Listen loads the audio at filePath, opens a primed conversation about it,
// asks question and stores the conversation as a new session.
func (s *Service) Listen(ctx context.Context, filePath, question string) (Result, error) {
	path, err := resolvePath(filePath)
	if err != nil {
		return Result{}, &Error{Kind: KindFileNotFound, Subject: filePath, Err: err}
	}
	if _, err := os.Stat(path); err != nil {
		return Result{}, &Error{Kind: KindFileNotFound, Subject: filePath, Err: err}
	}
	// The extension is taken from the symlink target, not the link name.
	if path, err = filepath.EvalSymlinks(path); err != nil {
		return Result{}, &Error{Kind: KindFileNotFound, Subject: filePath, Err: err}
	}

	mimeType, ok := audio.Resolve(path)
	if !ok {
		return Result{}, &Error{Kind: KindUnsupportedFormat, Subject: filePath}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, remoteError(fmt.Errorf("read audio file: %w", err))
	}

	var (
		part     ai.Part
		uploaded *ai.FileRef
	)
	if int64(len(data)) > s.inlineLimit {
		uploaded, err = s.client.Upload(ctx, data, mimeType)
		if err != nil {
			return Result{}, remoteError(err)
		}
		part = ai.FilePart(uploaded)
	} else {
		part = ai.InlinePart(data, mimeType)
	}

	conv, err := s.client.StartConversation(ctx, s.preamble.Turns(part))
	if err != nil {
		return Result{}, remoteError(err)
	}

	answer, err := conv.Send(ctx, question)
	if err != nil {
		return Result{}, remoteError(err)
	}

	stored := s.sessions.Insert(session.Session{
		Conversation: conv,
		UploadedFile: uploaded,
	})

	log.Printf("[listen] started session=%s file=%s mime=%s size=%d uploaded=%t", stored.ID, path, mimeType, len(data), uploaded != nil)
	return Result{Answer: answer, SessionID: stored.ID}, nil
}

// Ask sends a follow-up question on an existing session.
func (s *Service) Ask(ctx context.Context, sessionID, question string) (string, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return "", &Error{Kind: KindSessionNotFound, Subject: sessionID}
	}

	answer, err := sess.Conversation.Send(ctx, question)
	if err != nil {
		return "", remoteError(err)
	}

	log.Printf("[listen] follow-up on session=%s length=%d", sessionID, len(answer))
	return answer, nil
}

// SessionCount reports how many sessions are live.
func (s *Service) SessionCount() int {
	return s.sessions.Len()
}

// ReleaseSession deletes the remote copy of an evicted session's audio in
// the background, so the caller that triggered the eviction is not held up.
// It is meant to be installed as the registry's OnEvict hook.
func (s *Service) ReleaseSession(sess session.Session) {
	if sess.UploadedFile == nil {
		return
	}

	s.releases.Add(1)
	go func() {
		defer s.releases.Done()

		ctx, cancel := context.WithTimeout(context.Background(), deleteFileTimeout)
		defer cancel()

		if err := s.client.DeleteFile(ctx, sess.UploadedFile); err != nil {
			log.Printf("[listen] failed to delete uploaded file for session=%s: %v", sess.ID, err)
			return
		}
		log.Printf("[listen] deleted uploaded file %s of session=%s", sess.UploadedFile.Name, sess.ID)
	}()
}

// WaitReleases blocks until pending uploaded-file deletions finish.
func (s *Service) WaitReleases() {
	s.releases.Wait()
}

func resolvePath(filePath string) (string, error) {
	if filePath == "~" || strings.HasPrefix(filePath, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand home directory: %w", err)
		}
		filePath = filepath.Join(home, strings.TrimPrefix(filePath, "~"))
	}
	return filepath.Abs(filePath)
}
