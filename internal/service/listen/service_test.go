package listen_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/zhouzirui/claudio/internal/service/ai"
	"github.com/zhouzirui/claudio/internal/service/listen"
	"github.com/zhouzirui/claudio/internal/service/session"
)

type fakeClient struct {
	mu            sync.Mutex
	uploads       []int
	histories     [][]ai.Turn
	deleted       []string
	deleteGate    chan struct{}
	uploadErr     error
	startErr      error
	sendErr       error
	conversations int
}

func (f *fakeClient) Upload(_ context.Context, data []byte, mimeType string) (*ai.FileRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	f.uploads = append(f.uploads, len(data))
	name := fmt.Sprintf("files/%d", len(f.uploads))
	return &ai.FileRef{Name: name, URI: "https://files.test/" + name, MIMEType: mimeType}, nil
}

func (f *fakeClient) StartConversation(_ context.Context, history []ai.Turn) (ai.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.histories = append(f.histories, history)
	f.conversations++
	return &fakeConversation{client: f, tag: fmt.Sprintf("conv%d", f.conversations)}, nil
}

func (f *fakeClient) DeleteFile(_ context.Context, ref *ai.FileRef) error {
	if f.deleteGate != nil {
		<-f.deleteGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref.Name)
	return nil
}

func (f *fakeClient) remoteCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads) + len(f.histories)
}

type fakeConversation struct {
	client *fakeClient
	tag    string
	asked  []string
}

func (c *fakeConversation) Send(_ context.Context, message string) (string, error) {
	if c.client.sendErr != nil {
		return "", c.client.sendErr
	}
	c.asked = append(c.asked, message)
	return fmt.Sprintf("%s answer #%d to %s", c.tag, len(c.asked), message), nil
}

func newService(client *fakeClient) *listen.Service {
	return listen.NewService(client, session.NewRegistry(session.Config{}), listen.Config{})
}

func writeAudio(t *testing.T, name string, size int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create audio file: %v", err)
	}
	defer f.Close()
	if err := f.Truncate(size); err != nil {
		t.Fatalf("size audio file: %v", err)
	}
	return path
}

func TestListenFileNotFound(t *testing.T) {
	client := &fakeClient{}
	svc := newService(client)

	_, err := svc.Listen(context.Background(), "/definitely/missing/song.mp3", "what is this?")
	if !errors.Is(err, listen.ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}

	var lerr *listen.Error
	if !errors.As(err, &lerr) || lerr.Subject != "/definitely/missing/song.mp3" {
		t.Fatalf("expected subject to be the original path, got %+v", lerr)
	}
	if client.remoteCalls() != 0 {
		t.Fatal("expected no remote calls")
	}
}

func TestListenUnsupportedFormat(t *testing.T) {
	client := &fakeClient{}
	svc := newService(client)
	path := writeAudio(t, "notes.txt", 16)

	_, err := svc.Listen(context.Background(), path, "what is this?")
	if listen.KindOf(err) != listen.KindUnsupportedFormat {
		t.Fatalf("expected unsupported format, got %v", err)
	}
	if client.remoteCalls() != 0 {
		t.Fatal("expected no remote calls")
	}
}

func TestListenInlineAtLimit(t *testing.T) {
	client := &fakeClient{}
	svc := newService(client)
	path := writeAudio(t, "exact.WAV", listen.InlineSizeLimit)

	res, err := svc.Listen(context.Background(), path, "describe it")
	if err != nil {
		t.Fatalf("Listen err: %v", err)
	}
	if len(client.uploads) != 0 {
		t.Fatalf("expected no upload, got %v", client.uploads)
	}

	audioPart := client.histories[0][0].Parts[0]
	if audioPart.File != nil || len(audioPart.Data) != listen.InlineSizeLimit || audioPart.MIMEType != "audio/wav" {
		t.Fatalf("expected inline wav part, got file=%v size=%d mime=%s", audioPart.File, len(audioPart.Data), audioPart.MIMEType)
	}
	if res.Answer != "conv1 answer #1 to describe it" {
		t.Fatalf("unexpected answer: %s", res.Answer)
	}
	if len(res.SessionID) != 8 {
		t.Fatalf("unexpected session id: %q", res.SessionID)
	}
}

func TestListenUploadsAboveLimit(t *testing.T) {
	client := &fakeClient{}
	registry := session.NewRegistry(session.Config{})
	svc := listen.NewService(client, registry, listen.Config{})
	path := writeAudio(t, "long.flac", listen.InlineSizeLimit+1)

	res, err := svc.Listen(context.Background(), path, "describe it")
	if err != nil {
		t.Fatalf("Listen err: %v", err)
	}
	if len(client.uploads) != 1 || client.uploads[0] != listen.InlineSizeLimit+1 {
		t.Fatalf("expected one upload of the full file, got %v", client.uploads)
	}

	audioPart := client.histories[0][0].Parts[0]
	if audioPart.File == nil || audioPart.Data != nil || audioPart.MIMEType != "audio/flac" {
		t.Fatalf("expected file reference part, got %+v", audioPart)
	}

	sess, ok := registry.Get(res.SessionID)
	if !ok || sess.UploadedFile == nil || sess.UploadedFile.Name != "files/1" {
		t.Fatalf("expected uploaded file retained in session, got %+v", sess)
	}
}

func TestListenPrimesConversation(t *testing.T) {
	client := &fakeClient{}
	preamble := ai.Preamble{Instruction: "listen", Acknowledgment: "ok"}
	svc := listen.NewService(client, session.NewRegistry(session.Config{}), listen.Config{Preamble: preamble})
	path := writeAudio(t, "clip.mp3", 128)

	if _, err := svc.Listen(context.Background(), path, "q"); err != nil {
		t.Fatalf("Listen err: %v", err)
	}

	history := client.histories[0]
	if len(history) != 2 {
		t.Fatalf("expected two priming turns, got %d", len(history))
	}
	if history[0].Role != ai.RoleUser || history[0].Parts[1].Text != "listen" {
		t.Fatalf("unexpected user turn: %+v", history[0])
	}
	if history[1].Role != ai.RoleModel || history[1].Parts[0].Text != "ok" {
		t.Fatalf("unexpected model turn: %+v", history[1])
	}
}

func TestAskFollowUp(t *testing.T) {
	client := &fakeClient{}
	svc := newService(client)
	path := writeAudio(t, "clip.ogg", 64)
	ctx := context.Background()

	res, err := svc.Listen(ctx, path, "first")
	if err != nil {
		t.Fatalf("Listen err: %v", err)
	}

	answer, err := svc.Ask(ctx, res.SessionID, "second")
	if err != nil {
		t.Fatalf("Ask err: %v", err)
	}
	if answer != "conv1 answer #2 to second" {
		t.Fatalf("unexpected answer: %s", answer)
	}
}

func TestAskUnknownSession(t *testing.T) {
	client := &fakeClient{}
	svc := newService(client)

	_, err := svc.Ask(context.Background(), "deadbeef", "hello?")
	if !errors.Is(err, listen.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if client.remoteCalls() != 0 {
		t.Fatal("expected no remote calls")
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	client := &fakeClient{}
	svc := newService(client)
	ctx := context.Background()

	first, err := svc.Listen(ctx, writeAudio(t, "a.wav", 32), "a?")
	if err != nil {
		t.Fatalf("Listen err: %v", err)
	}
	second, err := svc.Listen(ctx, writeAudio(t, "b.wav", 32), "b?")
	if err != nil {
		t.Fatalf("Listen err: %v", err)
	}
	if first.SessionID == second.SessionID {
		t.Fatal("expected distinct session ids")
	}

	a, _ := svc.Ask(ctx, first.SessionID, "more")
	b, _ := svc.Ask(ctx, second.SessionID, "more")
	if a != "conv1 answer #2 to more" || b != "conv2 answer #2 to more" {
		t.Fatalf("sessions leaked into each other: %q / %q", a, b)
	}
	if svc.SessionCount() != 2 {
		t.Fatalf("expected 2 sessions, got %d", svc.SessionCount())
	}
}

func TestRemoteFailuresAreWrapped(t *testing.T) {
	boom := errors.New("quota exceeded")
	cases := map[string]struct {
		client *fakeClient
		size   int64
	}{
		"upload": {client: &fakeClient{uploadErr: boom}, size: listen.InlineSizeLimit + 1},
		"start":  {client: &fakeClient{startErr: boom}, size: 10},
		"send":   {client: &fakeClient{sendErr: boom}, size: 10},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc := newService(tc.client)
			_, err := svc.Listen(context.Background(), writeAudio(t, "x.m4a", tc.size), "q")
			if !errors.Is(err, listen.ErrRemote) || !errors.Is(err, boom) {
				t.Fatalf("expected wrapped remote error, got %v", err)
			}
			if svc.SessionCount() != 0 {
				t.Fatal("failed listen must not create a session")
			}
		})
	}
}

func TestReleaseSessionDeletesUploadedFile(t *testing.T) {
	client := &fakeClient{}
	svc := newService(client)

	svc.ReleaseSession(session.Session{ID: "inline"})
	svc.ReleaseSession(session.Session{ID: "big", UploadedFile: &ai.FileRef{Name: "files/9"}})
	svc.WaitReleases()

	if len(client.deleted) != 1 || client.deleted[0] != "files/9" {
		t.Fatalf("unexpected deletions: %v", client.deleted)
	}
}

func TestEvictionReleasesUploadedFile(t *testing.T) {
	client := &fakeClient{}
	var svc *listen.Service
	registry := session.NewRegistry(session.Config{
		MaxSessions: 1,
		OnEvict:     func(s session.Session) { svc.ReleaseSession(s) },
	})
	svc = listen.NewService(client, registry, listen.Config{InlineSizeLimit: 8})
	ctx := context.Background()

	first, err := svc.Listen(ctx, writeAudio(t, "big.wav", 9), "q")
	if err != nil {
		t.Fatalf("Listen err: %v", err)
	}
	if _, err := svc.Listen(ctx, writeAudio(t, "small.wav", 4), "q"); err != nil {
		t.Fatalf("Listen err: %v", err)
	}

	if _, err := svc.Ask(ctx, first.SessionID, "still there?"); !errors.Is(err, listen.ErrSessionNotFound) {
		t.Fatalf("expected evicted session to be gone, got %v", err)
	}
	svc.WaitReleases()
	if len(client.deleted) != 1 || client.deleted[0] != "files/1" {
		t.Fatalf("expected uploaded file deleted, got %v", client.deleted)
	}
}

func TestEvictionDoesNotBlockCaller(t *testing.T) {
	client := &fakeClient{deleteGate: make(chan struct{})}
	var svc *listen.Service
	registry := session.NewRegistry(session.Config{
		MaxSessions: 1,
		OnEvict:     func(s session.Session) { svc.ReleaseSession(s) },
	})
	svc = listen.NewService(client, registry, listen.Config{InlineSizeLimit: 8})
	ctx := context.Background()

	if _, err := svc.Listen(ctx, writeAudio(t, "big.wav", 9), "q"); err != nil {
		t.Fatalf("Listen err: %v", err)
	}

	small := writeAudio(t, "small.wav", 4)
	done := make(chan error, 1)
	go func() {
		_, err := svc.Listen(ctx, small, "q")
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Listen err: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Listen blocked on the remote delete of an evicted session")
	}

	close(client.deleteGate)
	svc.WaitReleases()

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.deleted) != 1 || client.deleted[0] != "files/1" {
		t.Fatalf("expected uploaded file deleted, got %v", client.deleted)
	}
}

func TestListenFollowsSymlinkForFormat(t *testing.T) {
	client := &fakeClient{}
	svc := newService(client)
	target := writeAudio(t, "song.mp3", 64)
	link := filepath.Join(t.TempDir(), "track")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if _, err := svc.Listen(context.Background(), link, "q"); err != nil {
		t.Fatalf("Listen err: %v", err)
	}
	if got := client.histories[0][0].Parts[0].MIMEType; got != "audio/mp3" {
		t.Fatalf("expected mime from link target, got %s", got)
	}
}

func TestListenRejectsDotfileWithoutExtension(t *testing.T) {
	client := &fakeClient{}
	svc := newService(client)
	path := writeAudio(t, ".wav", 64)

	_, err := svc.Listen(context.Background(), path, "q")
	if !errors.Is(err, listen.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
	if client.remoteCalls() != 0 {
		t.Fatal("expected no remote calls")
	}
}
