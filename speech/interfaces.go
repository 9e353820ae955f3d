package speech

import "context"

// VoiceSettings selects the synthesis model and voice.
type VoiceSettings struct {
	Model string // synthesis model identifier
	Voice string // voice identifier
}

// Synthesizer converts segment text to a decoded PCM buffer. Implementations
// must honor ctx for cooperative cancellation; a cancelled call returns
// ctx.Err() and its partial result is discarded by the caller.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice VoiceSettings) ([]byte, error)
}

// CredentialProvider is a narrow capability interface for looking up the
// active synthesis credential on demand.
type CredentialProvider interface {
	// APIKey returns the active credential and whether one is configured.
	APIKey() (string, bool)
}

// SegmentCache is an asynchronous byte-buffer key/value store keyed by the
// "{messageID}_part_{index}" scheme. Writes are idempotent; a reader sees
// either the old value or the fully written new one, never a partial write.
type SegmentCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, buf []byte) error
	Delete(ctx context.Context, key string) error
}

// Message is the view of a chat message the engine needs. SegmentCount and
// WordsPerSegment are zero until the first successful fetch pins them;
// Buffers is the in-memory mirror of the persisted cache and may be absent
// or partially populated.
type Message struct {
	ID              string
	Content         string
	SegmentCount    int
	WordsPerSegment int
	Buffers         [][]byte
}

// SegmentBuffer returns the mirrored buffer for index, or nil when the
// mirror has no entry for it.
func (m Message) SegmentBuffer(index int) []byte {
	if index < 0 || index >= len(m.Buffers) {
		return nil
	}
	return m.Buffers[index]
}

// SessionProvider exposes read access to the chat-session collaborator.
type SessionProvider interface {
	// Message returns the message with the given id, if it exists.
	Message(id string) (Message, bool)
}

// SessionMutator writes segment metadata and resolved buffers back through
// the session collaborator. SetSegmentBuffers replaces the whole mirror as
// one message-level update.
type SessionMutator interface {
	SetSegmentMeta(id string, count, wordsPerSegment int) error
	SetSegmentBuffer(id string, index int, buf []byte) error
	SetSegmentBuffers(id string, bufs [][]byte) error
	ClearSegmentData(id string) error
}

// SessionStore combines the session read and write boundaries.
type SessionStore interface {
	SessionProvider
	SessionMutator
}

// Notifier receives fire-and-forget user-visible notifications.
type Notifier interface {
	Info(msg string)
	Success(msg string)
	Error(msg string)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) Info(string)    {}
func (NopNotifier) Success(string) {}
func (NopNotifier) Error(string)   {}
