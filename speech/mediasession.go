package speech

import "time"

// NowPlaying is the metadata published to the OS media session.
type NowPlaying struct {
	Title string
	App   string
	State State
}

// MediaSession mirrors playback state to OS-level media controls. Hardware
// key events arrive through the handler set bound with Bind.
type MediaSession interface {
	Publish(NowPlaying)
	Bind(MediaControls)
	Close() error
}

// MediaControls are the callbacks a media session invokes for hardware or
// lock-screen key events.
type MediaControls struct {
	OnPlayPause func()
	OnStop      func()
	OnSeekBack  func()
	OnSeekFwd   func()
}

// NopMediaSession ignores all media-session traffic.
type NopMediaSession struct{}

func (NopMediaSession) Publish(NowPlaying) {}
func (NopMediaSession) Bind(MediaControls) {}
func (NopMediaSession) Close() error       { return nil }

// BindMediaControls wires a service's transport operations to a media
// session's hardware key events.
func BindMediaControls(s *Service, m MediaSession) {
	m.Bind(MediaControls{
		OnPlayPause: s.TogglePause,
		OnStop:      s.Stop,
		OnSeekBack:  func() { _ = s.SeekBy(-5 * time.Second) },
		OnSeekFwd:   func() { _ = s.SeekBy(5 * time.Second) },
	})
}
