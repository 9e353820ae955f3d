package speech

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dgnsrekt/talkback/speech/audio"
)

// ExportMessage concatenates every cached segment of a message in index
// order and writes the result as a WAV file. Export never triggers
// synthesis: a missing segment fails the whole export.
func (s *Service) ExportMessage(ctx context.Context, messageID string, w io.Writer) error {
	count, err := s.orch.SegmentCount(messageID)
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNoContent
	}

	var pcm []byte
	for i := 0; i < count; i++ {
		key := SegmentKey(messageID, i)
		buf, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("reading segment %s: %w", key, err)
		}
		if !ok {
			s.notify.Error(fmt.Sprintf("segment %d of %d is not cached, play the message first", i+1, count))
			return fmt.Errorf("%w: %s", ErrSegmentMissing, key)
		}
		pcm = append(pcm, buf...)
	}

	if err := WriteWAV(w, pcm); err != nil {
		return err
	}
	s.notify.Success(fmt.Sprintf("exported %d segments", count))
	return nil
}

// WriteWAV wraps raw PCM in a RIFF/WAVE container using the engine's fixed
// sample format.
func WriteWAV(w io.Writer, pcm []byte) error {
	var header [44]byte

	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+len(pcm)))
	copy(header[8:12], "WAVE")

	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], audio.Channels)
	binary.LittleEndian.PutUint32(header[24:28], audio.SampleRate)
	binary.LittleEndian.PutUint32(header[28:32], audio.BytesPerSecond)
	binary.LittleEndian.PutUint16(header[32:34], audio.BytesPerSample)
	binary.LittleEndian.PutUint16(header[34:36], audio.BitDepth)

	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(pcm)))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("writing wav header: %w", err)
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("writing wav data: %w", err)
	}
	return nil
}
