package transport

import (
	"context"
	"sync"

	"github.com/coder/websocket"
)

// MediaStream is one live media leg. The read loop decodes inbound frames
// into channels; write methods serialize outbound frames onto the socket.
//
// Audio and Marks are closed when the trunk hangs up, the socket fails or
// the stream context is cancelled. Write methods are safe for concurrent use.
type MediaStream struct {
	conn  *websocket.Conn
	ser   *Serializer
	start StartInfo

	audioCh chan []byte
	markCh  chan string

	writeMu sync.Mutex

	mu     sync.Mutex
	errVal error

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// newMediaStream wraps an accepted connection after the start frame has been
// read. The read loop is started by the caller via run.
func newMediaStream(ctx context.Context, conn *websocket.Conn, start StartInfo) *MediaStream {
	streamCtx, cancel := context.WithCancel(ctx)
	return &MediaStream{
		conn:    conn,
		ser:     NewSerializer(start.StreamID),
		start:   start,
		audioCh: make(chan []byte, 64),
		markCh:  make(chan string, 16),
		ctx:     streamCtx,
		cancel:  cancel,
	}
}

// Start returns the call metadata from the trunk's start frame.
func (m *MediaStream) Start() StartInfo {
	return m.start
}

// Audio returns the channel of decoded caller PCM chunks. Closed on hangup.
func (m *MediaStream) Audio() <-chan []byte {
	return m.audioCh
}

// Marks returns the channel of echoed playback checkpoints. Closed on hangup.
func (m *MediaStream) Marks() <-chan string {
	return m.markCh
}

// run reads frames until the trunk stops, the socket fails or ctx is done.
// It owns audioCh and markCh and closes both when it exits.
func (m *MediaStream) run() {
	defer m.closeChannels()

	for {
		_, data, err := m.conn.Read(m.ctx)
		if err != nil {
			if m.ctx.Err() != nil {
				return
			}
			m.setErr(err)
			return
		}

		frame, err := DecodeFrame(data)
		if err != nil {
			// Unknown or malformed frames are skipped; trunks add events over
			// time and none of them may abort a live call.
			continue
		}

		switch frame.Type {
		case FrameMedia:
			select {
			case m.audioCh <- frame.Audio:
			case <-m.ctx.Done():
				return
			}
		case FrameMark:
			select {
			case m.markCh <- frame.Mark:
			case <-m.ctx.Done():
				return
			}
		case FrameStop:
			return
		case FrameStart:
			// Duplicate start frames are ignored.
		}
	}
}

// SendAudio writes one PCM chunk to the trunk.
func (m *MediaStream) SendAudio(ctx context.Context, pcm []byte) error {
	data, err := m.ser.EncodeMedia(pcm)
	if err != nil {
		return err
	}
	return m.write(ctx, data)
}

// SendMark writes a playback checkpoint.
func (m *MediaStream) SendMark(ctx context.Context, name string) error {
	data, err := m.ser.EncodeMark(name)
	if err != nil {
		return err
	}
	return m.write(ctx, data)
}

// SendClear tells the trunk to drop buffered playback. Used on barge-in so
// the caller does not keep hearing queued bot speech.
func (m *MediaStream) SendClear(ctx context.Context) error {
	data, err := m.ser.EncodeClear()
	if err != nil {
		return err
	}
	return m.write(ctx, data)
}

func (m *MediaStream) write(ctx context.Context, data []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.conn.Write(ctx, websocket.MessageText, data)
}

// Err returns the first read error, if any. Nil after a clean stop frame.
func (m *MediaStream) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errVal
}

// Close tears the stream down. Idempotent.
func (m *MediaStream) Close(reason string) {
	m.cancel()
	m.conn.Close(websocket.StatusNormalClosure, reason)
}

func (m *MediaStream) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errVal == nil {
		m.errVal = err
	}
}

func (m *MediaStream) closeChannels() {
	m.closeOnce.Do(func() {
		close(m.audioCh)
		close(m.markCh)
	})
}
