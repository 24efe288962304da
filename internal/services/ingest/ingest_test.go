package ingest

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbernstein/lumenbridge-go/internal/metrics"
	"github.com/bbernstein/lumenbridge-go/pkg/artnet"
	"github.com/bbernstein/lumenbridge-go/pkg/sacn"
)

func sendTo(t *testing.T, addr net.Addr, payload []byte) {
	t.Helper()
	conn, err := net.Dial("udp4", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write(payload)
	require.NoError(t, err)
}

func waitFrame(t *testing.T, frames <-chan *Frame) *Frame {
	t.Helper()
	select {
	case f := <-frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func TestArtNetListenerDeliversFrames(t *testing.T) {
	frames := make(chan *Frame, 4)
	cfg := DefaultArtNetConfig()
	cfg.Port = 0 // ephemeral
	cfg.SampleRate = 0

	l := NewArtNetListener(cfg, func(f *Frame) { frames <- f }, metrics.NewNop())
	require.NoError(t, l.Start())
	defer l.Stop()

	channels := make([]byte, 512)
	channels[0] = 255
	channels[9] = 128
	sendTo(t, l.LocalAddr(), artnet.BuildDMXPacket(3, channels, 7))

	frame := waitFrame(t, frames)
	assert.Equal(t, ProtocolArtNet, frame.Protocol)
	assert.Equal(t, uint16(3), frame.Universe)
	assert.Equal(t, uint8(ArtNetPriority), frame.Priority)
	assert.Equal(t, uint8(7), frame.Sequence)
	assert.Equal(t, byte(255), frame.Data[0])
	assert.Equal(t, byte(128), frame.Data[9])
	assert.Contains(t, frame.SourceID, "artnet-")
	assert.Contains(t, frame.SourceID, "-u3")
}

func TestArtNetListenerDropsMalformed(t *testing.T) {
	frames := make(chan *Frame, 4)
	cfg := DefaultArtNetConfig()
	cfg.Port = 0
	cfg.SampleRate = 0

	l := NewArtNetListener(cfg, func(f *Frame) { frames <- f }, metrics.NewNop())
	require.NoError(t, l.Start())
	defer l.Stop()

	sendTo(t, l.LocalAddr(), []byte("not artnet at all"))
	// A valid packet afterwards still arrives, so the loop survived.
	sendTo(t, l.LocalAddr(), artnet.BuildDMXPacket(1, []byte{1, 2}, 0))

	frame := waitFrame(t, frames)
	assert.Equal(t, uint16(1), frame.Universe)
	select {
	case f := <-frames:
		t.Fatalf("unexpected extra frame: %+v", f)
	default:
	}
}

func TestSACNListenerDeliversFrames(t *testing.T) {
	frames := make(chan *Frame, 4)
	cfg := DefaultSACNConfig()
	cfg.Port = 0
	cfg.Multicast = false
	cfg.SampleRate = 0

	l, err := NewSACNListener(cfg, func(f *Frame) { frames <- f }, metrics.NewNop())
	require.NoError(t, err)
	require.NoError(t, l.Start())
	defer l.Stop()

	cid := [16]byte{0xde, 0xad, 0xbe, 0xef, 1, 2, 3, 4}
	data := make([]byte, 512)
	data[0] = 200
	sendTo(t, l.LocalAddr(), sacn.BuildDataPacket(7, 42, 150, "console", cid, data))

	frame := waitFrame(t, frames)
	assert.Equal(t, ProtocolSACN, frame.Protocol)
	assert.Equal(t, uint16(7), frame.Universe)
	assert.Equal(t, uint8(150), frame.Priority)
	assert.Equal(t, uint8(42), frame.Sequence)
	assert.Equal(t, byte(200), frame.Data[0])
	assert.Equal(t, "sacn-deadbeef01020304-u7", frame.SourceID)
}

func TestSACNListenerDropsPreview(t *testing.T) {
	frames := make(chan *Frame, 4)
	cfg := DefaultSACNConfig()
	cfg.Port = 0
	cfg.Multicast = false
	cfg.SampleRate = 0

	l, err := NewSACNListener(cfg, func(f *Frame) { frames <- f }, metrics.NewNop())
	require.NoError(t, err)
	require.NoError(t, l.Start())
	defer l.Stop()

	var cid [16]byte
	packet := sacn.BuildDataPacket(1, 0, 100, "viz", cid, make([]byte, 512))
	packet[112] |= 0x80 // preview flag
	sendTo(t, l.LocalAddr(), packet)

	// Follow with a live frame; only it should arrive.
	sendTo(t, l.LocalAddr(), sacn.BuildDataPacket(1, 1, 100, "live", cid, make([]byte, 512)))

	frame := waitFrame(t, frames)
	assert.Equal(t, uint8(1), frame.Sequence)
	select {
	case f := <-frames:
		t.Fatalf("preview frame leaked through: %+v", f)
	default:
	}
}

func TestSACNListenerDropsTerminated(t *testing.T) {
	frames := make(chan *Frame, 4)
	cfg := DefaultSACNConfig()
	cfg.Port = 0
	cfg.Multicast = false
	cfg.SampleRate = 0

	l, err := NewSACNListener(cfg, func(f *Frame) { frames <- f }, metrics.NewNop())
	require.NoError(t, err)
	require.NoError(t, l.Start())
	defer l.Stop()

	var cid [16]byte
	packet := sacn.BuildDataPacket(1, 0, 100, "console", cid, make([]byte, 512))
	packet[112] |= 0x40 // stream terminated flag
	sendTo(t, l.LocalAddr(), packet)

	// Follow with a live frame; only it should arrive.
	sendTo(t, l.LocalAddr(), sacn.BuildDataPacket(1, 1, 100, "console", cid, make([]byte, 512)))

	frame := waitFrame(t, frames)
	assert.Equal(t, uint8(1), frame.Sequence)
	select {
	case f := <-frames:
		t.Fatalf("terminated frame leaked through: %+v", f)
	default:
	}
}

func TestSourceIDFormats(t *testing.T) {
	assert.Equal(t, "artnet-10.0.0.5:6454-u2", artnetSourceID("10.0.0.5", 6454, 2))

	cid := [16]byte{0xab, 0xcd}
	assert.Equal(t, "sacn-abcd000000000000-u9", sacnSourceID(cid, 9))
}
