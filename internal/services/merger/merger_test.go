package merger

import (
	"bytes"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bbernstein/lumenbridge-go/internal/metrics"
	"github.com/bbernstein/lumenbridge-go/internal/services/ingest"
)

func frame(source string, universe uint16, priority uint8, first byte) *ingest.Frame {
	f := &ingest.Frame{
		SourceID: source,
		Protocol: ingest.ProtocolSACN,
		Universe: universe,
		Priority: priority,
	}
	f.Data[0] = first
	return f
}

func newTestMerger(timeout time.Duration) (*Merger, *time.Time) {
	m := New(timeout, metrics.NewNop())
	now := time.Now()
	m.now = func() time.Time { return now }
	return m, &now
}

func TestSingleSourceWins(t *testing.T) {
	m, _ := newTestMerger(0)

	out, won := m.Ingest(frame("a", 1, 100, 10))
	assert.True(t, won)
	assert.Equal(t, byte(10), out.Data[0])

	winner, ok := m.Winner(1)
	assert.True(t, ok)
	assert.Equal(t, "a", winner)
}

func TestHigherPriorityPreempts(t *testing.T) {
	m, _ := newTestMerger(0)

	_, won := m.Ingest(frame("artnet-console", 1, ingest.ArtNetPriority, 1))
	assert.True(t, won)

	// sACN at default priority 100 beats Art-Net's fixed 50.
	_, won = m.Ingest(frame("sacn-desk", 1, 100, 2))
	assert.True(t, won)

	// Art-Net keeps sending but is absorbed.
	out, won := m.Ingest(frame("artnet-console", 1, ingest.ArtNetPriority, 3))
	assert.False(t, won)
	assert.Nil(t, out)
}

func TestEqualPriorityKeepsIncumbent(t *testing.T) {
	m, _ := newTestMerger(0)

	_, won := m.Ingest(frame("a", 1, 100, 1))
	assert.True(t, won)

	_, won = m.Ingest(frame("b", 1, 100, 2))
	assert.False(t, won, "equal priority must not steal the universe")

	_, won = m.Ingest(frame("a", 1, 100, 3))
	assert.True(t, won)
}

func TestWinnerTimeoutFailsOver(t *testing.T) {
	m, now := newTestMerger(2500 * time.Millisecond)

	_, won := m.Ingest(frame("primary", 1, 100, 1))
	assert.True(t, won)

	_, won = m.Ingest(frame("backup", 1, 50, 2))
	assert.False(t, won)

	// Primary goes silent past the data-loss timeout; backup's next frame
	// takes over.
	*now = now.Add(3 * time.Second)
	out, won := m.Ingest(frame("backup", 1, 50, 3))
	assert.True(t, won)
	assert.Equal(t, byte(3), out.Data[0])
	assert.Equal(t, 1, m.SourceCount(1))
}

func TestExpireStaleRemovesUniverse(t *testing.T) {
	m, now := newTestMerger(2500 * time.Millisecond)

	m.Ingest(frame("a", 1, 100, 1))
	m.Ingest(frame("b", 2, 100, 1))

	*now = now.Add(5 * time.Second)
	m.ExpireStale()

	_, ok := m.Winner(1)
	assert.False(t, ok)
	assert.Equal(t, 0, m.SourceCount(1))
	assert.Equal(t, 0, m.SourceCount(2))
}

func TestUniversesAreIndependent(t *testing.T) {
	m, _ := newTestMerger(0)

	_, won := m.Ingest(frame("a", 1, 200, 1))
	assert.True(t, won)

	// Low-priority source still wins its own universe.
	_, won = m.Ingest(frame("b", 2, 10, 2))
	assert.True(t, won)
}

func TestWinnerLogNamesProtocolAndSourceCount(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	m, _ := newTestMerger(0)
	m.Ingest(frame("artnet-console", 1, ingest.ArtNetPriority, 1))
	m.Ingest(frame("sacn-desk", 1, 100, 2))

	out := buf.String()
	assert.Contains(t, out, "winner: sacn-desk")
	assert.Contains(t, out, "sacn priority 100")
	assert.Contains(t, out, "2 source(s)")
}

func TestReturnedFrameIsCallers(t *testing.T) {
	m, _ := newTestMerger(0)

	sent := frame("a", 1, 100, 42)
	out, won := m.Ingest(sent)
	assert.True(t, won)
	assert.Same(t, sent, out)
}
