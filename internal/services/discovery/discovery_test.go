package discovery

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbernstein/lumenbridge-go/internal/metrics"
	"github.com/bbernstein/lumenbridge-go/internal/services/testutil"
	"github.com/bbernstein/lumenbridge-go/internal/store"
	"github.com/bbernstein/lumenbridge-go/pkg/lifx"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.GoveeListenPort = 0
	cfg.LIFXListenPort = 0
	cfg.Interval = time.Hour
	cfg.ResponseTimeout = 50 * time.Millisecond
	cfg.ManualProbes = false
	// Probes go nowhere on loopback; responses are injected directly.
	cfg.MulticastAddress = "127.0.0.1"
	cfg.LIFXBroadcast = "127.0.0.1"
	return cfg
}

func startService(t *testing.T, s *store.Store) *Service {
	t.Helper()
	svc := New(testConfig(), s, metrics.NewNop())
	require.NoError(t, svc.Start())
	t.Cleanup(svc.Stop)
	return svc
}

func deviceSocket(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestGoveeScanResponseRecordsDevice(t *testing.T) {
	s, _, cleanup := testutil.SetupTestStore(t)
	defer cleanup()
	svc := startService(t, s)

	fake := deviceSocket(t)
	response := `{"msg":{"cmd":"scan","data":{"ip":"127.0.0.1","device":"AA:BB:CC:DD:EE:FF","sku":"H6159","wifiVersionSoft":"1.02.11"}}}`
	_, err := fake.WriteToUDP([]byte(response), svc.GoveeAddr().(*net.UDPAddr))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		device, err := s.Device(context.Background(), "AA:BB:CC:DD:EE:FF")
		require.NoError(t, err)
		return device != nil
	}, 2*time.Second, 10*time.Millisecond)

	device, err := s.Device(context.Background(), "AA:BB:CC:DD:EE:FF")
	require.NoError(t, err)
	assert.Equal(t, "govee", device.Protocol)
	assert.Equal(t, 4003, device.Port)
	assert.Equal(t, "127.0.0.1", device.IP)
	require.NotNil(t, device.Model)
	assert.Equal(t, "H6159", *device.Model)
	require.NotNil(t, device.Firmware)
	assert.Equal(t, "1.02.11", *device.Firmware)
	assert.True(t, device.Discovered)
}

func TestLIFXStateServiceTriggersFollowUps(t *testing.T) {
	s, _, cleanup := testutil.SetupTestStore(t)
	defer cleanup()
	svc := startService(t, s)

	fake := deviceSocket(t)
	target, err := lifx.ParseTarget("d0:73:d5:01:02:03")
	require.NoError(t, err)

	// StateService: service 1 (UDP), port 56700.
	body := make([]byte, 5)
	body[0] = 1
	binary.LittleEndian.PutUint32(body[1:5], 56700)
	packet := append(lifx.EncodeHeader(lifx.Header{
		Size:   uint16(lifx.HeaderSize + len(body)),
		Target: target,
		Type:   lifx.MsgStateService,
	}), body...)
	_, err = fake.WriteToUDP(packet, svc.LIFXAddr().(*net.UDPAddr))
	require.NoError(t, err)

	// Device shows up.
	require.Eventually(t, func() bool {
		device, err := s.Device(context.Background(), "d0:73:d5:01:02:03")
		require.NoError(t, err)
		return device != nil && device.Protocol == "lifx" && device.Port == 56700
	}, 2*time.Second, 10*time.Millisecond)

	// Follow-up probes arrive at the fake device: version, firmware, label.
	wantTypes := map[uint16]bool{
		lifx.MsgGetVersion:      false,
		lifx.MsgGetHostFirmware: false,
		lifx.MsgGetLabel:        false,
	}
	fake.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 256)
	for i := 0; i < 3; i++ {
		n, _, err := fake.ReadFromUDP(buf)
		require.NoError(t, err)
		header, err := lifx.DecodeHeader(buf[:n])
		require.NoError(t, err)
		wantTypes[header.Type] = true
	}
	for msgType, seen := range wantTypes {
		assert.True(t, seen, "missing follow-up probe type %d", msgType)
	}

	// Reply with a label; it folds into the device record.
	label := make([]byte, 32)
	copy(label, "Desk Lamp")
	labelPacket := append(lifx.EncodeHeader(lifx.Header{
		Size:   uint16(lifx.HeaderSize + len(label)),
		Target: target,
		Type:   lifx.MsgStateLabel,
	}), label...)
	_, err = fake.WriteToUDP(labelPacket, svc.LIFXAddr().(*net.UDPAddr))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		device, err := s.Device(context.Background(), "d0:73:d5:01:02:03")
		require.NoError(t, err)
		return device != nil && device.Label != nil && *device.Label == "Desk Lamp"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDuplicateSuppressionWithinCycle(t *testing.T) {
	s, _, cleanup := testutil.SetupTestStore(t)
	defer cleanup()

	svc := New(testConfig(), s, metrics.NewNop())
	svc.beginEpoch()

	assert.False(t, svc.duplicate("dev-A", "10.0.0.1"))
	assert.True(t, svc.duplicate("dev-A", "10.0.0.1"))
	assert.False(t, svc.duplicate("dev-A", "10.0.0.2"), "same device from a new ip is not a duplicate")
	assert.False(t, svc.duplicate("dev-B", "10.0.0.1"))

	// New cycle resets suppression.
	svc.beginEpoch()
	assert.False(t, svc.duplicate("dev-A", "10.0.0.1"))
}

func TestLIFXSequenceAdvancesUnderConcurrentProbes(t *testing.T) {
	s, _, cleanup := testutil.SetupTestStore(t)
	defer cleanup()

	// Dry-run keeps the cycle loop from probing on its own, so every
	// sequence advance below is accounted for.
	cfg := testConfig()
	cfg.DryRun = true
	svc := New(cfg, s, metrics.NewNop())
	require.NoError(t, svc.Start())
	t.Cleanup(svc.Stop)
	svc.beginEpoch()

	target, err := lifx.ParseTarget("d0:73:d5:01:02:03")
	require.NoError(t, err)
	sink := deviceSocket(t)
	src := sink.LocalAddr().(*net.UDPAddr)

	// Follow-up probes from the read loop race GetService probes from the
	// cycle goroutine; the counter must stay consistent.
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				svc.followUp(fmt.Sprintf("dev-%d-%d", g, i), target, src)
			}
		}(g)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				svc.sendProbes(context.Background())
			}
		}()
	}
	wg.Wait()

	// Three numbers per follow-up, one per broadcast probe, none lost.
	assert.Equal(t, uint32(4*25*3+4*25), svc.lifxSeq.Load())
}

func TestMalformedResponsesIgnored(t *testing.T) {
	s, _, cleanup := testutil.SetupTestStore(t)
	defer cleanup()
	svc := startService(t, s)

	fake := deviceSocket(t)
	fake.WriteToUDP([]byte("not json"), svc.GoveeAddr().(*net.UDPAddr))
	fake.WriteToUDP([]byte("not lifx"), svc.LIFXAddr().(*net.UDPAddr))

	// A valid response afterwards still lands, so the loops survived.
	response := `{"msg":{"cmd":"scan","data":{"device":"11:22:33:44:55:66","sku":"H6008"}}}`
	fake.WriteToUDP([]byte(response), svc.GoveeAddr().(*net.UDPAddr))

	require.Eventually(t, func() bool {
		device, err := s.Device(context.Background(), "11:22:33:44:55:66")
		require.NoError(t, err)
		return device != nil
	}, 2*time.Second, 10*time.Millisecond)
}
