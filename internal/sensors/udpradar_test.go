package sensors

import (
	"encoding/binary"
	"math"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/fusion.report/internal/track"
)

func writeTestRadarPacket(t *testing.T, w *pcapgo.Writer, entityID uint64, x, y, z, vx, vy, vz, confidence float64, ts time.Time) {
	payload := make([]byte, radarPayloadSize)
	binary.BigEndian.PutUint64(payload[0:8], entityID)
	vals := []float64{x, y, z, vx, vy, vz, confidence}
	for i, v := range vals {
		binary.BigEndian.PutUint64(payload[8+i*8:16+i*8], math.Float64bits(v))
	}

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
	}
	udp := &layers.UDP{SrcPort: 9000, DstPort: 9001}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)))

	require.NoError(t, w.WritePacket(gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(buf.Bytes()),
		Length:        len(buf.Bytes()),
	}, buf.Bytes()))
}

func TestUDPRadarReplaysRecordedPackets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "radar.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))

	base := time.Now()
	writeTestRadarPacket(t, w, 501, 1, 2, 3, 4, 5, 6, 0.8, base)
	writeTestRadarPacket(t, w, 501, 2, 2, 3, 4, 5, 6, 0.8, base.Add(5*time.Millisecond))
	require.NoError(t, f.Close())

	radar := NewUDPRadar(path, 100.0, nil) // fast-forward replay for the test

	var mu sync.Mutex
	var got []track.Measurement
	radar.SetCallback(func(m track.Measurement) {
		mu.Lock()
		got = append(got, m)
		mu.Unlock()
	})

	require.NoError(t, radar.Start())
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, radar.Stop())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, uint64(501), got[0].EntityID)
	require.True(t, got[0].HasVelocity)
	require.InDelta(t, 1.0, got[0].Position.X, 1e-9)
	require.InDelta(t, 4.0, got[0].Velocity.VX, 1e-9)
}
