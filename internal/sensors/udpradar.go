package sensors

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/fusion.report/internal/track"
)

// radarPayloadSize is entityID (uint64) + x,y,z,vx,vy,vz,confidence
// (float64 each), big-endian.
const radarPayloadSize = 8 + 7*8

// UDPRadar is a RADAR sensor producer that replays recorded UDP sensor
// packets from a pcap file, generalizing the teacher's lidar UDP/pcap
// ingestion (internal/lidar/network, cmd/pcap-test) to an entity-
// measurement source. It uses pcapgo rather than pcap so it never
// depends on libpcap at build time.
//
// Packets are replayed at the rate their capture timestamps imply,
// scaled by SpeedFactor.
type UDPRadar struct {
	path        string
	speedFactor float64

	mu      sync.Mutex
	cb      func(track.Measurement)
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool

	logger track.Logger
}

// NewUDPRadar returns a producer that replays path at speedFactor real
// time (1.0 = captured rate). logger may be nil.
func NewUDPRadar(path string, speedFactor float64, logger track.Logger) *UDPRadar {
	if logger == nil {
		logger = track.NopLogger{}
	}
	if speedFactor <= 0 {
		speedFactor = 1.0
	}
	return &UDPRadar{path: path, speedFactor: speedFactor, logger: logger}
}

// Kind reports SensorRadar.
func (u *UDPRadar) Kind() track.SensorKind { return track.SensorRadar }

// SetCallback sets the measurement callback. Must be called before Start.
func (u *UDPRadar) SetCallback(cb func(track.Measurement)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.cb = cb
}

// Start opens the pcap file and begins replaying it on a dedicated
// goroutine. Idempotent.
func (u *UDPRadar) Start() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.running {
		return nil
	}

	f, err := os.Open(u.path)
	if err != nil {
		return fmt.Errorf("sensors: open pcap %s: %w", u.path, err)
	}

	reader, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("sensors: read pcap header %s: %w", u.path, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	u.cancel = cancel
	u.running = true

	u.wg.Add(1)
	go u.replay(ctx, f, reader)

	return nil
}

// Stop cancels the replay loop and waits for it to exit. Idempotent.
func (u *UDPRadar) Stop() error {
	u.mu.Lock()
	if !u.running {
		u.mu.Unlock()
		return nil
	}
	u.running = false
	cancel := u.cancel
	u.mu.Unlock()

	cancel()
	u.wg.Wait()
	return nil
}

func (u *UDPRadar) replay(ctx context.Context, f *os.File, reader *pcapgo.Reader) {
	defer u.wg.Done()
	defer f.Close()

	var lastCapture time.Time
	first := true

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		data, ci, err := reader.ReadPacketData()
		if err == io.EOF {
			return
		}
		if err != nil {
			u.logger.Warn("udp radar: read packet: %v", err)
			return
		}

		if !first {
			gap := ci.Timestamp.Sub(lastCapture)
			if gap > 0 {
				select {
				case <-time.After(time.Duration(float64(gap) / u.speedFactor)):
				case <-ctx.Done():
					return
				}
			}
		}
		first = false
		lastCapture = ci.Timestamp

		m, ok := u.parsePacket(data)
		if !ok {
			continue
		}

		u.mu.Lock()
		cb := u.cb
		running := u.running
		u.mu.Unlock()
		if cb != nil && running {
			cb(m)
		}
	}
}

func (u *UDPRadar) parsePacket(data []byte) (track.Measurement, bool) {
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.NoCopy)
	udpLayer := packet.Layer(layers.LayerTypeUDP)
	if udpLayer == nil {
		return track.Measurement{}, false
	}
	udp, ok := udpLayer.(*layers.UDP)
	if !ok {
		return track.Measurement{}, false
	}
	payload := udp.Payload
	if len(payload) < radarPayloadSize {
		u.logger.Warn("udp radar: short payload %d bytes", len(payload))
		return track.Measurement{}, false
	}

	entityID := binary.BigEndian.Uint64(payload[0:8])
	vals := make([]float64, 7)
	for i := 0; i < 7; i++ {
		bits := binary.BigEndian.Uint64(payload[8+i*8 : 16+i*8])
		vals[i] = math.Float64frombits(bits)
	}

	return track.Measurement{
		EntityID:           entityID,
		SensorKind:         track.SensorRadar,
		Timestamp:          time.Now(),
		Position:           track.Position{X: vals[0], Y: vals[1], Z: vals[2]},
		Velocity:           track.Velocity{VX: vals[3], VY: vals[4], VZ: vals[5]},
		HasVelocity:        true,
		PositionCovariance: track.DiagCovariance3(1, 1, 1),
		VelocityCovariance: track.DiagCovariance3(0.25, 0.25, 0.25),
		Confidence:         vals[6],
	}, true
}
