package sensors

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/banshee-data/fusion.report/internal/track"
)

// SerialGPSPort is the capability a serial port must offer; satisfied by
// the serial.Port returned by serial.Open and by a test double.
type SerialGPSPort interface {
	Read(p []byte) (int, error)
	Close() error
}

// SerialGPS is a GPS sensor producer reading comma-separated lines of the
// form "entityID,x,y,z,confidence" off a serial port, generalizing
// radar/serial.go's RadarPort to the SensorProducer capability set.
// Position-only: GPS never reports velocity.
type SerialGPS struct {
	portName string
	baudRate int

	openPort func(portName string, mode *serial.Mode) (SerialGPSPort, error)

	mu      sync.Mutex
	cb      func(track.Measurement)
	port    SerialGPSPort
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	logger  track.Logger
}

// NewSerialGPS returns a producer bound to portName at baudRate. logger
// may be nil.
func NewSerialGPS(portName string, baudRate int, logger track.Logger) *SerialGPS {
	if logger == nil {
		logger = track.NopLogger{}
	}
	return &SerialGPS{
		portName: portName,
		baudRate: baudRate,
		logger:   logger,
		openPort: func(portName string, mode *serial.Mode) (SerialGPSPort, error) {
			return serial.Open(portName, mode)
		},
	}
}

// Kind reports SensorGPS.
func (s *SerialGPS) Kind() track.SensorKind { return track.SensorGPS }

// SetCallback sets the measurement callback. Must be called before Start.
func (s *SerialGPS) SetCallback(cb func(track.Measurement)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb = cb
}

// Start opens the serial port and begins monitoring it on a dedicated
// goroutine. Idempotent.
func (s *SerialGPS) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	mode := &serial.Mode{BaudRate: s.baudRate}
	port, err := s.openPort(s.portName, mode)
	if err != nil {
		return fmt.Errorf("sensors: open serial port %s: %w", s.portName, err)
	}
	s.port = port

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go s.monitor(ctx)

	return nil
}

// Stop cancels the monitor loop, closes the port, and waits for the
// monitor goroutine to exit before returning. After Stop returns the
// callback is guaranteed not to fire again. Idempotent.
func (s *SerialGPS) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	port := s.port
	s.mu.Unlock()

	cancel()
	if port != nil {
		port.Close()
	}
	s.wg.Wait()
	return nil
}

func (s *SerialGPS) monitor(ctx context.Context) {
	defer s.wg.Done()

	s.mu.Lock()
	port := s.port
	s.mu.Unlock()

	scan := bufio.NewScanner(port)
	for scan.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		m, err := parseGPSLine(scan.Text())
		if err != nil {
			s.logger.Warn("serial gps: %v", err)
			continue
		}

		s.mu.Lock()
		cb := s.cb
		running := s.running
		s.mu.Unlock()
		if cb != nil && running {
			cb(m)
		}
	}
}

// parseGPSLine parses "entityID,x,y,z,confidence" into a position-only
// Measurement with a fixed isotropic position covariance.
func parseGPSLine(line string) (track.Measurement, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 5 {
		return track.Measurement{}, fmt.Errorf("expected 5 fields, got %d in %q", len(fields), line)
	}

	entityID, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return track.Measurement{}, fmt.Errorf("entity id: %w", err)
	}
	x, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return track.Measurement{}, fmt.Errorf("x: %w", err)
	}
	y, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return track.Measurement{}, fmt.Errorf("y: %w", err)
	}
	z, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return track.Measurement{}, fmt.Errorf("z: %w", err)
	}
	confidence, err := strconv.ParseFloat(fields[4], 64)
	if err != nil {
		return track.Measurement{}, fmt.Errorf("confidence: %w", err)
	}

	return track.Measurement{
		EntityID:           entityID,
		SensorKind:         track.SensorGPS,
		Timestamp:          time.Now(),
		Position:           track.Position{X: x, Y: y, Z: z},
		HasVelocity:        false,
		PositionCovariance: track.DiagCovariance3(4, 4, 4),
		Confidence:         confidence,
	}, nil
}
