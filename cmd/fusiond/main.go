// Command fusiond composes sensor producers, the fusion engine, and
// output consumers into a running multi-sensor entity-fusion system.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/fusion.report/internal/config"
	"github.com/banshee-data/fusion.report/internal/logging"
	"github.com/banshee-data/fusion.report/internal/orchestrator"
	"github.com/banshee-data/fusion.report/internal/output"
	"github.com/banshee-data/fusion.report/internal/replay"
	"github.com/banshee-data/fusion.report/internal/sensors"
	"github.com/banshee-data/fusion.report/internal/track"
)

var (
	configPath = flag.String("config", "", "path to a tuning config JSON file (optional)")
	logLevel   = flag.String("log-level", "info", "debug, info, warning, or error")
	logFile    = flag.String("log-file", "", "write logs to this file instead of stderr")

	withSynthetic = flag.Bool("synthetic", true, "run the built-in synthetic sensor generator")

	gpsPort = flag.String("gps-port", "", "serial port for the GPS sensor producer (disabled if empty)")
	gpsBaud = flag.Int("gps-baud", 9600, "baud rate for the GPS serial port")

	radarPcap  = flag.String("radar-pcap", "", "pcap file to replay as a RADAR sensor producer (disabled if empty)")
	radarSpeed = flag.Float64("radar-speed", 1.0, "radar pcap replay speed factor")

	withCLI  = flag.Bool("cli", true, "run the CLI table visualizer output")
	pushAddr = flag.String("push-addr", "", "listen address for the WebSocket push server (disabled if empty)")

	recordTo = flag.String("record", "", "sqlite file to record the raw measurement stream to (disabled if empty)")
)

func main() {
	flag.Parse()

	level := parseLevel(*logLevel)
	sink := logging.New(os.Stderr, level)
	if *logFile != "" {
		if err := sink.SetLogFile(*logFile); err != nil {
			log.Fatalf("fusiond: %v", err)
		}
	}

	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		loaded, err := config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("fusiond: %v", err)
		}
		tuning = loaded
	}

	engine := track.NewEngine(sink)
	engine.SetStaleEntityTimeout(tuning.StaleTimeoutDuration(10 * time.Second))
	engine.SetOutputRateHz(tuning.OutputRateHzOrDefault(10.0))

	orch := orchestrator.New(engine, sink)

	var recordStore *replay.Store
	if *recordTo != "" {
		store, err := replay.Open(*recordTo)
		if err != nil {
			log.Fatalf("fusiond: %v", err)
		}
		recordStore = store
		defer recordStore.Close()
	}

	if *withSynthetic {
		tickInterval := 100 * time.Millisecond
		if tuning.SyntheticTickInterval != nil {
			if d, err := time.ParseDuration(*tuning.SyntheticTickInterval); err == nil {
				tickInterval = d
			}
		}
		noiseStdDev := 1.0
		if tuning.SyntheticPositionNoise != nil {
			noiseStdDev = *tuning.SyntheticPositionNoise
		}
		rateHz := float64(time.Second) / float64(tickInterval)

		gen := sensors.NewSynthetic(track.SensorGPS, rateHz, noiseStdDev)
		if tuning.SyntheticVelocityNoise != nil {
			gen.SetVelocityNoiseStdDev(*tuning.SyntheticVelocityNoise)
		}
		gen.AddEntity(sensors.EntityTrajectory{
			EntityID:        1,
			InitialPosition: track.Position{X: 0, Y: 0, Z: 0},
			Velocity:        track.Velocity{VX: 5, VY: 0, VZ: 0},
		})
		gen.AddEntity(sensors.EntityTrajectory{
			EntityID:        2,
			InitialPosition: track.Position{X: 100, Y: 50, Z: 0},
			Velocity:        track.Velocity{VX: -2, VY: 3, VZ: 0},
		})
		if tuning.SyntheticDropoutProb != nil {
			gen.SetDropoutProbability(*tuning.SyntheticDropoutProb)
		}
		orch.AddSensor(wrapWithRecorder(gen, recordStore))
	}

	gpsPortName := *gpsPort
	if gpsPortName == "" && tuning.SerialGPSPortName != nil {
		gpsPortName = *tuning.SerialGPSPortName
	}
	gpsBaudRate := *gpsBaud
	if *gpsBaud == 9600 && tuning.SerialGPSBaudRate != nil {
		gpsBaudRate = *tuning.SerialGPSBaudRate
	}
	if gpsPortName != "" {
		orch.AddSensor(wrapWithRecorder(sensors.NewSerialGPS(gpsPortName, gpsBaudRate, sink), recordStore))
	}

	if *radarPcap != "" {
		orch.AddSensor(wrapWithRecorder(sensors.NewUDPRadar(*radarPcap, *radarSpeed, sink), recordStore))
	}

	if *withCLI {
		orch.AddOutput(output.NewCLIVisualizer())
	}
	pushListenAddr := *pushAddr
	if pushListenAddr == "" && tuning.PushServerListenAddr != nil {
		pushListenAddr = *tuning.PushServerListenAddr
	}
	if pushListenAddr != "" {
		pushServer := output.NewPushServer(pushListenAddr, sink)
		if recordStore != nil {
			pushServer.SetReplayStore(recordStore)
		}
		orch.AddOutput(pushServer)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := orch.Start(); err != nil {
		log.Fatalf("fusiond: failed to start: %v", err)
	}

	<-ctx.Done()
	sink.Info("shutdown signal received")

	if err := orch.Stop(); err != nil {
		sink.Err("error during shutdown: %v", err)
	}
}

func parseLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.Debug
	case "warning":
		return logging.Warning
	case "error":
		return logging.Error
	default:
		return logging.Info
	}
}

// recordingSensor wraps a SensorProducer so every measurement it emits is
// also persisted to a replay store before reaching the engine.
type recordingSensor struct {
	orchestrator.SensorProducer
	store *replay.Store
}

func wrapWithRecorder(s orchestrator.SensorProducer, store *replay.Store) orchestrator.SensorProducer {
	if store == nil {
		return s
	}
	return &recordingSensor{SensorProducer: s, store: store}
}

func (r *recordingSensor) SetCallback(cb func(track.Measurement)) {
	r.SensorProducer.SetCallback(func(m track.Measurement) {
		if err := r.store.Record(m); err != nil {
			log.Printf("fusiond: failed to record measurement: %v", err)
		}
		cb(m)
	})
}
