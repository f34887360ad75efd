// Field irrigation and pesticide controller

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mmcloughlin/profile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"example.com/fieldctl/benchmark"

	"example.com/fieldctl/core/config"
	"example.com/fieldctl/core/control"
	"example.com/fieldctl/core/fuzzy"
	"example.com/fieldctl/core/predict"
	"example.com/fieldctl/core/readings"
	"example.com/fieldctl/core/rules"

	"example.com/fieldctl/driver/gpio"
	"example.com/fieldctl/driver/iio"
	"example.com/fieldctl/driver/ph"
	"example.com/fieldctl/driver/sim"
	"example.com/fieldctl/driver/soil"

	"example.com/fieldctl/net/telemetry"
)

const (
	unitCelsius = "°C"
	unitPercent = "%"
	unitPH      = "pH"
)

func initLogger(verbose bool) *zap.Logger {
	c := zap.NewDevelopmentConfig()
	c.DisableStacktrace = true
	c.EncoderConfig.EncodeCaller = func(
		caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		p := caller.TrimmedPath()
		if len(p) > 30 {
			p = "..." + p[len(p)-27:]
		}
		enc.AppendString(fmt.Sprintf("%30s", p))
	}
	if !verbose {
		c.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	log, err := c.Build()
	if err != nil {
		panic(err)
	}
	return log
}

// runMonitor serves /metrics until the listener fails. The failure is
// reported on errc and stop is called, so that the decision loop winds down
// through its regular shutdown.
func runMonitor(log *zap.Logger, addr string, errc chan<- error, stop context.CancelFunc) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	err := http.ListenAndServe(addr, mux)
	log.Error("failed to serve metrics, stopping", zap.String("address", addr), zap.Error(err))
	errc <- err
	stop()
}

func loadConfig(log *zap.Logger, configFile string) config.Config {
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal("failed to load configuration", zap.String("file", configFile), zap.Error(err))
	}
	return cfg
}

func newEngine(log *zap.Logger) *fuzzy.Config {
	engine, ws, err := rules.NewConfig()
	if err != nil {
		log.Fatal("invalid knowledge base", zap.Error(err))
	}
	for _, w := range ws {
		log.Warn("knowledge base", zap.String("variable", w.Variable), zap.String("term", w.Term),
			zap.String("reason", w.Reason))
	}
	return engine
}

func newSources(log *zap.Logger, s config.Sensors) ([]*readings.Source, []io.Closer) {
	if s.Driver == config.SensorDriverSim {
		values := map[string]float64{
			rules.Temperature:  s.SimTemperature,
			rules.Humidity:     s.SimHumidity,
			rules.SoilMoisture: s.SimSoilMoisture,
			rules.PHLevel:      s.SimPHLevel,
		}
		units := map[string]string{
			rules.Temperature:  unitCelsius,
			rules.Humidity:     unitPercent,
			rules.SoilMoisture: unitPercent,
			rules.PHLevel:      unitPH,
		}
		var srcs []*readings.Source
		for i, id := range rules.Inputs {
			srcs = append(srcs, readings.NewSource(id, units[id],
				sim.NewSensor(values[id], s.SimJitter, uint64(i+1))))
		}
		log.Info("using simulated sensors")
		return srcs, nil
	}

	var closers []io.Closer
	var soilSensor readings.Sensor
	switch s.SoilMode {
	case config.SoilModeDigital:
		probe, err := soil.NewGPIOProbe(s.SoilGPIOChip, s.SoilGPIOLine, s.SoilActiveLow)
		if err != nil {
			log.Fatal("failed to request soil moisture probe line",
				zap.String("chip", s.SoilGPIOChip), zap.Int("line", s.SoilGPIOLine), zap.Error(err))
		}
		closers = append(closers, probe)
		soilSensor = &soil.Digital{Probe: probe, DryPercent: s.SoilDryPercent, WetPercent: s.SoilWetPercent}
	case config.SoilModeADC:
		soilSensor = &soil.Analog{
			ADC:    iio.VoltageRaw(log, s.SoilADCDevice, s.SoilADCChannel),
			DryRaw: s.SoilADCDry,
			WetRaw: s.SoilADCWet,
		}
	}
	phSensor, err := ph.Open(log, s.PHPort, s.PHBaudRate, byte(s.PHSlave), uint16(s.PHRegister))
	if err != nil {
		log.Fatal("failed to open pH transmitter", zap.String("port", s.PHPort), zap.Error(err))
	}
	closers = append(closers, phSensor)
	return []*readings.Source{
		readings.NewSource(rules.Temperature, unitCelsius, iio.DHT11Temperature(log, s.DHTDevice)),
		readings.NewSource(rules.Humidity, unitPercent, iio.DHT11Humidity(log, s.DHTDevice)),
		readings.NewSource(rules.SoilMoisture, unitPercent, soilSensor),
		readings.NewSource(rules.PHLevel, unitPH, phSensor),
	}, closers
}

func newActuators(log *zap.Logger, a config.Actuators) control.Actuators {
	if a.Driver == config.ActuatorDriverSim {
		log.Info("using simulated actuators")
		return &sim.Actuators{Log: log}
	}
	acts, err := gpio.NewActuators(log, a.GPIOChip, a.WaterPumpLine, a.PesticideSprayLine, a.ActiveLow)
	if err != nil {
		log.Fatal("failed to request actuator lines", zap.String("chip", a.GPIOChip), zap.Error(err))
	}
	return acts
}

func newPredictor(log *zap.Logger, m config.Models) control.Predictor {
	h, err := predict.Load(map[string]string{
		predict.SoilMoisture: m.SoilMoisture,
		predict.PlantHealth:  m.PlantHealth,
	})
	if err != nil {
		log.Fatal("failed to load models", zap.Error(err))
	}
	if len(h.Models()) == 0 {
		return nil
	}
	log.Info("loaded advisory models", zap.Strings("models", h.Models()))
	return h
}

func newTransmitter(log *zap.Logger, t config.Telemetry, timeout config.Duration) (
	telemetry.Transmitter, io.Closer) {
	client := &http.Client{Timeout: timeout.D()}
	switch t.Backend {
	case config.BackendIoTHub:
		h, err := telemetry.NewIoTHub(t.ConnectionString, client)
		if err != nil {
			log.Fatal("invalid IoT Hub connection string", zap.Error(err))
		}
		log.Info("sending telemetry to IoT Hub",
			zap.String("host", h.Conn.HostName), zap.String("device", h.Conn.DeviceID))
		return h, nil
	case config.BackendHTTP:
		log.Info("sending telemetry to HTTP collector", zap.String("url", t.URL))
		return &telemetry.HTTPCollector{URL: t.URL, Client: client}, nil
	case config.BackendInfluxDB:
		x := telemetry.NewInflux(t.InfluxURL, t.InfluxToken, t.InfluxOrg, t.InfluxBucket, t.Measurement, nil)
		log.Info("writing telemetry to InfluxDB",
			zap.String("url", t.InfluxURL), zap.String("bucket", t.InfluxBucket))
		return x, x
	default:
		return nil, nil
	}
}

// newLoop acquires the actuators last, after every step that may still
// abort the process.
func newLoop(log *zap.Logger, cfg config.Config, reg prometheus.Registerer) *control.Loop {
	engine := newEngine(log)
	predictor := newPredictor(log, cfg.Models)
	srcs, closers := newSources(log, cfg.Sensors)
	tx, txCloser := newTransmitter(log, cfg.Telemetry, cfg.TransmitTimeout)
	if txCloser != nil {
		closers = append(closers, txCloser)
	}
	acts := newActuators(log, cfg.Actuators)
	return &control.Loop{
		Log:             log,
		Engine:          engine,
		Sources:         srcs,
		Actuators:       acts,
		Predictor:       predictor,
		Transmitter:     tx,
		Closers:         closers,
		Period:          cfg.Period.D(),
		SensorTimeout:   cfg.SensorTimeout.D(),
		PredictTimeout:  cfg.PredictTimeout.D(),
		TransmitTimeout: cfg.TransmitTimeout.D(),
		Threshold:       cfg.Threshold,
		Samples:         cfg.Samples,
		Registerer:      reg,
	}
}

// runLoop runs loop until ctx is canceled or the metrics listener fails.
// Either way Run returns through the actuator shutdown.
func runLoop(ctx context.Context, log *zap.Logger, loop *control.Loop, metricsAddr string) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	errc := make(chan error, 1)
	if metricsAddr != "" {
		go runMonitor(log, metricsAddr, errc, stop)
	}

	err := loop.Run(ctx)
	if err != nil {
		return err
	}
	select {
	case err = <-errc:
		return err
	default:
		return nil
	}
}

func runController(log *zap.Logger, configFile string) {
	cfg := loadConfig(log, configFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop := newLoop(log, cfg, prometheus.DefaultRegisterer)

	log.Info("starting decision loop",
		zap.Duration("period", cfg.Period.D()), zap.Float64("threshold", cfg.Threshold))
	err := runLoop(ctx, log, loop, cfg.MetricsAddr)
	if err != nil {
		log.Fatal("decision loop failed", zap.Error(err))
	}
}

// infer prints the crisp outputs, firing strengths and actuator decisions for
// one set of crisp inputs.
func infer(w io.Writer, engine *fuzzy.Config, crisp map[string]float64, threshold float64) error {
	in := engine.Fuzzify(crisp)
	for _, out := range engine.Outputs() {
		res, err := engine.Compute(out, in)
		var nrf *fuzzy.NoRuleFiredWarning
		if err != nil && !errors.As(err, &nrf) {
			return err
		}
		state := "OFF"
		if res.Value > threshold {
			state = "ON"
		}
		fmt.Fprintf(w, "%-16s %6.2f  strengths %v  fallback %t  -> %s\n",
			out, res.Value, res.Strengths, res.Fallback, state)
	}
	return nil
}

func runInfer(log *zap.Logger, crisp map[string]float64, threshold float64) {
	err := infer(os.Stdout, newEngine(log), crisp, threshold)
	if err != nil {
		log.Fatal("inference failed", zap.Error(err))
	}
}

func runBench(log *zap.Logger, numGoroutines, numPasses int, cpuProfile bool) {
	if cpuProfile {
		defer profile.Start(profile.CPUProfile).Stop()
	}
	benchmark.RunInferenceBenchmark(log, os.Stdout, newEngine(log), numGoroutines, numPasses)
}

func exitWithUsage() {
	fmt.Println("usage: fieldctl run -config <file> [-verbose]")
	fmt.Println("       fieldctl infer -temperature <°C> -humidity <%> -soil-moisture <%> -ph <pH> [-threshold <t>]")
	fmt.Println("       fieldctl bench [-goroutines <n>] [-passes <n>] [-profile]")
	os.Exit(1)
}

func main() {
	var (
		verbose       bool
		configFile    string
		temperature   float64
		humidity      float64
		soilMoisture  float64
		phLevel       float64
		threshold     float64
		numGoroutines int
		numPasses     int
		cpuProfile    bool
	)

	runFlags := flag.NewFlagSet("run", flag.ExitOnError)
	inferFlags := flag.NewFlagSet("infer", flag.ExitOnError)
	benchFlags := flag.NewFlagSet("bench", flag.ExitOnError)

	runFlags.BoolVar(&verbose, "verbose", false, "Verbose logging")
	runFlags.StringVar(&configFile, "config", "", "Config file")

	inferFlags.BoolVar(&verbose, "verbose", false, "Verbose logging")
	inferFlags.Float64Var(&temperature, "temperature", 0, "Temperature in °C")
	inferFlags.Float64Var(&humidity, "humidity", 0, "Relative humidity in %")
	inferFlags.Float64Var(&soilMoisture, "soil-moisture", 0, "Soil moisture in %")
	inferFlags.Float64Var(&phLevel, "ph", 7, "Soil pH")
	inferFlags.Float64Var(&threshold, "threshold", control.DefaultThreshold, "Actuation threshold")

	benchFlags.BoolVar(&verbose, "verbose", false, "Verbose logging")
	benchFlags.IntVar(&numGoroutines, "goroutines", 1, "Number of concurrent goroutines")
	benchFlags.IntVar(&numPasses, "passes", 100_000, "Number of inference passes per goroutine")
	benchFlags.BoolVar(&cpuProfile, "profile", false, "Write a CPU profile")

	if len(os.Args) < 2 {
		exitWithUsage()
	}

	switch os.Args[1] {
	case runFlags.Name():
		err := runFlags.Parse(os.Args[2:])
		if err != nil || runFlags.NArg() != 0 {
			exitWithUsage()
		}
		if configFile == "" {
			exitWithUsage()
		}
		runController(initLogger(verbose), configFile)
	case inferFlags.Name():
		err := inferFlags.Parse(os.Args[2:])
		if err != nil || inferFlags.NArg() != 0 {
			exitWithUsage()
		}
		runInfer(initLogger(verbose), map[string]float64{
			rules.Temperature:  temperature,
			rules.Humidity:     humidity,
			rules.SoilMoisture: soilMoisture,
			rules.PHLevel:      phLevel,
		}, threshold)
	case benchFlags.Name():
		err := benchFlags.Parse(os.Args[2:])
		if err != nil || benchFlags.NArg() != 0 {
			exitWithUsage()
		}
		if numGoroutines < 1 || numPasses < 1 {
			exitWithUsage()
		}
		runBench(initLogger(verbose), numGoroutines, numPasses, cpuProfile)
	default:
		exitWithUsage()
	}
}
