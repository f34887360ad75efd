package control

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"example.com/fieldctl/base/metrics"
)

type loopMetrics struct {
	cyclesStarted      prometheus.Counter
	cyclesCompleted    prometheus.Counter
	sensorFaults       *prometheus.CounterVec
	sensorValue        *prometheus.GaugeVec
	inferenceFaults    *prometheus.CounterVec
	noRuleFired        *prometheus.CounterVec
	outputValue        *prometheus.GaugeVec
	actuatorFaults     *prometheus.CounterVec
	actuatorState      *prometheus.GaugeVec
	predictionFaults   *prometheus.CounterVec
	predictionValue    *prometheus.GaugeVec
	transmissionFaults prometheus.Counter
	transmissions      prometheus.Counter
}

// newLoopMetrics registers the loop metrics with reg. A nil reg leaves them
// unregistered.
func newLoopMetrics(reg prometheus.Registerer) *loopMetrics {
	f := promauto.With(reg)
	return &loopMetrics{
		cyclesStarted: f.NewCounter(prometheus.CounterOpts{
			Name: metrics.CyclesStartedN,
			Help: metrics.CyclesStartedH,
		}),
		cyclesCompleted: f.NewCounter(prometheus.CounterOpts{
			Name: metrics.CyclesCompletedN,
			Help: metrics.CyclesCompletedH,
		}),
		sensorFaults: f.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.SensorFaultsN,
			Help: metrics.SensorFaultsH,
		}, []string{"sensor"}),
		sensorValue: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: metrics.SensorValueN,
			Help: metrics.SensorValueH,
		}, []string{"sensor"}),
		inferenceFaults: f.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.InferenceFaultsN,
			Help: metrics.InferenceFaultsH,
		}, []string{"output"}),
		noRuleFired: f.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.NoRuleFiredN,
			Help: metrics.NoRuleFiredH,
		}, []string{"output"}),
		outputValue: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: metrics.OutputValueN,
			Help: metrics.OutputValueH,
		}, []string{"output"}),
		actuatorFaults: f.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.ActuatorFaultsN,
			Help: metrics.ActuatorFaultsH,
		}, []string{"actuator"}),
		actuatorState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: metrics.ActuatorStateN,
			Help: metrics.ActuatorStateH,
		}, []string{"actuator"}),
		predictionFaults: f.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.PredictionFaultsN,
			Help: metrics.PredictionFaultsH,
		}, []string{"model"}),
		predictionValue: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: metrics.PredictionValueN,
			Help: metrics.PredictionValueH,
		}, []string{"model"}),
		transmissionFaults: f.NewCounter(prometheus.CounterOpts{
			Name: metrics.TransmissionFaultsN,
			Help: metrics.TransmissionFaultsH,
		}),
		transmissions: f.NewCounter(prometheus.CounterOpts{
			Name: metrics.TransmissionsN,
			Help: metrics.TransmissionsH,
		}),
	}
}
