package metrics

const (
	CyclesStartedH   = "The total number of decision cycles started"
	CyclesStartedN   = "fieldctl_cycles_started"
	CyclesCompletedH = "The total number of decision cycles that reached transmission"
	CyclesCompletedN = "fieldctl_cycles_completed"

	SensorFaultsH = "The total number of failed sensor acquisitions"
	SensorFaultsN = "fieldctl_sensor_faults"
	SensorValueH  = "The last crisp sensor reading"
	SensorValueN  = "fieldctl_sensor_value"

	InferenceFaultsH = "The total number of failed inference passes"
	InferenceFaultsN = "fieldctl_inference_faults"
	NoRuleFiredH     = "The total number of inference passes in which no rule fired"
	NoRuleFiredN     = "fieldctl_no_rule_fired"
	OutputValueH     = "The last crisp output of the fuzzy engine"
	OutputValueN     = "fieldctl_output_value"

	ActuatorFaultsH = "The total number of failed actuator commands"
	ActuatorFaultsN = "fieldctl_actuator_faults"
	ActuatorStateH  = "The last commanded actuator state (1 = on)"
	ActuatorStateN  = "fieldctl_actuator_state"

	PredictionFaultsH = "The total number of failed advisory predictions"
	PredictionFaultsN = "fieldctl_prediction_faults"
	PredictionValueH  = "The last advisory prediction"
	PredictionValueN  = "fieldctl_prediction_value"

	TransmissionFaultsH = "The total number of telemetry messages dropped after a failed transmission"
	TransmissionFaultsN = "fieldctl_transmission_faults"
	TransmissionsH      = "The total number of telemetry messages transmitted"
	TransmissionsN      = "fieldctl_transmissions"
)
