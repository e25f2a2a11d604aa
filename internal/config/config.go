package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/thatsimonsguy/appliance-controller/internal/controllers/thermostat"
	"github.com/thatsimonsguy/appliance-controller/internal/controllers/washer"
	"github.com/thatsimonsguy/appliance-controller/internal/datadog"
	"github.com/thatsimonsguy/appliance-controller/internal/gpio"
	"github.com/thatsimonsguy/appliance-controller/internal/logging"
	"github.com/thatsimonsguy/appliance-controller/internal/model"
	"github.com/thatsimonsguy/appliance-controller/internal/mqtt"
	"github.com/thatsimonsguy/appliance-controller/system/startup"
)

// GPIO lists every line the controller claims. The role tag names the
// appliance that needs the pin; pins of disabled appliances may be omitted.
type GPIO struct {
	Chip string `json:"chip"`

	Compressor *gpio.Pin `json:"compressor" role:"thermostat"`
	Fan        *gpio.Pin `json:"fan" role:"thermostat"`

	InletValve   *gpio.Pin `json:"inlet_valve" role:"washer"`
	MotorPower   *gpio.Pin `json:"motor_power" role:"washer"`
	MotorReverse *gpio.Pin `json:"motor_reverse" role:"washer"`
	MotorSpin    *gpio.Pin `json:"motor_spin" role:"washer"`
	DrainPump    *gpio.Pin `json:"drain_pump" role:"washer"`
	LevelSwitch  *gpio.Pin `json:"level_switch" role:"washer"`
}

type Thermostat struct {
	Enabled            bool    `json:"enabled"`
	Setpoint           float64 `json:"setpoint"`
	UpperHysteresis    float64 `json:"upper_hysteresis"`
	LowerHysteresis    float64 `json:"lower_hysteresis"`
	MinDwellSeconds    int     `json:"min_dwell_seconds"`
	FirstCycleOverride bool    `json:"first_cycle_override"`

	PlateauDelta           float64 `json:"plateau_delta"`
	PlateauDwellMultiplier float64 `json:"plateau_dwell_multiplier"`
	ReentryDwellMultiplier float64 `json:"reentry_dwell_multiplier"`
	ShutoffDwellMultiplier float64 `json:"shutoff_dwell_multiplier"`

	SetpointMin float64 `json:"setpoint_min"`
	SetpointMax float64 `json:"setpoint_max"`
	SensorMin   float64 `json:"sensor_min"`
	SensorMax   float64 `json:"sensor_max"`

	W1DevicesDir  string  `json:"w1_devices_dir"`
	SensorBus     string  `json:"sensor_bus"`
	SensorRetries int     `json:"sensor_retries"`
	SpikeMaxDelta float64 `json:"spike_max_delta"`
}

func (t Thermostat) ControllerConfig() thermostat.Config {
	return thermostat.Config{
		Setpoint:               t.Setpoint,
		UpperHysteresis:        t.UpperHysteresis,
		LowerHysteresis:        t.LowerHysteresis,
		MinDwell:               time.Duration(t.MinDwellSeconds) * time.Second,
		FirstCycleOverride:     t.FirstCycleOverride,
		PlateauDelta:           t.PlateauDelta,
		PlateauDwellMultiplier: t.PlateauDwellMultiplier,
		ReentryDwellMultiplier: t.ReentryDwellMultiplier,
		ShutoffDwellMultiplier: t.ShutoffDwellMultiplier,
		SetpointMin:            t.SetpointMin,
		SetpointMax:            t.SetpointMax,
		SensorMin:              t.SensorMin,
		SensorMax:              t.SensorMax,
	}
}

type Washer struct {
	Enabled       bool   `json:"enabled"`
	DefaultMode   string `json:"default_mode"`
	ModeTableFile string `json:"mode_table_file"`

	InrushDelayMs          int `json:"inrush_delay_ms"`
	SettleDelayMs          int `json:"settle_delay_ms"`
	AgitateReversalSeconds int `json:"agitate_reversal_seconds"`
	FillTimeoutSeconds     int `json:"fill_timeout_seconds"`
	DrainTimeoutSeconds    int `json:"drain_timeout_seconds"`
}

// SequencerConfig builds the washer configuration, reading the mode table file
// if one is configured.
func (w Washer) SequencerConfig() (washer.Config, error) {
	mode, err := model.ParseWashMode(w.DefaultMode)
	if err != nil {
		return washer.Config{}, err
	}

	modes := model.DefaultModeTable()
	if w.ModeTableFile != "" {
		modes, err = LoadModeTable(w.ModeTableFile, modes)
		if err != nil {
			return washer.Config{}, err
		}
	}

	return washer.Config{
		Modes:           modes,
		DefaultMode:     mode,
		InrushDelay:     time.Duration(w.InrushDelayMs) * time.Millisecond,
		SettleDelay:     time.Duration(w.SettleDelayMs) * time.Millisecond,
		AgitateReversal: time.Duration(w.AgitateReversalSeconds) * time.Second,
		FillTimeout:     time.Duration(w.FillTimeoutSeconds) * time.Second,
		DrainTimeout:    time.Duration(w.DrainTimeoutSeconds) * time.Second,
	}, nil
}

type Config struct {
	ConfigFile string        `json:"-"`
	DBFile     string        `json:"-"`
	LogLevel   zerolog.Level `json:"-"`

	PollIntervalMs int    `json:"poll_interval_ms"`
	APIPort        int    `json:"api_port"`
	SafeMode       bool   `json:"safe_mode"`
	NtfyServer     string `json:"ntfy_server"`
	NtfyTopic      string `json:"ntfy_topic"`

	Log        logging.Config `json:"log"`
	Datadog    datadog.Config `json:"datadog"`
	MQTT       mqtt.Config    `json:"mqtt"`
	Thermostat Thermostat     `json:"thermostat"`
	Washer     Washer         `json:"washer"`
	GPIO       GPIO           `json:"gpio"`
	System     startup.Config `json:"system"`
}

func (cfg Config) PollInterval() time.Duration {
	return time.Duration(cfg.PollIntervalMs) * time.Millisecond
}

// Defaults returns the configuration used for anything the file leaves out.
func Defaults() Config {
	tc := thermostat.DefaultConfig()
	wc := washer.DefaultConfig()

	return Config{
		PollIntervalMs: 1000,
		APIPort:        8080,
		Log:            logging.DefaultConfig(),
		Datadog: datadog.Config{
			AgentAddr: "127.0.0.1:8125",
			Namespace: "appliance.",
		},
		MQTT: mqtt.Config{
			ClientID:    "appliance-controller",
			TopicPrefix: "appliance",
		},
		Thermostat: Thermostat{
			Setpoint:               tc.Setpoint,
			UpperHysteresis:        tc.UpperHysteresis,
			LowerHysteresis:        tc.LowerHysteresis,
			MinDwellSeconds:        int(tc.MinDwell / time.Second),
			FirstCycleOverride:     tc.FirstCycleOverride,
			PlateauDelta:           tc.PlateauDelta,
			PlateauDwellMultiplier: tc.PlateauDwellMultiplier,
			ReentryDwellMultiplier: tc.ReentryDwellMultiplier,
			ShutoffDwellMultiplier: tc.ShutoffDwellMultiplier,
			SetpointMin:            tc.SetpointMin,
			SetpointMax:            tc.SetpointMax,
			SensorMin:              tc.SensorMin,
			SensorMax:              tc.SensorMax,
			W1DevicesDir:           "/sys/bus/w1/devices",
			SensorRetries:          3,
			SpikeMaxDelta:          3.0,
		},
		Washer: Washer{
			DefaultMode:            wc.DefaultMode.String(),
			InrushDelayMs:          int(wc.InrushDelay / time.Millisecond),
			SettleDelayMs:          int(wc.SettleDelay / time.Millisecond),
			AgitateReversalSeconds: int(wc.AgitateReversal / time.Second),
			FillTimeoutSeconds:     int(wc.FillTimeout / time.Second),
			DrainTimeoutSeconds:    int(wc.DrainTimeout / time.Second),
		},
		GPIO:   GPIO{Chip: "gpiochip0"},
		System: startup.DefaultConfig(),
	}
}

func Load() Config {
	var configFile, dbFile, logLevel string

	flag.StringVar(&dbFile, "db-file", "data/appliance.db", "Path to SQLite state database")
	flag.StringVar(&configFile, "config-file", "config.json", "Path to controller config file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	file, err := os.Open(configFile)
	if err != nil {
		panic("Failed to load config file: " + err.Error())
	}
	defer file.Close()

	cfg, err := Decode(file)
	if err != nil {
		panic("Failed to parse config file: " + err.Error())
	}
	cfg.ConfigFile = configFile
	cfg.DBFile = dbFile
	cfg.LogLevel = parseLogLevel(logLevel)

	cfg.validate()
	return cfg
}

// Decode reads a JSON config on top of Defaults.
func Decode(r io.Reader) (Config, error) {
	cfg := Defaults()
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.PollIntervalMs <= 0 {
		cfg.PollIntervalMs = 1000
	}
	return cfg, nil
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) validate() {
	var problems []string

	if !cfg.Thermostat.Enabled && !cfg.Washer.Enabled {
		problems = append(problems, "no appliance enabled")
	}
	if cfg.Thermostat.Enabled {
		if err := cfg.Thermostat.ControllerConfig().Validate(); err != nil {
			problems = append(problems, "thermostat: "+err.Error())
		}
		if cfg.Thermostat.SensorBus == "" {
			problems = append(problems, "thermostat.sensor_bus is required")
		}
	}
	if cfg.Washer.Enabled {
		wc, err := cfg.Washer.SequencerConfig()
		if err == nil {
			err = wc.Validate()
		}
		if err != nil {
			problems = append(problems, "washer: "+err.Error())
		}
	}
	if cfg.MQTT.Enabled && cfg.MQTT.Broker == "" {
		problems = append(problems, "mqtt.broker is required when mqtt is enabled")
	}

	if len(problems) > 0 {
		panic("Invalid config: " + strings.Join(problems, ", "))
	}

	cfg.validateGPIO()
}

func (cfg *Config) validateGPIO() {
	var (
		missingFields []string
		usedPins      = map[int]string{}
		conflicts     []string
	)

	enabled := map[string]bool{
		"thermostat": cfg.Thermostat.Enabled,
		"washer":     cfg.Washer.Enabled,
	}

	v := reflect.ValueOf(cfg.GPIO)
	t := reflect.TypeOf(cfg.GPIO)

	for i := 0; i < v.NumField(); i++ {
		role, ok := t.Field(i).Tag.Lookup("role")
		if !ok || !enabled[role] {
			continue
		}
		field := v.Field(i)
		fieldName := t.Field(i).Tag.Get("json")

		if field.IsNil() {
			missingFields = append(missingFields, "gpio."+fieldName)
			continue
		}

		pin := field.Interface().(*gpio.Pin).Number
		if other, exists := usedPins[pin]; exists {
			conflicts = append(conflicts, fmt.Sprintf("gpio.%s and gpio.%s both use pin %d", fieldName, other, pin))
		} else {
			usedPins[pin] = fieldName
		}
	}

	if len(missingFields) > 0 {
		panic("Missing required GPIO config fields: " + strings.Join(missingFields, ", "))
	}
	if len(conflicts) > 0 {
		panic("Conflicting GPIO pins: " + strings.Join(conflicts, ", "))
	}
}
