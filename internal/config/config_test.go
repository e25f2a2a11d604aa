package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/appliance-controller/internal/gpio"
	"github.com/thatsimonsguy/appliance-controller/internal/model"
)

func pin(n int) *gpio.Pin {
	return &gpio.Pin{Number: n, ActiveHigh: true}
}

func validConfig() Config {
	cfg := Defaults()
	cfg.Thermostat.Enabled = true
	cfg.Thermostat.SensorBus = "28-000005e2fdc3"
	cfg.Washer.Enabled = true
	cfg.GPIO = GPIO{
		Chip:         "gpiochip0",
		Compressor:   pin(17),
		Fan:          pin(27),
		InletValve:   pin(5),
		MotorPower:   pin(6),
		MotorReverse: pin(13),
		MotorSpin:    pin(19),
		DrainPump:    pin(26),
		LevelSwitch:  pin(21),
	}
	return cfg
}

func TestValidate_GPIOValid(t *testing.T) {
	cfg := validConfig()
	cfg.validate() // should not panic
}

func TestValidate_GPIO_Missing(t *testing.T) {
	cfg := validConfig()
	cfg.GPIO.DrainPump = nil

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic due to missing GPIO config, but got none")
		}
		assert.Contains(t, r, "gpio.drain_pump")
	}()

	cfg.validate()
}

func TestValidate_GPIO_Conflict(t *testing.T) {
	cfg := validConfig()
	cfg.GPIO.Fan = pin(17)

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic due to conflicting pin numbers, but got none")
		}
	}()

	cfg.validate()
}

func TestValidate_DisabledApplianceSkipsPins(t *testing.T) {
	cfg := validConfig()
	cfg.Washer.Enabled = false
	cfg.GPIO.InletValve = nil
	cfg.GPIO.MotorPower = nil
	cfg.GPIO.LevelSwitch = pin(17) // would conflict with the compressor if checked

	cfg.validate()
}

func TestValidate_Problems(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{
			name: "nothing enabled",
			modify: func(c *Config) {
				c.Thermostat.Enabled = false
				c.Washer.Enabled = false
			},
			want: "no appliance enabled",
		},
		{
			name:   "bad hysteresis",
			modify: func(c *Config) { c.Thermostat.LowerHysteresis = -1 },
			want:   "thermostat:",
		},
		{
			name:   "missing sensor bus",
			modify: func(c *Config) { c.Thermostat.SensorBus = "" },
			want:   "thermostat.sensor_bus",
		},
		{
			name:   "unknown default mode",
			modify: func(c *Config) { c.Washer.DefaultMode = "turbo" },
			want:   "washer:",
		},
		{
			name: "mqtt without broker",
			modify: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.Broker = ""
			},
			want: "mqtt.broker",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)

			defer func() {
				r := recover()
				require.NotNil(t, r)
				assert.Contains(t, r, tt.want)
			}()
			cfg.validate()
		})
	}
}

func TestDecodeOverridesDefaults(t *testing.T) {
	raw := `{
		"poll_interval_ms": 250,
		"safe_mode": true,
		"thermostat": {"enabled": true, "setpoint": 22.5, "min_dwell_seconds": 60, "sensor_bus": "28-abc"},
		"washer": {"enabled": true, "default_mode": "heavy", "inrush_delay_ms": 750},
		"gpio": {"compressor": {"pin": 17, "active_high": false}}
	}`

	cfg, err := Decode(strings.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval())
	assert.True(t, cfg.SafeMode)
	assert.Equal(t, 8080, cfg.APIPort)
	assert.Equal(t, "gpiochip0", cfg.GPIO.Chip)
	require.NotNil(t, cfg.GPIO.Compressor)
	assert.Equal(t, gpio.Pin{Number: 17, ActiveHigh: false}, *cfg.GPIO.Compressor)

	tc := cfg.Thermostat.ControllerConfig()
	assert.Equal(t, 22.5, tc.Setpoint)
	assert.Equal(t, time.Minute, tc.MinDwell)
	assert.True(t, tc.FirstCycleOverride)
	assert.Equal(t, 0.85, tc.UpperHysteresis)

	wc, err := cfg.Washer.SequencerConfig()
	require.NoError(t, err)
	assert.Equal(t, model.WashHeavy, wc.DefaultMode)
	assert.Equal(t, 750*time.Millisecond, wc.InrushDelay)
	assert.Equal(t, 3*time.Second, wc.SettleDelay)
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"zones": {}}`))
	assert.Error(t, err)
}

func TestDecodeFixesNonPositivePollInterval(t *testing.T) {
	cfg, err := Decode(strings.NewReader(`{"poll_interval_ms": 0}`))
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.PollInterval())
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLogLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, parseLogLevel("warn"))
	assert.Equal(t, zerolog.ErrorLevel, parseLogLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, parseLogLevel("verbose"))
}

func TestParseModeTableMergesOverBase(t *testing.T) {
	data := []byte(`
modes:
  heavy:
    rinse_soak_minutes: 15
    rinse_cycles: 3
`)
	base := model.DefaultModeTable()

	table, err := ParseModeTable(data, base)
	require.NoError(t, err)

	heavy := table[model.WashHeavy]
	assert.Equal(t, uint32(15), heavy.RinseSoakMinutes)
	assert.Equal(t, uint8(3), heavy.RinseCycles)
	assert.Equal(t, base[model.WashHeavy].WashAgitateMinutes, heavy.WashAgitateMinutes)
	assert.Equal(t, base[model.WashNormal], table[model.WashNormal])
	assert.NotEqual(t, base[model.WashHeavy], heavy, "base table must not be modified")
}

func TestParseModeTableUnknownMode(t *testing.T) {
	_, err := ParseModeTable([]byte("modes:\n  turbo:\n    rinse_cycles: 1\n"), model.DefaultModeTable())
	assert.Error(t, err)
}

func TestLoadModeTableFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("modes:\n  quick:\n    dry_spin_minutes: 2\n"), 0o644))

	cfg := Defaults()
	cfg.Washer.ModeTableFile = path

	wc, err := cfg.Washer.SequencerConfig()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), wc.Modes[model.WashQuick].DrySpinMinutes)

	cfg.Washer.ModeTableFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = cfg.Washer.SequencerConfig()
	assert.Error(t, err)
}
