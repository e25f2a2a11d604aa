// Package temperature reads DS18B20 sensors on the 1-wire bus and filters out
// the spikes those sensors produce on long cable runs.
package temperature

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrBadCRC = errors.New("1-wire CRC check failed")

// W1Sensor is one sensor under /sys/bus/w1/devices.
type W1Sensor struct {
	Path       string
	Retries    int
	RetryDelay time.Duration
}

func NewW1Sensor(devicesDir, bus string, retries int) *W1Sensor {
	return &W1Sensor{
		Path:       filepath.Join(devicesDir, bus),
		Retries:    retries,
		RetryDelay: 2 * time.Second,
	}
}

// ReadCelsius reads the sensor, retrying failed reads.
func (s *W1Sensor) ReadCelsius() (float64, error) {
	var err error
	for attempt := 0; attempt <= s.Retries; attempt++ {
		if attempt > 0 {
			time.Sleep(s.RetryDelay)
		}
		var temp float64
		temp, err = ReadSensorTemp(s.Path)
		if err == nil {
			return temp, nil
		}
		log.Debug().Err(err).Int("attempt", attempt+1).Str("path", s.Path).Msg("Sensor read failed")
	}
	return 0, fmt.Errorf("read %s after %d attempts: %w", s.Path, s.Retries+1, err)
}

// ReadSensorTemp parses the w1_slave file of a sensor and returns °C.
var ReadSensorTemp = func(sensorPath string) (float64, error) {
	data, err := os.ReadFile(filepath.Join(sensorPath, "w1_slave"))
	if err != nil {
		return 0, fmt.Errorf("read sensor data: %w", err)
	}
	return parseW1Slave(string(data))
}

func parseW1Slave(data string) (float64, error) {
	lines := strings.Split(data, "\n")
	if len(lines) < 2 {
		return 0, errors.New("temperature data missing")
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, ErrBadCRC
	}

	parts := strings.Split(lines[1], "t=")
	if len(parts) != 2 {
		return 0, fmt.Errorf("could not parse temperature line %q", lines[1])
	}

	milliC, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, fmt.Errorf("convert temperature: %w", err)
	}
	return float64(milliC) / 1000.0, nil
}
