package shutdown

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/appliance-controller/internal/gpio"
)

var (
	mu      sync.Mutex
	relays  []gpio.Relay
	closers []io.Closer
	exit    = os.Exit
)

// Register sets the relays to drive off and the resources to close on shutdown.
func Register(rs []gpio.Relay, cs ...io.Closer) {
	mu.Lock()
	defer mu.Unlock()
	relays = rs
	closers = cs
}

// Release drives every registered relay inactive and closes the registered
// resources without exiting.
func Release() {
	mu.Lock()
	defer mu.Unlock()

	if err := gpio.AllOff(relays); err != nil {
		log.Error().Err(err).Msg("Failed to switch every relay off")
	} else {
		log.Info().Int("relays", len(relays)).Msg("All relays deactivated")
	}

	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close resource during shutdown")
		}
	}
	closers = nil
}

func Shutdown() {
	Release()
	exit(0)
}

func ShutdownWithError(err error, msg string) {
	log.Error().Err(err).Msg(msg)
	Release()
	exit(1)
}
