package coordinator

import (
	"fmt"

	"github.com/tailored-agentic-units/switchboard/store"
	pebblestore "github.com/tailored-agentic-units/switchboard/store/pebble"
	"github.com/tailored-agentic-units/switchboard/store/sqlite"
)

// OpenStore opens the backend named by cfg.Driver.
func OpenStore(cfg StorageConfig) (store.Store, error) {
	switch cfg.Driver {
	case "", StorageMemory:
		return store.NewMemory(), nil
	case StorageSQLite:
		s, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case StoragePebble:
		s, err := pebblestore.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStorage, cfg.Driver)
	}
}
