package probe

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// ErrEmptyCatalogue is reported when the POI catalogue has no entries.
var ErrEmptyCatalogue = errors.New("no POIs in catalogue")

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// POICounter is satisfied by the POI store.
type POICounter interface {
	CountPOIs(ctx context.Context) (int, error)
}

// Database checks that the database answers.
func Database(db Pinger) Probe {
	return Probe{
		Name:     "Database",
		Critical: true,
		Check:    db.PingContext,
	}
}

// WritableDir checks that dir exists (creating it if needed) and accepts files.
func WritableDir(name, dir string) Probe {
	return Probe{
		Name:     name,
		Critical: true,
		Check: func(ctx context.Context) error {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			f, err := os.CreateTemp(dir, ".probe-*")
			if err != nil {
				return fmt.Errorf("%s is not writable: %w", dir, err)
			}
			name := f.Name()
			f.Close()
			return os.Remove(name)
		},
	}
}

// Catalogue warns when there is nothing to narrate.
func Catalogue(c POICounter) Probe {
	return Probe{
		Name: "POI Catalogue",
		Check: func(ctx context.Context) error {
			n, err := c.CountPOIs(ctx)
			if err != nil {
				return err
			}
			if n == 0 {
				return ErrEmptyCatalogue
			}
			return nil
		},
	}
}
