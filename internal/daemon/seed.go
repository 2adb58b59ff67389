package daemon

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/GoPowerDNS-Admin/rolesync/internal/mapper"
)

// ApplyMappers stores the mappers listed in the configuration, replacing
// stored mappers of the same realm and name. Mappers only present in the
// database are kept.
func (d *Daemon) ApplyMappers(ctx context.Context) (int, error) {
	for i, m := range d.cfg.Mappers {
		cfg, err := mapper.FromSettings(m)
		if err != nil {
			return i, fmt.Errorf("mapper %d of the configuration: %w", i+1, err)
		}

		if _, err = d.Registry.Save(ctx, cfg); err != nil {
			return i, err
		}

		log.Debug().
			Str("realm", cfg.RealmID).
			Str("mapper", cfg.Name).
			Str("mode", string(cfg.Mode)).
			Msg("mapper applied")
	}

	if n := len(d.cfg.Mappers); n > 0 {
		log.Info().Int("count", n).Msg("mappers from configuration applied")
	}

	return len(d.cfg.Mappers), nil
}
