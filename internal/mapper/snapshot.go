package mapper

import (
	"cmp"
	"fmt"
	"slices"
)

// Snapshot is the immutable set of mappers of one realm, taken once per
// operation. Reconfiguration produces a new snapshot; running operations keep
// the one they started with.
type Snapshot struct {
	realmID string
	mappers []Config
}

// NewSnapshot validates cfgs and binds them to realmID. Two mappers may not
// share a name or a target set, so every role has at most one owner.
func NewSnapshot(realmID string, cfgs []Config) (*Snapshot, error) {
	s := &Snapshot{realmID: realmID, mappers: make([]Config, 0, len(cfgs))}

	names := make(map[string]struct{}, len(cfgs))
	targets := make(map[Target]string, len(cfgs))

	for _, cfg := range cfgs {
		if cfg.RealmID != realmID {
			return nil, fmt.Errorf("%w %s: belongs to realm %q, not %q", ErrInvalidMapper, cfg.Name, cfg.RealmID, realmID)
		}

		valid, err := cfg.Validate()
		if err != nil {
			return nil, err
		}

		if _, dup := names[valid.Name]; dup {
			return nil, fmt.Errorf("%w %s: duplicate name", ErrInvalidMapper, valid.Name)
		}

		if other, dup := targets[valid.Target]; dup {
			return nil, fmt.Errorf("%w %s: target %s already owned by %s", ErrInvalidMapper, valid.Name, valid.Target, other)
		}

		names[valid.Name] = struct{}{}
		targets[valid.Target] = valid.Name
		s.mappers = append(s.mappers, valid)
	}

	slices.SortFunc(s.mappers, func(a, b Config) int {
		return cmp.Compare(a.Name, b.Name)
	})

	return s, nil
}

// RealmID is the realm the snapshot belongs to.
func (s *Snapshot) RealmID() string {
	return s.realmID
}

// Mappers returns the mappers ordered by name.
func (s *Snapshot) Mappers() []Config {
	return slices.Clone(s.mappers)
}

// Mapper returns the mapper called name.
func (s *Snapshot) Mapper(name string) (Config, error) {
	for _, m := range s.mappers {
		if m.Name == name {
			return m, nil
		}
	}

	return Config{}, fmt.Errorf("%w: %s/%s", ErrMapperNotFound, s.realmID, name)
}

// Owner returns the mapper whose target set holds the roles of clientID,
// the realm roles when clientID is empty.
func (s *Snapshot) Owner(clientID string) (Config, bool) {
	for _, m := range s.mappers {
		if m.Target.ClientID == clientID {
			return m, true
		}
	}

	return Config{}, false
}
