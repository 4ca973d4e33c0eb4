package catalog

import (
	_ "embed"
	"fmt"
	"time"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/respawn"
	"gopkg.in/yaml.v3"
)

//go:embed mvps.yaml
var embeddedMonsters []byte

// Monster is a static catalog entry. Entries are never mutated at runtime.
type Monster struct {
	ID              string `yaml:"id" json:"id"`
	Name            string `yaml:"name" json:"name"`
	Level           int    `yaml:"level" json:"level"`
	RespawnMin      int    `yaml:"respawnMin" json:"respawnMin"`
	RespawnMax      int    `yaml:"respawnMax" json:"respawnMax"`
	Map             string `yaml:"map" json:"map"`
	ImageURL        string `yaml:"imageUrl" json:"imageUrl"`
	MapURL          string `yaml:"mapUrl" json:"mapUrl"`
	HasTeleport     bool   `yaml:"hasTeleport" json:"hasTeleport"`
	TombSpawn       bool   `yaml:"tombSpawn" json:"tombSpawn"`
	Competitiveness Score  `yaml:"competitiveness" json:"competitiveness"`
	Findability     Score  `yaml:"findability" json:"findability"`
}

// Window returns the monster's respawn window.
func (m Monster) Window() respawn.Window {
	return respawn.WindowFromMinutes(m.RespawnMin, m.RespawnMax)
}

// RespawnMaxDuration is the upper bound of the respawn window.
func (m Monster) RespawnMaxDuration() time.Duration {
	return time.Duration(m.RespawnMax) * time.Minute
}

// Catalog is an immutable, id-indexed list of monsters.
type Catalog struct {
	monsters []Monster
	byID     map[string]int
}

// New validates the given monsters and builds a catalog preserving their order.
func New(monsters []Monster) (*Catalog, error) {
	c := &Catalog{
		monsters: make([]Monster, 0, len(monsters)),
		byID:     make(map[string]int, len(monsters)),
	}
	for _, m := range monsters {
		if m.ID == "" {
			return nil, fmt.Errorf("monster %q has no id", m.Name)
		}
		if _, ok := c.byID[m.ID]; ok {
			return nil, fmt.Errorf("duplicate monster id %s", m.ID)
		}
		if m.RespawnMin >= m.RespawnMax {
			return nil, fmt.Errorf("monster %s: respawnMin %d must be less than respawnMax %d", m.ID, m.RespawnMin, m.RespawnMax)
		}
		if err := m.Window().Validate(); err != nil {
			return nil, fmt.Errorf("monster %s: %v", m.ID, err)
		}
		if !m.Competitiveness.Valid() || !m.Findability.Valid() {
			return nil, fmt.Errorf("monster %s: scores must be between 0 and 2", m.ID)
		}
		c.byID[m.ID] = len(c.monsters)
		c.monsters = append(c.monsters, m)
	}
	return c, nil
}

// Parse decodes a YAML document with a top-level "monsters" list.
func Parse(b []byte) (*Catalog, error) {
	doc := struct {
		Monsters []Monster `yaml:"monsters"`
	}{}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %v", err)
	}
	return New(doc.Monsters)
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(embeddedMonsters)
}

// Lookup returns the monster with the given id.
func (c *Catalog) Lookup(id string) (Monster, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Monster{}, false
	}
	return c.monsters[i], true
}

// Contains reports whether id is a known monster.
func (c *Catalog) Contains(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// List returns a copy of all monsters in catalog order.
func (c *Catalog) List() []Monster {
	out := make([]Monster, len(c.monsters))
	copy(out, c.monsters)
	return out
}

// Len returns the number of monsters.
func (c *Catalog) Len() int {
	return len(c.monsters)
}
