package catalog

// Score is a 0..2 difficulty rating.
type Score int

func (s Score) Valid() bool {
	return s >= 0 && s <= 2
}

// Badge is a rated label shown next to a monster.
type Badge struct {
	Level   Score  `json:"level"`
	Message string `json:"message"`
	Color   string `json:"color"`
}

// TeleportBadge tells whether the map allows teleporting.
type TeleportBadge struct {
	HasTeleport bool   `json:"hasTeleport"`
	Label       string `json:"label"`
	Color       string `json:"color"`
}

// Info groups the badges for one monster.
type Info struct {
	Competitiveness Badge         `json:"competitiveness"`
	Findability     Badge         `json:"findability"`
	Teleport        TeleportBadge `json:"teleport"`
}

var competitivenessBadges = map[Score]Badge{
	0: {Level: 0, Message: "A galera esquece que existe", Color: "green"},
	1: {Level: 1, Message: "As vezes encontra vivo", Color: "yellow"},
	2: {Level: 2, Message: "Toda hora ta morto", Color: "red"},
}

var findabilityBadges = map[Score]Badge{
	0: {Level: 0, Message: "Muito fácil", Color: "green"},
	1: {Level: 1, Message: "É chato de achar", Color: "orange"},
	2: {Level: 2, Message: "É horrível encontra-lo", Color: "red"},
}

// InfoFor builds the badges for a monster.
func InfoFor(m Monster) Info {
	teleport := TeleportBadge{
		HasTeleport: m.HasTeleport,
		Label:       "Sem teleporte",
		Color:       "amber",
	}
	if m.HasTeleport {
		teleport.Label = "Tem teleporte"
		teleport.Color = "blue"
	}
	return Info{
		Competitiveness: competitivenessBadges[m.Competitiveness],
		Findability:     findabilityBadges[m.Findability],
		Teleport:        teleport,
	}
}
