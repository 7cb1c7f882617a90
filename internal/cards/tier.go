package cards

import (
	"encoding/json"
	"fmt"
)

// Tier is the expressiveness level a platform supports. Lower tiers
// force feature downgrades during rendering.
type Tier int

const (
	TierBasic Tier = iota
	TierAdvanced
	TierPremium
)

func (t Tier) String() string {
	switch t {
	case TierAdvanced:
		return "advanced"
	case TierPremium:
		return "premium"
	default:
		return "basic"
	}
}

// Clamp returns the lower of t and target.
func (t Tier) Clamp(target Tier) Tier {
	if t > target {
		return target
	}
	return t
}

func (t Tier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Tier) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTier(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTier converts a tier name to its value.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "basic", "":
		return TierBasic, nil
	case "advanced":
		return TierAdvanced, nil
	case "premium":
		return TierPremium, nil
	}
	return TierBasic, fmt.Errorf("unknown tier %q", s)
}
