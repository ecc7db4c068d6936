package agents

// Needs are bounded to [NeedMin, NeedMax].
const (
	NeedMin = 0.0
	NeedMax = 100.0
)

// Needs tracks the three drives of an agent. Energy is good when high;
// hunger and social are pressures that are bad when high.
type Needs struct {
	Energy float64 `json:"energy"`
	Hunger float64 `json:"hunger"`
	Social float64 `json:"social"`
}

// Clamp forces every need back into range.
func (n *Needs) Clamp() {
	n.Energy = clampRange(n.Energy, NeedMin, NeedMax)
	n.Hunger = clampRange(n.Hunger, NeedMin, NeedMax)
	n.Social = clampRange(n.Social, NeedMin, NeedMax)
}

// Decay applies one tick of passing time. Social need only grows when
// socialGrows is set (i.e. the agent has not talked to anyone recently).
func (n *Needs) Decay(r Rules, socialGrows bool) {
	n.Energy -= r.EnergyDecay
	n.Hunger += r.HungerGrowth
	if socialGrows {
		n.Social += r.SocialGrowth
	}
	n.Clamp()
}

// Mood returns a one-word summary of the most pressing need.
func (n Needs) Mood(r Rules) string {
	switch {
	case n.Energy <= r.LowEnergy/2:
		return "exhausted"
	case n.Energy < r.LowEnergy:
		return "tired"
	case n.Hunger >= (r.HighHunger+NeedMax)/2:
		return "starving"
	case n.Hunger > r.HighHunger:
		return "hungry"
	case n.Social > r.HighSocial:
		return "lonely"
	default:
		return "content"
	}
}
