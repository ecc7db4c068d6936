// Agent behavior — needs-driven intent selection.
// Every tick each agent re-evaluates its needs and keeps or replaces the
// intent it is pursuing. The engine turns the intent into movement and
// building effects.
package agents

import "github.com/talgya/ai-town/internal/world"

// Intent is the need an agent is currently working to satisfy.
type Intent uint8

const (
	IntentNone      Intent = iota
	IntentRest             // Head home and sleep
	IntentEat              // Head to a shop
	IntentSocialize        // Head to a cafe or park, or to another agent
	IntentWork             // Head to the office for a shift
)

var intentNames = [...]string{"none", "rest", "eat", "socialize", "work"}

func (i Intent) String() string {
	if int(i) < len(intentNames) {
		return intentNames[i]
	}
	return "unknown"
}

// Activity is what an agent is visibly doing this tick.
type Activity uint8

const (
	ActivityIdle        Activity = iota
	ActivityMoving               // Walking towards a target
	ActivityResting              // Inside a house
	ActivityEating               // Inside a shop
	ActivitySocializing          // Inside a cafe or park
	ActivityWorking              // Inside an office
	ActivityConversing           // Talking with another agent
)

var activityNames = [...]string{"idle", "moving", "resting", "eating", "socializing", "working", "conversing"}

func (a Activity) String() string {
	if int(a) < len(activityNames) {
		return activityNames[a]
	}
	return "unknown"
}

// Rules holds the rates and thresholds of the needs model. All values are
// in need points per tick or need points.
type Rules struct {
	EnergyDecay    float64 `yaml:"energy_decay" json:"energy_decay"`
	HungerGrowth   float64 `yaml:"hunger_growth" json:"hunger_growth"`
	SocialGrowth   float64 `yaml:"social_growth" json:"social_growth"`
	WorkEnergyCost float64 `yaml:"work_energy_cost" json:"work_energy_cost"`

	LowEnergy  float64 `yaml:"low_energy" json:"low_energy"`   // Below this an agent must rest
	HighHunger float64 `yaml:"high_hunger" json:"high_hunger"` // Above this an agent must eat
	HighSocial float64 `yaml:"high_social" json:"high_social"` // Above this an agent seeks company

	RestUntil      float64 `yaml:"rest_until" json:"rest_until"`
	EatUntil       float64 `yaml:"eat_until" json:"eat_until"`
	SocializeUntil float64 `yaml:"socialize_until" json:"socialize_until"`

	RestGain          float64 `yaml:"rest_gain" json:"rest_gain"`
	EatRelief         float64 `yaml:"eat_relief" json:"eat_relief"`
	VenueSocialRelief float64 `yaml:"venue_social_relief" json:"venue_social_relief"`

	IdleTicksBeforeWork int `yaml:"idle_ticks_before_work" json:"idle_ticks_before_work"`
	WorkShiftTicks      int `yaml:"work_shift_ticks" json:"work_shift_ticks"`
	SocialGraceTicks    int `yaml:"social_grace_ticks" json:"social_grace_ticks"`
}

// DefaultRules returns the standard needs model.
func DefaultRules() Rules {
	return Rules{
		EnergyDecay:    1.0,
		HungerGrowth:   1.5,
		SocialGrowth:   1.0,
		WorkEnergyCost: 0.5,

		LowEnergy:  20,
		HighHunger: 70,
		HighSocial: 60,

		RestUntil:      90,
		EatUntil:       10,
		SocializeUntil: 20,

		RestGain:          15,
		EatRelief:         20,
		VenueSocialRelief: 10,

		IdleTicksBeforeWork: 5,
		WorkShiftTicks:      8,
		SocialGraceTicks:    5,
	}
}

// ChooseIntent picks what an agent should pursue given its needs. It is a
// pure function of its inputs.
//
// Urgent needs are checked in fixed priority: low energy, then high hunger,
// then high social need. Without an urgent need, an unfinished intent
// carries on until its need is comfortably met, so an agent does not leave
// home the moment its energy crosses the threshold. An agent idle for long
// enough goes to work.
func ChooseIntent(n Needs, r Rules, current Intent, idleTicks, shiftLeft int) Intent {
	switch {
	case n.Energy < r.LowEnergy:
		return IntentRest
	case n.Hunger > r.HighHunger:
		return IntentEat
	case n.Social > r.HighSocial:
		return IntentSocialize
	}

	switch current {
	case IntentRest:
		if n.Energy < r.RestUntil {
			return IntentRest
		}
	case IntentEat:
		if n.Hunger > r.EatUntil {
			return IntentEat
		}
	case IntentSocialize:
		if n.Social > r.SocializeUntil {
			return IntentSocialize
		}
	case IntentWork:
		if shiftLeft > 0 {
			return IntentWork
		}
	}

	if current != IntentWork && idleTicks >= r.IdleTicksBeforeWork {
		return IntentWork
	}
	return IntentNone
}

// VenueFor returns the building types that satisfy an intent.
func VenueFor(i Intent) []world.BuildingType {
	switch i {
	case IntentRest:
		return []world.BuildingType{world.BuildingHouse}
	case IntentEat:
		return []world.BuildingType{world.BuildingShop}
	case IntentSocialize:
		return []world.BuildingType{world.BuildingCafe, world.BuildingPark}
	case IntentWork:
		return []world.BuildingType{world.BuildingOffice}
	default:
		return nil
	}
}

// ActivityAt returns the activity an agent performs once inside a venue
// for the intent.
func ActivityAt(i Intent) Activity {
	switch i {
	case IntentRest:
		return ActivityResting
	case IntentEat:
		return ActivityEating
	case IntentSocialize:
		return ActivitySocializing
	case IntentWork:
		return ActivityWorking
	default:
		return ActivityIdle
	}
}

// ApplyVenue performs one tick of a venue's effect on the agent and
// returns the resulting activity.
func ApplyVenue(a *Agent, r Rules) Activity {
	switch a.Intent {
	case IntentRest:
		a.Needs.Energy += r.RestGain
	case IntentEat:
		a.Needs.Hunger -= r.EatRelief
	case IntentSocialize:
		a.Needs.Social -= r.VenueSocialRelief
	case IntentWork:
		a.Needs.Energy -= r.WorkEnergyCost
		if a.ShiftLeft > 0 {
			a.ShiftLeft--
		}
	}
	a.Needs.Clamp()
	return ActivityAt(a.Intent)
}
