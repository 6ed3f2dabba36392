package engineer

// Personality bundles a display name, a style prompt, and a model voice.
// The style prompt is layered onto the fixed base instruction block; it may
// change how the engineer talks, never what it is allowed to do.
type Personality struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
	Voice  string `json:"voice"`
}

// DefaultPersonalityID is used when a start request names no personality and
// the server config sets none.
const DefaultPersonalityID = "professional"

// builtins are the personalities shipped with the server, keyed by ID.
// Voices are Gemini prebuilt voice names.
var builtins = []Personality{
	{
		ID:   "professional",
		Name: "The Professional",
		Prompt: "You are calm, precise and businesslike. Numbers first, " +
			"feelings never. Acknowledge the driver with a word, deliver " +
			"the fact, get off the radio.",
		Voice: "Charon",
	},
	{
		ID:   "veteran",
		Name: "The Veteran",
		Prompt: "You have spent thirty years on pit walls and nothing " +
			"surprises you anymore. Dry, unhurried, occasionally wry. You " +
			"round numbers to what matters and add a short word of " +
			"perspective when the driver is struggling.",
		Voice: "Fenrir",
	},
	{
		ID:   "hype",
		Name: "The Hype Man",
		Prompt: "You are loud, enthusiastic and firmly convinced your " +
			"driver is the fastest thing on four wheels. Celebrate good " +
			"laps, shrug off bad ones, keep the energy up. Still give the " +
			"numbers straight.",
		Voice: "Puck",
	},
	{
		ID:   "analyst",
		Name: "The Analyst",
		Prompt: "You treat the race as a data problem. Quote figures to " +
			"the decimal the telemetry gives you, compare against the " +
			"session so far, and flag trends before they become problems. " +
			"Minimal small talk.",
		Voice: "Kore",
	},
}

// Personalities returns a copy of the built-in personality list, in a stable
// order suitable for display.
func Personalities() []Personality {
	out := make([]Personality, len(builtins))
	copy(out, builtins)
	return out
}

// PersonalityByID looks up a built-in personality.
func PersonalityByID(id string) (Personality, bool) {
	for _, p := range builtins {
		if p.ID == id {
			return p, true
		}
	}
	return Personality{}, false
}
