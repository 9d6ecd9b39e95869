package events

import (
	"fmt"
	"math/rand"
)

// Persona describes a moderation style used to color synthetic chat.
type Persona struct {
	Name     string
	Tone     string
	Examples []personaExample
}

type personaExample struct {
	comment string
	strikes int
}

// Personas are the built-in moderation personas for synthetic data.
var Personas = []Persona{
	{
		Name: "lenient_supportive",
		Tone: "friendly, supportive, minimal intervention unless abusive",
		Examples: []personaExample{
			{comment: "yo stream was fire last night!!", strikes: 0},
			{comment: "sorry if that was rude earlier, just hyped", strikes: 1},
		},
	},
	{
		Name: "firm_professional",
		Tone: "strict on abuse/spam, professional language",
		Examples: []personaExample{
			{comment: "go kys lol", strikes: 2},
			{comment: "follow me for free coins!!! http://spam.link", strikes: 1},
			{comment: "why are mods sleeping this chat is wilding", strikes: 1},
		},
	},
	{
		Name: "nuanced_patient",
		Tone: "patient, context-aware, prefers gentle nudges first",
		Examples: []personaExample{
			{comment: "that's sus but maybe they meant it as a joke?", strikes: 0},
			{comment: "your mic is clipping bro, hurts my ears", strikes: 0},
		},
	},
}

var topics = []string{"chess", "speedrun", "irl", "cooking", "music"}

// Generate synthesizes n events drawn from the built-in personas. Each event
// gets its own identity so first-contact state creation is exercised.
func Generate(n int, rng *rand.Rand) []Event {
	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		persona := Personas[rng.Intn(len(Personas))]
		example := persona.Examples[rng.Intn(len(persona.Examples))]
		out = append(out, Event{
			Comment: example.comment,
			Meta: Meta{
				User:           fmt.Sprintf("user_%03d", i+1),
				AccountAgeDays: 10 + rng.Intn(891),
				Strikes:        example.strikes,
				FollowerCount:  rng.Intn(5000),
				ViewerCount:    1 + rng.Intn(500),
				Topic:          topics[rng.Intn(len(topics))],
			},
			Persona: persona.Name,
		})
	}
	return out
}
