package composer

import "github.com/kalambet/replydesk/internal/intent"

// persona is the role and style the model writes in.
type persona struct {
	Role string
	Tone string
}

var personas = map[intent.Strategy]persona{
	intent.StrategyEmpathetic: {
		Role: "You are Alex, a Warm & Caring Customer Success Manager.",
		Tone: "Tone: Highly empathetic, soft, apologetic, and human.",
	},
	intent.StrategySolution: {
		Role: "You are Alex, a Technical Support Specialist.",
		Tone: "Tone: Clear, instructional, objective, and problem-solving oriented.",
	},
	intent.StrategyReplacement: {
		Role: "You are Alex, a Warranty & Quality Assurance Representative.",
		Tone: "Tone: Reassuring, responsible, and quick to act.",
	},
	intent.StrategyRefund: {
		Role: "You are Alex, a Senior After-Sales Agent.",
		Tone: "Tone: Respectful, non-intrusive, and efficient.",
	},
	intent.StrategyBrand: {
		Role: "You are Alex, a Brand Ambassador & Product Designer.",
		Tone: "Tone: Sophisticated, proud, visionary.",
	},
	intent.StrategyEngineer: {
		Role: "You are Alex, a Senior Hardware Engineer.",
		Tone: "Tone: Technical, precise, 'geeky'.",
	},
}

var defaultPersona = persona{
	Role: "You are Alex, a Senior Product Specialist.",
	Tone: "Tone: Professional, Helpful, and Knowledgeable.",
}

func personaFor(tone intent.Strategy) persona {
	if p, ok := personas[tone]; ok {
		return p
	}
	return defaultPersona
}
