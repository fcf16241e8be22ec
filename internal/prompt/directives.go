package prompt

import "math/rand/v2"

// Directive is one mutation instruction from the fixed catalogue.
type Directive struct {
	Name        string `json:"name"`
	Instruction string `json:"instruction"`
}

// Directives is the catalogue mutations are drawn from.
var Directives = []Directive{
	{
		Name:        "debate",
		Instruction: "Turn the architecture into a debate: several agents with different perspectives argue over the answer in a shared meeting for a few rounds, then a judge agent reads the whole debate and decides the final letter.",
	},
	{
		Name:        "reflection",
		Instruction: "Add a reflection loop: after an agent answers, a critic agent points out mistakes in its reasoning and the original agent revises its answer, for a bounded number of rounds.",
	},
	{
		Name:        "role specialisation",
		Instruction: "Assign specialised expert roles (for example a domain expert, a logician and a skeptic) chosen to fit the question, and let each contribute from its role before one agent settles the answer.",
	},
	{
		Name:        "ensembling",
		Instruction: "Ensemble independent solvers: run several agents on the question in separate meetings so they cannot see each other, then have a final agent read all their answers and pick the most supported letter.",
	},
	{
		Name:        "decomposition",
		Instruction: "Decompose the question: one agent breaks it into sub-questions, other agents answer each sub-question, and a final agent combines the partial answers into the choice.",
	},
	{
		Name:        "verification",
		Instruction: "Add an explicit verification stage: a verifier agent checks the proposed answer against every choice and either confirms it or sends it back with the reason it fails.",
	},
	{
		Name:        "doubling agents",
		Instruction: "Double the number of agents in the architecture while keeping its structure, giving each new agent a distinct name and temperature.",
	},
	{
		Name:        "reward shaping",
		Instruction: "Introduce reward shaping: a grader agent scores intermediate answers for confidence and correctness, and the architecture keeps refining while the score is low.",
	},
	{
		Name:        "step-back abstraction",
		Instruction: "Add a step-back stage: an agent first states the general principles or concepts the question depends on, and the solver answers with those principles in its meeting.",
	},
	{
		Name:        "simplification",
		Instruction: "Simplify the architecture: remove the stages that add the least, merge redundant agents and keep only what is needed to answer reliably.",
	},
	{
		Name:        "temperature diversification",
		Instruction: "Diversify temperatures: give agents clearly different sampling temperatures between 0 and 1.2 so that some explore and some stay precise, and let a low temperature agent decide.",
	},
	{
		Name:        "dynamic routing",
		Instruction: "Add dynamic routing: a router agent first classifies the question (for example by subject or difficulty) and the architecture sends it to a different pipeline of agents depending on that class.",
	},
}

// PickDirective draws a directive uniformly from the catalogue.
func PickDirective(rng *rand.Rand) Directive {
	return Directives[rng.IntN(len(Directives))]
}

// LookupDirective finds a directive by name.
func LookupDirective(name string) (Directive, bool) {
	for _, d := range Directives {
		if d.Name == name {
			return d, true
		}
	}
	return Directive{}, false
}
