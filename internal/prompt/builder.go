package prompt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/longregen/archetype/internal/domain/models"
	"github.com/longregen/archetype/internal/ports"
	"github.com/longregen/archetype/internal/sandbox"
)

// SystemMessage frames the designer agent for every mutation.
const SystemMessage = `You are an expert machine learning researcher designing multi-agent LLM architectures. You write Go programs that orchestrate agents through a small conversation runtime. Always reply through the provided function with the fields thought, name and code.`

// RuntimeExcerpt is the API candidates are written against, as shown to
// the designer.
const RuntimeExcerpt = `package candidate

import (
	"context"

	"archetype/rt"
)

// Forward receives the formatted question and must return exactly one of
// "A", "B", "C" or "D".
func Forward(ctx context.Context, self *rt.Runtime, task string) (string, error)

// *rt.Runtime
//   Agent(ctx, name string, temperature float64) (*rt.Agent, error)
//     Creates an agent. The name "system" is reserved: its chats are shown to
//     other agents as system messages.
//   Meeting(ctx, name string) (*rt.Meeting, error)
//     Creates a meeting. Agents only see chats of meetings they are part of.
//   Chat(ctx, agent *rt.Agent, meeting *rt.Meeting, content string) error
//     Appends a chat spoken by agent. The speaker joins the meeting.
//
// *rt.Meeting
//   Join(ctx, agents ...*rt.Agent) error   adds listeners to the meeting
//   ID() string
//
// *rt.Agent
//   Respond(ctx, schema map[string]string) (map[string]string, error)
//     Asks the agent to answer from everything it has seen in its meetings.
//     The schema maps output field names to descriptions; the result has
//     exactly those keys and string values.
//   Name() string
//   ID() string
//
// Allowed imports: context, errors, fmt, math, sort, strconv, strings, sync,
// time and archetype/rt.`

const exampleOutput = `{
  "thought": "Chain-of-thought lets one agent reason before it commits to a letter. The answer field keeps the final output to a single letter.",
  "name": "Chain-of-Thought",
  "code": "package candidate\n\nimport (\n\t\"context\"\n\n\t\"archetype/rt\"\n)\n\nfunc Forward(ctx context.Context, self *rt.Runtime, task string) (string, error) {\n\tsystem, err := self.Agent(ctx, \"system\", 0)\n\tif err != nil {\n\t\treturn \"\", err\n\t}\n\tsolver, err := self.Agent(ctx, \"Solver\", 0.5)\n\tif err != nil {\n\t\treturn \"\", err\n\t}\n\tm, err := self.Meeting(ctx, \"solve\")\n\tif err != nil {\n\t\treturn \"\", err\n\t}\n\tif err := m.Join(ctx, solver); err != nil {\n\t\treturn \"\", err\n\t}\n\tif err := self.Chat(ctx, system, m, task); err != nil {\n\t\treturn \"\", err\n\t}\n\tout, err := solver.Respond(ctx, map[string]string{\n\t\t\"thinking\": \"Your step by step thinking.\",\n\t\t\"answer\":   \"The letter of the correct choice: A, B, C or D.\",\n\t})\n\tif err != nil {\n\t\treturn \"\", err\n\t}\n\treturn out[\"answer\"], nil\n}\n"
}`

var antiPatterns = []string{
	"Do not process or parse agent outputs with string manipulation. Ask for the exact field you need in the Respond schema and return it.",
	"Do not print or log anything. The only output is the returned letter.",
	"Do not aggregate answers manually (no vote counting or majority code). Let an agent read the other agents' answers in a meeting and decide.",
	"Do not inspect chat content to control flow. Agents communicate through meetings, not through your code reading their messages.",
	"Do not import packages outside the allowed list and do not wrap the code in markdown fences.",
}

var userTemplate = template.Must(template.New("mutation").Parse(`# Overview
You are designing a multi-agent architecture that answers multiple-choice questions. Each architecture is a Go program whose Forward function receives one question and returns the letter of the correct choice. Architectures are scored by their accuracy on held-out questions.

An example task, exactly as Forward receives it:

{{.Example}}

Correct answer: {{.Answer}}

# Runtime
Candidates are written against this API:

` + "```go" + `
{{.Runtime}}
` + "```" + `

# Archive
These are the best architectures discovered so far, one per behavioural niche, with their fitness and the reasoning behind them:

{{.Archive}}

The architecture you are mutating is "{{.ParentName}}":

{{.Parent}}

# Output format
Reply with the fields thought, name and code. EXAMPLE:

{{.ExampleOutput}}

# Anti-patterns
{{range .AntiPatterns}}- {{.}}
{{end}}
# Directive
{{.Directive}}
Write a new architecture that follows the directive, improves on the parent and differs meaningfully from the archive.
`))

type archiveEntry struct {
	Name    string `json:"name"`
	Thought string `json:"thought"`
	Fitness string `json:"fitness"`
	Code    string `json:"code"`
}

// Builder composes the mutation meta-prompt.
type Builder struct {
	output Signature
}

var _ ports.PromptBuilder = (*Builder)(nil)

func NewBuilder() *Builder {
	return &Builder{output: MutationOutput}
}

// Schema is the output schema the designer must fill.
func (b *Builder) Schema() ports.Schema {
	return b.output.Schema()
}

// Build returns the system and user messages for one mutation.
func (b *Builder) Build(req ports.MutationRequest) (string, string, error) {
	if req.Parent == nil {
		return "", "", errors.New("mutation request has no parent")
	}
	if strings.TrimSpace(req.Directive) == "" {
		return "", "", errors.New("mutation request has no directive")
	}

	archive := make([]archiveEntry, 0, len(req.Archive))
	for _, f := range req.Archive {
		archive = append(archive, entryFor(f))
	}
	archiveJSON, err := json.MarshalIndent(archive, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("encode archive: %w", err)
	}
	parentJSON, err := json.MarshalIndent(entryFor(req.Parent), "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("encode parent: %w", err)
	}

	var buf bytes.Buffer
	err = userTemplate.Execute(&buf, map[string]any{
		"Example":       sandbox.FormatQuestion(req.Example),
		"Answer":        req.Example.CorrectLetter,
		"Runtime":       RuntimeExcerpt,
		"Archive":       string(archiveJSON),
		"ParentName":    req.Parent.Name,
		"Parent":        string(parentJSON),
		"ExampleOutput": exampleOutput,
		"AntiPatterns":  antiPatterns,
		"Directive":     req.Directive,
	})
	if err != nil {
		return "", "", fmt.Errorf("render mutation prompt: %w", err)
	}
	return SystemMessage, buf.String(), nil
}

// DebugFeedback is appended after a failed candidate so the designer can
// repair it.
func (b *Builder) DebugFeedback(cause string) string {
	return fmt.Sprintf(`Your architecture failed when it was run:

%s

Fix the code so it compiles, returns one of A, B, C or D and avoids the error. Keep the idea of the architecture. Reply again with thought, name and code; explain the fix at the end of thought.`, cause)
}

func entryFor(f *models.Framework) archiveEntry {
	return archiveEntry{
		Name:    f.Name,
		Thought: f.ThoughtProcess,
		Fitness: f.FitnessString(),
		Code:    f.Code,
	}
}
