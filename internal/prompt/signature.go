package prompt

import (
	"fmt"
	"strings"

	"github.com/XiaoConstantine/dspy-go/pkg/core"
	"github.com/longregen/archetype/internal/ports"
)

// Output field names of a mutation.
const (
	FieldThought = "thought"
	FieldName    = "name"
	FieldCode    = "code"
)

// Signature wraps a dspy-go signature with a name and version so the
// designer's contract can be logged and compared across runs.
type Signature struct {
	core.Signature
	Name    string
	Version int
}

// MustParseSignature creates a signature from a string or panics
func MustParseSignature(sig string) Signature {
	s, err := ParseSignature(sig)
	if err != nil {
		panic(fmt.Sprintf("failed to parse signature: %v", err))
	}
	return s
}

// ParseSignature creates a signature from a string like
// "input1, input2 -> output1: description, output2".
func ParseSignature(sig string) (Signature, error) {
	parts := strings.Split(sig, "->")
	if len(parts) != 2 {
		return Signature{}, fmt.Errorf("invalid signature format: %s", sig)
	}

	inputFields := parseFields(strings.TrimSpace(parts[0]))
	outputFields := parseFields(strings.TrimSpace(parts[1]))
	if len(outputFields) == 0 {
		return Signature{}, fmt.Errorf("signature has no outputs: %s", sig)
	}

	inputs := make([]core.InputField, len(inputFields))
	for i, f := range inputFields {
		inputs[i] = core.InputField{Field: f}
	}
	outputs := make([]core.OutputField, len(outputFields))
	for i, f := range outputFields {
		outputs[i] = core.OutputField{Field: f}
	}

	return Signature{
		Signature: core.NewSignature(inputs, outputs),
		Name:      generateName(sig),
		Version:   1,
	}, nil
}

// parseFields reads "name" or "name: description" entries.
func parseFields(fieldStr string) []core.Field {
	if fieldStr == "" {
		return nil
	}

	parts := strings.Split(fieldStr, ",")
	fields := make([]core.Field, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, desc, _ := strings.Cut(part, ":")
		f := core.NewField(strings.TrimSpace(name))
		f.Description = strings.TrimSpace(desc)
		fields = append(fields, f)
	}
	return fields
}

func generateName(sig string) string {
	name := strings.ReplaceAll(sig, "->", "_to_")
	for _, c := range []string{",", " ", ":"} {
		name = strings.ReplaceAll(name, c, "_")
	}
	return name
}

// WithDescriptions returns a copy of s whose output fields carry the given
// descriptions. Unknown names are ignored.
func (s Signature) WithDescriptions(desc map[string]string) Signature {
	outputs := make([]core.OutputField, len(s.Outputs))
	copy(outputs, s.Outputs)
	for i := range outputs {
		if d, ok := desc[outputs[i].Name]; ok {
			outputs[i].Description = d
		}
	}
	s.Signature = core.NewSignature(s.Inputs, outputs)
	return s
}

// Schema converts the outputs into the gateway's field -> description map.
func (s Signature) Schema() ports.Schema {
	schema := make(ports.Schema, len(s.Outputs))
	for _, o := range s.Outputs {
		desc := o.Description
		if desc == "" {
			desc = o.Name
		}
		schema[o.Name] = desc
	}
	return schema
}

// MutationOutput is what the designer returns for every mutation.
var MutationOutput = MustParseSignature(
	"parent, archive, directive -> thought, name, code",
).WithDescriptions(map[string]string{
	FieldThought: "Your reasoning: what you observed in the archive, what the new architecture does and why it should answer more questions correctly.",
	FieldName:    "A short, distinctive name for the new architecture.",
	FieldCode:    "The complete Go source of the new candidate: package candidate with a Forward function. No markdown fences.",
})
