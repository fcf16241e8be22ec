// Package prompt builds the meta-prompt shown to the architecture designer.
//
// The user message is laid out in a fixed order: an overview with one
// example task, an excerpt of the runtime API, the archive of elites, an
// EXAMPLE output block, anti-patterns and finally the mutation directive.
//
//	b := prompt.NewBuilder()
//	system, user, err := b.Build(ports.MutationRequest{
//	    Parent:    elite,
//	    Archive:   elites,
//	    Directive: prompt.Directives[0].Instruction,
//	    Example:   tasks[0],
//	})
//
// The designer answers through MutationOutput, a dspy-go signature with the
// outputs thought, name and code; Signature.Schema turns it into the
// gateway's schema.
package prompt
