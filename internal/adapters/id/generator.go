package id

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

type Generator struct{}

func New() *Generator {
	return &Generator{}
}

func (g *Generator) generate(prefix string) string {
	id, err := gonanoid.New(21)
	if err != nil {
		return prefix + "_fallback"
	}
	return prefix + "_" + id
}

func (g *Generator) GenerateAgentID() string {
	return g.generate("ag")
}

func (g *Generator) GenerateMeetingID() string {
	return g.generate("mt")
}

func (g *Generator) GenerateChatID() string {
	return g.generate("ch")
}

func (g *Generator) GenerateFrameworkID() string {
	return g.generate("fw")
}

func (g *Generator) GeneratePopulationID() string {
	return g.generate("pop")
}

func (g *Generator) GenerateGenerationID() string {
	return g.generate("gen")
}

func (g *Generator) GenerateClusterID() string {
	return g.generate("cl")
}

// NameSuffix returns four lowercase alphanumerics.
func (g *Generator) NameSuffix() string {
	s, err := gonanoid.Generate(suffixAlphabet, 4)
	if err != nil {
		return "0000"
	}
	return s
}
