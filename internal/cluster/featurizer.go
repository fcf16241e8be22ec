// Package cluster assigns behavioural descriptors to frameworks and
// partitions a population into semantic clusters.
package cluster

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"math"
	"strconv"
	"strings"

	"github.com/longregen/archetype/internal/domain/models"
	"github.com/longregen/archetype/internal/ports"
)

// Feature indexes into a descriptor.
type Feature int

const (
	FeatureRoles Feature = iota
	FeatureAgents
	FeatureMeetings
	FeatureChats
	FeatureResponds
	FeatureLoopDepth
	FeatureLoopedResponds
	FeatureJoins
	FeatureTemperatures
	FeatureGoroutines
	FeatureCodeLines
	FeatureThoughtWords
	FeatureCritique
	FeatureEnsemble
	numFeatures
)

// Dimensions is the descriptor length.
const Dimensions = int(numFeatures)

var featureNames = [numFeatures]string{
	"distinct roles", "agents", "meetings", "chats", "LLM calls", "loop depth",
	"LLM calls in loops", "joins", "distinct temperatures", "goroutines",
	"code size", "rationale length", "critique vocabulary", "ensemble vocabulary",
}

var featureLabels = [numFeatures]string{
	"Role Specialists", "Agent Crowds", "Multi-Meeting Pipelines", "Chatty Deliberation",
	"Many-Call Chains", "Nested Iteration", "Iterative Refinement", "Shared Meetings",
	"Temperature Diversity", "Parallel Sampling", "Elaborate Programs", "Deliberate Designs",
	"Critique and Reflection", "Ensembles and Voting",
}

func (f Feature) String() string { return featureNames[f] }

var (
	critiqueTerms = []string{"critic", "critique", "reflect", "feedback", "verify", "review", "refine", "debate"}
	ensembleTerms = []string{"vote", "voting", "majority", "ensemble", "consistency", "aggregate", "consensus"}
)

// ASTFeaturizer derives descriptors from a framework's code and thought
// process only, so equal inputs always give equal descriptors.
type ASTFeaturizer struct{}

var _ ports.Featurizer = ASTFeaturizer{}

func (ASTFeaturizer) Describe(fw *models.Framework) ([]float32, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "candidate.go", fw.Code, parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", fw.ID, err)
	}

	v := newFeatureCounter()
	v.walk(file)

	var d [numFeatures]float64
	d[FeatureRoles] = float64(len(v.roles))
	d[FeatureAgents] = float64(v.calls["Agent"])
	d[FeatureMeetings] = float64(v.calls["Meeting"])
	d[FeatureChats] = float64(v.calls["Chat"])
	d[FeatureResponds] = float64(v.calls["Respond"])
	d[FeatureLoopDepth] = float64(v.maxDepth)
	d[FeatureLoopedResponds] = float64(v.loopedResponds)
	d[FeatureJoins] = float64(v.calls["Join"])
	d[FeatureTemperatures] = float64(len(v.temps))
	d[FeatureGoroutines] = float64(v.goStmts)
	d[FeatureCodeLines] = math.Log1p(float64(strings.Count(fw.Code, "\n") + 1))

	thought := strings.ToLower(fw.ThoughtProcess)
	d[FeatureThoughtWords] = math.Log1p(float64(len(strings.Fields(thought))))
	d[FeatureCritique] = float64(countTerms(thought, critiqueTerms))
	d[FeatureEnsemble] = float64(countTerms(thought, ensembleTerms))

	out := make([]float32, Dimensions)
	for i, x := range d {
		out[i] = float32(x)
	}
	return out, nil
}

func countTerms(text string, terms []string) int {
	n := 0
	for _, t := range terms {
		n += strings.Count(text, t)
	}
	return n
}

type featureCounter struct {
	depth          int
	maxDepth       int
	calls          map[string]int
	roles          map[string]bool
	temps          map[string]bool
	loopedResponds int
	goStmts        int
}

func newFeatureCounter() *featureCounter {
	return &featureCounter{calls: map[string]int{}, roles: map[string]bool{}, temps: map[string]bool{}}
}

func (v *featureCounter) walk(file *ast.File) {
	var stack []ast.Node
	ast.Inspect(file, func(n ast.Node) bool {
		if n == nil {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if isLoop(top) {
				v.depth--
			}
			return true
		}
		stack = append(stack, n)
		switch node := n.(type) {
		case *ast.ForStmt, *ast.RangeStmt:
			v.depth++
			v.maxDepth = max(v.maxDepth, v.depth)
		case *ast.GoStmt:
			v.goStmts++
		case *ast.CallExpr:
			v.call(node)
		}
		return true
	})
}

func isLoop(n ast.Node) bool {
	switch n.(type) {
	case *ast.ForStmt, *ast.RangeStmt:
		return true
	}
	return false
}

func (v *featureCounter) call(call *ast.CallExpr) {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return
	}
	name := sel.Sel.Name
	switch name {
	case "Agent", "Meeting", "Chat", "Respond", "Join":
	default:
		return
	}
	v.calls[name]++
	if name == "Respond" && v.depth > 0 {
		v.loopedResponds++
	}
	if name == "Agent" && len(call.Args) >= 3 {
		if lit, ok := call.Args[1].(*ast.BasicLit); ok && lit.Kind == token.STRING {
			if s, err := strconv.Unquote(lit.Value); err == nil {
				v.roles[s] = true
			}
		}
		if lit, ok := call.Args[2].(*ast.BasicLit); ok && (lit.Kind == token.FLOAT || lit.Kind == token.INT) {
			if f, err := strconv.ParseFloat(lit.Value, 64); err == nil {
				v.temps[strconv.FormatFloat(f, 'f', -1, 64)] = true
			}
		}
	}
}
