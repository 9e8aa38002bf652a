package graph_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/aretw0/novella/internal/compiler"
	"github.com/aretw0/novella/pkg/domain"
	"github.com/aretw0/novella/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, src string) *domain.Document {
	t.Helper()
	doc, err := compiler.NewParser().Parse([]byte(src))
	require.NoError(t, err)
	return doc
}

func problems(t *testing.T, err error) string {
	t.Helper()
	var ve *graph.ValidationError
	require.True(t, errors.As(err, &ve), "expected *graph.ValidationError, got %v", err)
	var lines []string
	for _, p := range ve.Problems {
		lines = append(lines, p.String())
	}
	return strings.Join(lines, "\n")
}

const inn = `
id: inn
version: "1"
title: The Inn
start_node_id: start
mechanics:
  stats: [{id: coin, min: 0, initial: 3}]
  flags: [{id: drunk}]
nodes:
  - {id: start, kind: start}
  - id: bar
    kind: choice
    content:
      options:
        - {id: drink, text: Order a drink, expression: stat.coin >= 2, target_node_id: tipsy}
        - {id: sleep, text: Go to bed}
  - {id: tipsy, kind: ending, content: {ending_id: merry}}
  - {id: rested, kind: ending, content: {ending_id: rested}}
edges:
  - {id: e1, source_node_id: start, target_node_id: bar}
  - {id: e2, source_node_id: bar, source_port: sleep, target_node_id: rested, condition_expression: "stat.coin < 10 AND NOT flag.drunk"}
`

func TestBuild_IndexesAndCompiles(t *testing.T) {
	store, err := graph.Build(parse(t, inn))
	require.NoError(t, err)

	assert.Equal(t, "inn", store.ID())
	assert.Equal(t, "1", store.Version())
	assert.Equal(t, "The Inn", store.Title())
	assert.Equal(t, "start", store.StartNodeID())
	assert.Len(t, store.Nodes(), 4)

	bar, ok := store.Node("bar")
	require.True(t, ok)
	drink, _ := bar.Choice.Option("drink")
	assert.Equal(t, []domain.Condition{{Type: domain.CondPlayerStat, Parameter: "coin", Operator: domain.OpGreaterThanOrEqual, Value: 2}}, drink.Conditions)

	edges := store.EdgesFrom("bar", "sleep")
	require.Len(t, edges, 1)
	assert.Equal(t, domain.LogicAnd, edges[0].Logic)
	assert.Len(t, edges[0].Conditions, 2)
	assert.Empty(t, store.EdgesFrom("bar", ""))

	ending, ok := store.EndingNode("rested")
	require.True(t, ok)
	assert.Equal(t, "rested", ending.ID)
	assert.Empty(t, store.Diagnostics())
}

func TestBuild_DocumentIsolation(t *testing.T) {
	doc := parse(t, inn)
	store, err := graph.Build(doc)
	require.NoError(t, err)

	doc.Nodes[0].ID = "mutated"
	doc.Edges[0].TargetNodeID = "nowhere"
	_, ok := store.Node("start")
	assert.True(t, ok)
	assert.Equal(t, "bar", store.Edges("start")[0].TargetNodeID)

	copyDoc := store.Document()
	copyDoc.Title = "Changed"
	assert.Equal(t, "The Inn", store.Title())

	again, err := graph.Build(copyDoc)
	require.NoError(t, err)
	assert.Equal(t, store.AllEdges(), again.AllEdges())
}

func TestBuild_Rejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"missing start", `
id: s
start_node_id: nope
nodes: [{id: a, kind: ending, content: {ending_id: x}}]`, "start node"},
		{"dangling edge", `
id: s
start_node_id: a
nodes: [{id: a, kind: start}]
edges: [{source_node_id: a, target_node_id: ghost}]`, "ghost"},
		{"duplicate node", `
id: s
start_node_id: a
nodes:
  - {id: a, kind: start}
  - {id: a, kind: scene}
  - {id: end, kind: ending, content: {ending_id: x}}
edges: [{source_node_id: a, target_node_id: end}]`, "duplicate node id"},
		{"branch without default", `
id: s
start_node_id: a
nodes:
  - {id: a, kind: start}
  - id: b
    kind: condition_branch
    content: {branches: [{port: p, conditions: [{type: flag_set, parameter: f}]}]}
  - {id: end, kind: ending, content: {ending_id: x}}
edges:
  - {source_node_id: a, target_node_id: b}
  - {source_node_id: b, source_port: p, target_node_id: end}`, "no default output port"},
		{"branch port without edge", `
id: s
start_node_id: a
nodes:
  - {id: a, kind: start}
  - id: b
    kind: condition_branch
    content: {default_output_port_id: d, branches: [{port: p, conditions: [{type: flag_set, parameter: f}]}]}
  - {id: end, kind: ending, content: {ending_id: x}}
edges:
  - {source_node_id: a, target_node_id: b}
  - {source_node_id: b, source_port: d, target_node_id: end}`, `port "p" has no edge`},
		{"bad expression", `
id: s
start_node_id: a
nodes:
  - {id: a, kind: start}
  - {id: end, kind: ending, content: {ending_id: x}}
edges: [{source_node_id: a, target_node_id: end, condition_expression: "stat.x >= 1 AND flag.y OR flag.z"}]`, "AND"},
		{"dead end", `
id: s
start_node_id: a
nodes:
  - {id: a, kind: start}
  - {id: b, kind: scene}
edges: [{source_node_id: a, target_node_id: b}]`, "no outgoing edge"},
		{"unbounded cycle", `
id: s
start_node_id: a
nodes:
  - {id: a, kind: start}
  - {id: m, kind: variable_manipulation}
  - {id: j, kind: jump, content: {target_node_id: m}}
edges:
  - {source_node_id: a, target_node_id: m}
  - {source_node_id: m, target_node_id: j}`, "cycle"},
		{"jump to nowhere", `
id: s
start_node_id: a
nodes:
  - {id: a, kind: start}
  - {id: j, kind: jump, content: {target_node_id: void}}
edges: [{source_node_id: a, target_node_id: j}]`, "void"},
		{"unknown option port", `
id: s
start_node_id: a
nodes:
  - {id: a, kind: choice, content: {options: [{id: o, text: O, target_node_id: end}]}}
  - {id: end, kind: ending, content: {ending_id: x}}
edges: [{source_node_id: a, source_port: other, target_node_id: end}]`, "unknown option"},
		{"bounds inverted", `
id: s
start_node_id: a
mechanics: {stats: [{id: hp, min: 5, max: 1}]}
nodes:
  - {id: a, kind: start}
  - {id: end, kind: ending, content: {ending_id: x}}
edges: [{source_node_id: a, target_node_id: end}]`, "min greater than max"},
		{"bad variable initial", `
id: s
start_node_id: a
mechanics: {variables: [{id: age, type: int, initial: old}]}
nodes:
  - {id: a, kind: start}
  - {id: end, kind: ending, content: {ending_id: x}}
edges: [{source_node_id: a, target_node_id: end}]`, "initial value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := graph.Build(parse(t, tt.src))
			require.Error(t, err)
			assert.Contains(t, problems(t, err), tt.want)
		})
	}
}

func TestBuild_Warnings(t *testing.T) {
	store, err := graph.Build(parse(t, `
id: warn
start_node_id: intro
nodes:
  - {id: intro, kind: scene}
  - {id: first, kind: ending, content: {ending_id: same, title: First}}
  - {id: second, kind: ending, content: {ending_id: same, title: Second}}
  - {id: island, kind: scene}
edges:
  - {source_node_id: intro, target_node_id: first, conditions: [{type: player_stat, parameter: luck, operator: greater_than, value: 1}]}
  - {source_node_id: intro, target_node_id: second}
  - {source_node_id: island, target_node_id: second}
  - {source_node_id: first, target_node_id: intro}
`))
	require.NoError(t, err)

	codes := map[string]string{}
	for _, d := range store.Diagnostics() {
		codes[d.Code] = d.NodeID
	}
	assert.Equal(t, "intro", codes[graph.CodeStartKind])
	assert.Equal(t, "second", codes[graph.CodeDuplicateEnding])
	assert.Equal(t, "intro", codes[graph.CodeUnknownParameter])
	assert.Equal(t, "first", codes[graph.CodeEndingEdges])
	assert.Equal(t, "island", codes[graph.CodeUnreachable])

	first, ok := store.EndingNode("same")
	require.True(t, ok)
	assert.Equal(t, "first", first.ID)
}

func TestBuild_ReachabilityDepth(t *testing.T) {
	src := `
id: deep
start_node_id: a
nodes:
  - {id: a, kind: start}
  - {id: b, kind: scene}
  - {id: c, kind: scene}
  - {id: end, kind: ending, content: {ending_id: x}}
edges:
  - {source_node_id: a, target_node_id: b}
  - {source_node_id: b, target_node_id: c}
  - {source_node_id: c, target_node_id: end}
`
	store, err := graph.Build(parse(t, src))
	require.NoError(t, err)
	assert.Empty(t, store.Diagnostics())

	shallow, err := graph.Build(parse(t, src), graph.WithReachabilityDepth(1))
	require.NoError(t, err)
	var unreachable []string
	for _, d := range shallow.Diagnostics() {
		if d.Code == graph.CodeUnreachable {
			unreachable = append(unreachable, d.NodeID)
		}
	}
	assert.Equal(t, []string{"c", "end"}, unreachable)
}
