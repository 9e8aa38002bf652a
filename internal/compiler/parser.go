package compiler

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/aretw0/novella/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Parser converts raw story documents into domain values. Every variant is
// decoded strictly: unknown kinds, types and fields are errors.
type Parser struct{}

// NewParser creates a new parser instance.
func NewParser() *Parser {
	return &Parser{}
}

// Parse decodes a JSON or YAML document.
func (p *Parser) Parse(data []byte) (*domain.Document, error) {
	raw, err := decodeRaw(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return p.ParseMap(raw)
}

func decodeRaw(data []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	var raw map[string]any
	if trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		return normalize(raw).(map[string]any), nil
	}
	if err := yaml.Unmarshal(trimmed, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// ParseMap decodes an already unmarshalled document tree.
func (p *Parser) ParseMap(raw map[string]any) (*domain.Document, error) {
	rest, special := split(raw, "mechanics", "nodes", "edges", "version")

	var header struct {
		ID          string `mapstructure:"id"`
		Title       string `mapstructure:"title"`
		StartNodeID string `mapstructure:"start_node_id"`
	}
	if err := decode(rest, &header); err != nil {
		return nil, fmt.Errorf("document: %w", err)
	}
	doc := &domain.Document{ID: header.ID, Title: header.Title, StartNodeID: header.StartNodeID}
	if v, ok := special["version"]; ok && v != nil {
		doc.Version = fmt.Sprint(v)
	}

	if m, ok := special["mechanics"]; ok && m != nil {
		mm, ok := m.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("mechanics: expected an object, got %T", m)
		}
		mech, err := p.ParseMechanics(mm)
		if err != nil {
			return nil, err
		}
		doc.Mechanics = mech
	}

	nodes, err := list(special["nodes"], "nodes")
	if err != nil {
		return nil, err
	}
	for i, n := range nodes {
		node, err := p.ParseNode(n)
		if err != nil {
			return nil, fmt.Errorf("nodes[%d]: %w", i, err)
		}
		doc.Nodes = append(doc.Nodes, node)
	}

	edges, err := list(special["edges"], "edges")
	if err != nil {
		return nil, err
	}
	for i, e := range edges {
		edge, err := p.ParseEdge(e)
		if err != nil {
			return nil, fmt.Errorf("edges[%d]: %w", i, err)
		}
		doc.Edges = append(doc.Edges, edge)
	}
	return doc, nil
}

// ParseNode decodes one node with its kind-specific content.
func (p *Parser) ParseNode(raw map[string]any) (*domain.Node, error) {
	rest, special := split(raw, "content")
	var w struct {
		ID       string           `mapstructure:"id"`
		Kind     string           `mapstructure:"kind"`
		Title    string           `mapstructure:"title"`
		Position *domain.Position `mapstructure:"position"`
	}
	if err := decode(rest, &w); err != nil {
		return nil, err
	}
	if w.ID == "" {
		return nil, fmt.Errorf("node missing ID")
	}
	node, err := domain.NewNode(w.ID, domain.NodeKind(w.Kind), w.Title)
	if err != nil {
		return nil, fmt.Errorf("node %q: %w", w.ID, err)
	}
	node.Position = w.Position

	content := map[string]any{}
	if c, ok := special["content"]; ok && c != nil {
		cm, ok := c.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("node %q: content must be an object, got %T", w.ID, c)
		}
		content = cm
	}
	if err := p.decodeContent(node, content); err != nil {
		return nil, fmt.Errorf("node %q: content: %w", w.ID, err)
	}
	return node, nil
}

func (p *Parser) decodeContent(node *domain.Node, raw map[string]any) error {
	switch node.Kind {
	case domain.KindStart:
		rest, special := split(raw, "actions")
		if err := decode(rest, node.Start); err != nil {
			return err
		}
		acts, err := p.parseActions(special["actions"])
		node.Start.Actions = acts
		return err
	case domain.KindScene:
		rest, special := split(raw, "actions")
		if err := decode(rest, node.Scene); err != nil {
			return err
		}
		acts, err := p.parseActions(special["actions"])
		node.Scene.Actions = acts
		return err
	case domain.KindVariableManipulation:
		rest, special := split(raw, "actions")
		if err := decode(rest, node.Manipulation); err != nil {
			return err
		}
		acts, err := p.parseActions(special["actions"])
		node.Manipulation.Actions = acts
		return err
	case domain.KindChoice:
		rest, special := split(raw, "options")
		if err := decode(rest, node.Choice); err != nil {
			return err
		}
		opts, err := list(special["options"], "options")
		if err != nil {
			return err
		}
		for i, o := range opts {
			opt, err := p.parseOption(o)
			if err != nil {
				return fmt.Errorf("options[%d]: %w", i, err)
			}
			node.Choice.Options = append(node.Choice.Options, opt)
		}
		return nil
	case domain.KindConditionBranch:
		rest, special := split(raw, "branches")
		if err := decode(rest, node.Branch); err != nil {
			return err
		}
		branches, err := list(special["branches"], "branches")
		if err != nil {
			return err
		}
		for i, b := range branches {
			bRest, bSpecial := split(b, "conditions")
			var br domain.Branch
			if err := decode(bRest, &br); err != nil {
				return fmt.Errorf("branches[%d]: %w", i, err)
			}
			if br.Conditions, err = p.parseConditions(bSpecial["conditions"]); err != nil {
				return fmt.Errorf("branches[%d]: %w", i, err)
			}
			node.Branch.Branches = append(node.Branch.Branches, br)
		}
		return nil
	case domain.KindLoopEnd:
		rest, special := split(raw, "conditions")
		if err := decode(rest, node.LoopEnd); err != nil {
			return err
		}
		conds, err := p.parseConditions(special["conditions"])
		node.LoopEnd.Conditions = conds
		return err
	case domain.KindEnding:
		return decode(raw, node.Ending)
	case domain.KindNote:
		return decode(raw, node.Note)
	case domain.KindGroup:
		return decode(raw, node.Group)
	case domain.KindJump:
		return decode(raw, node.Jump)
	case domain.KindParallelStart, domain.KindParallelEnd:
		return decode(raw, node.Parallel)
	case domain.KindLoopStart:
		return decode(raw, node.LoopStart)
	}
	return fmt.Errorf("%w: %q", domain.ErrUnknownNodeKind, node.Kind)
}

func (p *Parser) parseOption(raw map[string]any) (domain.ChoiceOption, error) {
	rest, special := split(raw, "conditions", "actions")
	var opt domain.ChoiceOption
	if err := decode(rest, &opt); err != nil {
		return opt, err
	}
	var err error
	if opt.Conditions, err = p.parseConditions(special["conditions"]); err != nil {
		return opt, err
	}
	opt.Actions, err = p.parseActions(special["actions"])
	return opt, err
}

// ParseEdge decodes one edge.
func (p *Parser) ParseEdge(raw map[string]any) (domain.Edge, error) {
	rest, special := split(raw, "conditions")
	var e domain.Edge
	if err := decode(rest, &e); err != nil {
		return e, err
	}
	var err error
	e.Conditions, err = p.parseConditions(special["conditions"])
	return e, err
}

// ParseMechanics decodes the mechanics catalogue.
func (p *Parser) ParseMechanics(raw map[string]any) (domain.Mechanics, error) {
	rest, special := split(raw, "stats", "relationships", "items")
	var m domain.Mechanics
	if err := decode(rest, &m); err != nil {
		return m, fmt.Errorf("mechanics: %w", err)
	}

	stats, err := list(special["stats"], "stats")
	if err != nil {
		return m, err
	}
	for i, s := range stats {
		sRest, sSpecial := split(s, "on_min", "on_max")
		var def domain.StatDefinition
		if err := decode(sRest, &def); err != nil {
			return m, fmt.Errorf("mechanics.stats[%d]: %w", i, err)
		}
		if def.OnMin, err = p.parseActions(sSpecial["on_min"]); err != nil {
			return m, fmt.Errorf("mechanics.stats[%d].on_min: %w", i, err)
		}
		if def.OnMax, err = p.parseActions(sSpecial["on_max"]); err != nil {
			return m, fmt.Errorf("mechanics.stats[%d].on_max: %w", i, err)
		}
		m.Stats = append(m.Stats, def)
	}

	rels, err := list(special["relationships"], "relationships")
	if err != nil {
		return m, err
	}
	for i, r := range rels {
		var def domain.RelationshipDefinition
		if err := decode(r, &def); err != nil {
			return m, fmt.Errorf("mechanics.relationships[%d]: %w", i, err)
		}
		m.Relationships = append(m.Relationships, def)
	}

	items, err := list(special["items"], "items")
	if err != nil {
		return m, err
	}
	for i, it := range items {
		iRest, iSpecial := split(it, "on_use")
		var def domain.ItemDefinition
		if err := decode(iRest, &def); err != nil {
			return m, fmt.Errorf("mechanics.items[%d]: %w", i, err)
		}
		if def.OnUse, err = p.parseActions(iSpecial["on_use"]); err != nil {
			return m, fmt.Errorf("mechanics.items[%d].on_use: %w", i, err)
		}
		m.Items = append(m.Items, def)
	}
	return m, nil
}

func (p *Parser) parseConditions(v any) ([]domain.Condition, error) {
	items, err := list(v, "conditions")
	if err != nil {
		return nil, err
	}
	var out []domain.Condition
	for i, raw := range items {
		c, err := ParseCondition(raw)
		if err != nil {
			return nil, fmt.Errorf("conditions[%d]: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// ParseCondition decodes a single condition and rejects unknown type or
// operator tags.
func ParseCondition(raw map[string]any) (domain.Condition, error) {
	var c domain.Condition
	if err := decode(raw, &c); err != nil {
		return c, err
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (p *Parser) parseActions(v any) ([]domain.Action, error) {
	items, err := list(v, "actions")
	if err != nil {
		return nil, err
	}
	var out []domain.Action
	for i, raw := range items {
		a, err := ParseAction(raw)
		if err != nil {
			return nil, fmt.Errorf("actions[%d]: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// ParseAction decodes a flat action object into its variant.
func ParseAction(raw map[string]any) (domain.Action, error) {
	rest, special := split(raw, "type")
	t, _ := special["type"].(string)
	a := domain.Action{Type: domain.ActionType(t)}

	var err error
	if target, ok := a.Type.IsModify(); ok {
		a.Modify = &domain.ModifyAction{}
		err = decode(rest, a.Modify)
		a.Modify.Target = target
	} else {
		switch a.Type {
		case domain.ActNavigate:
			a.Navigate = &domain.NavigateAction{}
			err = decode(rest, a.Navigate)
		case domain.ActUseItem:
			a.UseItem = &domain.UseItemAction{}
			err = decode(rest, a.UseItem)
		case domain.ActEndBranch:
			a.End = &domain.EndAction{}
			err = decode(rest, a.End)
		case domain.ActTriggerEvent:
			a.Event = &domain.EventAction{}
			err = decode(rest, a.Event)
		case domain.ActDelay:
			a.Delay = &domain.DelayAction{}
			err = decode(rest, a.Delay)
		default:
			return a, fmt.Errorf("%w: %q", domain.ErrUnknownActionType, t)
		}
	}
	if err != nil {
		return a, fmt.Errorf("action %q: %w", t, err)
	}
	if err := a.Validate(); err != nil {
		return a, err
	}
	return a, nil
}

// normalize converts json.Number leaves to int or float64 so that JSON and
// YAML documents produce the same value types.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalize(e)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i)
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	}
	return v
}

func decode(input any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		Result:      out,
		TagName:     "mapstructure",
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// split separates the listed keys from the rest of the object.
func split(raw map[string]any, keys ...string) (rest map[string]any, special map[string]any) {
	rest = make(map[string]any, len(raw))
	special = make(map[string]any, len(keys))
	for k, v := range raw {
		rest[k] = v
	}
	for _, k := range keys {
		if v, ok := rest[k]; ok {
			special[k] = v
			delete(rest, k)
		}
	}
	return rest, special
}

func list(v any, field string) ([]map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected a list, got %T", field, v)
	}
	out := make([]map[string]any, 0, len(arr))
	for i, e := range arr {
		m, ok := e.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s[%d]: expected an object, got %T", field, i, e)
		}
		out = append(out, m)
	}
	return out, nil
}
