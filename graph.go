package catafolk

import (
	"strings"

	"github.com/pkg/errors"
)

// node is an operation node of a compiled graph.
type node struct {
	name    string
	opName  string
	op      Operation
	inputs  []string
	outputs []string
	params  *Params
}

// edges records which node produces a value and which nodes consume it.
// producer is -1 for values that must be supplied as inputs.
type edges struct {
	producer  int
	consumers []int
}

// graph is the compiled form of a Transformer: an arena of nodes plus the
// producer/consumer edges of every value name.
type graph struct {
	nodes  []*node
	values map[string]*edges
	// names in order of first appearance, for deterministic queries.
	names []string
	// order lists node indices so that every node comes after the
	// producers of its inputs.
	order []int

	roots, inputs, leaves []string
}

func compileGraph(nodes []*node) (*graph, error) {
	g := &graph{
		nodes:  nodes,
		values: make(map[string]*edges),
	}
	value := func(name string) *edges {
		e, ok := g.values[name]
		if !ok {
			e = &edges{producer: -1}
			g.values[name] = e
			g.names = append(g.names, name)
		}
		return e
	}
	for i, n := range nodes {
		for _, in := range n.inputs {
			e := value(in)
			if len(e.consumers) == 0 || e.consumers[len(e.consumers)-1] != i {
				e.consumers = append(e.consumers, i)
			}
		}
		for _, out := range n.outputs {
			if out == EmptyInput {
				return nil, errors.Errorf("node %s: '%s' is reserved and can't be an output", n.name, EmptyInput)
			}
			e := value(out)
			if e.producer >= 0 {
				return nil, errors.Errorf("output '%s' is produced by both %s and %s", out, nodes[e.producer].name, n.name)
			}
			e.producer = i
		}
	}
	if err := g.sort(); err != nil {
		return nil, err
	}

	for _, name := range g.names {
		e := g.values[name]
		switch {
		case e.producer < 0:
			if name == EmptyInput {
				continue
			}
			g.inputs = append(g.inputs, name)
			if len(e.consumers) == 1 {
				g.roots = append(g.roots, name)
			}
		case len(e.consumers) == 0:
			g.leaves = append(g.leaves, name)
		}
	}
	return g, nil
}

// sort orders the nodes topologically with a depth first search, failing
// on the first cycle found.
func (g *graph) sort() error {
	const (
		unvisited = iota
		onStack
		done
	)
	state := make([]int, len(g.nodes))
	post := make([]int, 0, len(g.nodes))
	var stack []string

	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case done:
			return nil
		case onStack:
			start := 0
			for j, name := range stack {
				if name == g.nodes[i].name {
					start = j
				}
			}
			cycle := append(stack[start:], g.nodes[i].name)
			return errors.Errorf("cycle detected: %s", strings.Join(cycle, " -> "))
		}
		state[i] = onStack
		stack = append(stack, g.nodes[i].name)
		for _, out := range g.nodes[i].outputs {
			for _, c := range g.values[out].consumers {
				if err := visit(c); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[i] = done
		post = append(post, i)
		return nil
	}
	for i := range g.nodes {
		if err := visit(i); err != nil {
			return err
		}
	}
	g.order = make([]int, len(post))
	for i, n := range post {
		g.order[len(post)-1-i] = n
	}
	return nil
}
