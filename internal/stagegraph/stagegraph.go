// Package stagegraph defines the ordering of pipeline stages and which
// stages become eligible as predecessors complete. The graph is loaded
// from YAML so deployments can adjust ordering without a rebuild.
package stagegraph

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"lifescribe/internal/jobs"
	"lifescribe/internal/services"
)

//go:embed default_graph.yaml
var defaultGraphYAML []byte

// Capability names the kind of vendor work a stage performs.
type Capability string

const (
	CapabilityUpload Capability = "upload"
	CapabilityScan   Capability = "scan"
	CapabilityOCR    Capability = "ocr"
	CapabilityASR    Capability = "asr"
	CapabilityIndex  Capability = "index"
)

// NeedsText reports whether the capability consumes text extracted by
// earlier stages rather than the media file itself.
func (c Capability) NeedsText() bool { return c == CapabilityIndex }

type stageSpec struct {
	Name       string   `yaml:"name"`
	Capability string   `yaml:"capability"`
	Requires   []string `yaml:"requires"`
}

type graphSpec struct {
	Stages []stageSpec `yaml:"stages"`
}

// Node describes one stage in the graph.
type Node struct {
	Stage      jobs.Stage
	Capability Capability
	Requires   []jobs.Stage
}

// Graph is an immutable stage dependency graph. All lookups are safe for
// concurrent use.
type Graph struct {
	nodes map[jobs.Stage]Node
	order []jobs.Stage
}

// Default returns the built-in graph: upload, then virus scan, then OCR
// and ASR in parallel, then indexing once both have finished.
func Default() *Graph {
	g, err := Parse(defaultGraphYAML)
	if err != nil {
		panic(fmt.Sprintf("stagegraph: embedded default graph invalid: %v", err))
	}
	return g
}

// Load reads a graph from the given YAML file. An empty path returns the
// built-in default.
func Load(path string) (*Graph, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "stagegraph", "load", "read graph file", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML graph definition.
func Parse(data []byte) (*Graph, error) {
	var spec graphSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "stagegraph", "parse", "decode graph yaml", err)
	}
	if len(spec.Stages) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "stagegraph", "parse", "graph defines no stages", nil)
	}

	g := &Graph{nodes: make(map[jobs.Stage]Node, len(spec.Stages))}
	for _, s := range spec.Stages {
		stage, ok := jobs.ParseStage(s.Name)
		if !ok {
			return nil, services.Wrap(services.ErrConfiguration, "stagegraph", "parse", fmt.Sprintf("unknown stage %q", s.Name), nil)
		}
		if _, dup := g.nodes[stage]; dup {
			return nil, services.Wrap(services.ErrConfiguration, "stagegraph", "parse", fmt.Sprintf("stage %q defined twice", s.Name), nil)
		}
		capability, err := parseCapability(s.Capability)
		if err != nil {
			return nil, err
		}
		node := Node{Stage: stage, Capability: capability}
		for _, req := range s.Requires {
			pred, ok := jobs.ParseStage(req)
			if !ok {
				return nil, services.Wrap(services.ErrConfiguration, "stagegraph", "parse", fmt.Sprintf("stage %q requires unknown stage %q", s.Name, req), nil)
			}
			node.Requires = append(node.Requires, pred)
		}
		g.nodes[stage] = node
		g.order = append(g.order, stage)
	}

	for _, node := range g.nodes {
		for _, req := range node.Requires {
			if _, ok := g.nodes[req]; !ok {
				return nil, services.Wrap(services.ErrConfiguration, "stagegraph", "parse", fmt.Sprintf("stage %q requires %q which is not in the graph", node.Stage, req), nil)
			}
		}
	}
	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}
	return g, nil
}

func parseCapability(raw string) (Capability, error) {
	switch Capability(raw) {
	case CapabilityUpload, CapabilityScan, CapabilityOCR, CapabilityASR, CapabilityIndex:
		return Capability(raw), nil
	}
	return "", services.Wrap(services.ErrConfiguration, "stagegraph", "parse", fmt.Sprintf("unknown capability %q", raw), nil)
}

func (g *Graph) checkAcyclic() error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[jobs.Stage]int, len(g.nodes))

	var visit func(stage jobs.Stage) error
	visit = func(stage jobs.Stage) error {
		switch state[stage] {
		case visiting:
			return services.Wrap(services.ErrConfiguration, "stagegraph", "parse", fmt.Sprintf("dependency cycle through stage %q", stage), nil)
		case done:
			return nil
		}
		state[stage] = visiting
		for _, req := range g.nodes[stage].Requires {
			if err := visit(req); err != nil {
				return err
			}
		}
		state[stage] = done
		return nil
	}

	for _, stage := range g.order {
		if err := visit(stage); err != nil {
			return err
		}
	}
	return nil
}

// Stages returns every stage in definition order.
func (g *Graph) Stages() []jobs.Stage {
	out := make([]jobs.Stage, len(g.order))
	copy(out, g.order)
	return out
}

// Contains reports whether the graph defines the stage.
func (g *Graph) Contains(stage jobs.Stage) bool {
	_, ok := g.nodes[stage]
	return ok
}

// CapabilityFor returns the vendor capability a stage exercises.
func (g *Graph) CapabilityFor(stage jobs.Stage) (Capability, bool) {
	node, ok := g.nodes[stage]
	return node.Capability, ok
}

// Requires returns the direct predecessors of a stage.
func (g *Graph) Requires(stage jobs.Stage) []jobs.Stage {
	node, ok := g.nodes[stage]
	if !ok {
		return nil
	}
	out := make([]jobs.Stage, len(node.Requires))
	copy(out, node.Requires)
	return out
}

// FirstStages returns the stages with no predecessors. New media enters
// the pipeline through these.
func (g *Graph) FirstStages() []jobs.Stage {
	var out []jobs.Stage
	for _, stage := range g.order {
		if len(g.nodes[stage].Requires) == 0 {
			out = append(out, stage)
		}
	}
	return out
}

// Ready reports whether every predecessor of the stage is in the
// completed set.
func (g *Graph) Ready(stage jobs.Stage, completed map[jobs.Stage]bool) bool {
	node, ok := g.nodes[stage]
	if !ok {
		return false
	}
	for _, req := range node.Requires {
		if !completed[req] {
			return false
		}
	}
	return true
}

// Eligible returns the stages whose predecessors are all completed but
// which are not themselves completed, in definition order so enqueueing
// is deterministic.
func (g *Graph) Eligible(completed map[jobs.Stage]bool) []jobs.Stage {
	var out []jobs.Stage
	for _, stage := range g.order {
		if completed[stage] {
			continue
		}
		if g.Ready(stage, completed) {
			out = append(out, stage)
		}
	}
	return out
}

