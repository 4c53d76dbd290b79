package serializer

import (
	"fmt"
	"sort"

	yaml "gopkg.in/yaml.v2"

	"github.com/sorryhyun/DiPeO-sub002/diagram"
	"github.com/sorryhyun/DiPeO-sub002/errors"
)

// The readable format is a lossy, human-editable YAML view of an export
// bundle: nodes addressed by display label, connections written as
// label-to-label pairs. It is produced for review and diffing; the native
// JSON format remains the round-trip source of truth.

type readableDiagram struct {
	Version     string               `yaml:"version"`
	Name        string               `yaml:"name,omitempty"`
	Description string               `yaml:"description,omitempty"`
	Nodes       []readableNode       `yaml:"nodes"`
	Connections []readableConnection `yaml:"connections,omitempty"`
	Persons     []readablePerson     `yaml:"persons,omitempty"`
}

type readableNode struct {
	Label    string         `yaml:"label"`
	Type     string         `yaml:"type"`
	Position map[string]int `yaml:"position"`
	Props    map[string]any `yaml:"props,omitempty"`
}

type readableConnection struct {
	From        string `yaml:"from"`
	To          string `yaml:"to"`
	ContentType string `yaml:"content_type,omitempty"`
	Label       string `yaml:"label,omitempty"`
	Branch      string `yaml:"branch,omitempty"`
}

type readablePerson struct {
	Label   string `yaml:"label"`
	Service string `yaml:"service"`
	Model   string `yaml:"model"`
}

// MarshalReadable encodes an export bundle in the human-readable YAML
// format. Node display labels must be resolvable; nodes without a label fall
// back to their id. Output ordering is deterministic.
func MarshalReadable(d diagram.Diagram) ([]byte, error) {
	labels := nodeLabels(d)

	rd := readableDiagram{
		Version:     d.Metadata.Version,
		Name:        d.Metadata.Name,
		Description: d.Metadata.Description,
	}
	if rd.Version == "" {
		rd.Version = "1.0"
	}

	for _, id := range sortedNodeIDs(d.Nodes) {
		node := d.Nodes[id]
		rn := readableNode{
			Label: labels[id],
			Type:  string(node.Type),
			Position: map[string]int{
				"x": int(node.Position.X),
				"y": int(node.Position.Y),
			},
		}
		if len(node.Data) > 0 {
			rn.Props = make(map[string]any, len(node.Data))
			for k, v := range node.Data {
				if k == "label" {
					continue
				}
				rn.Props[k] = v
			}
			if len(rn.Props) == 0 {
				rn.Props = nil
			}
		}
		rd.Nodes = append(rd.Nodes, rn)
	}

	for _, id := range sortedArrowIDs(d.Arrows) {
		arrow := d.Arrows[id]
		from, err := endpointRef(arrow.Source, d, labels)
		if err != nil {
			return nil, errors.WrapInvalid(err, "serializer", "MarshalReadable", "source resolution")
		}
		to, err := endpointRef(arrow.Target, d, labels)
		if err != nil {
			return nil, errors.WrapInvalid(err, "serializer", "MarshalReadable", "target resolution")
		}
		rc := readableConnection{
			From:        from,
			To:          to,
			ContentType: string(arrow.ContentType),
			Label:       arrow.Label,
		}
		if branch, ok := arrow.Branch(); ok {
			rc.Branch = branch
		}
		rd.Connections = append(rd.Connections, rc)
	}

	for _, id := range sortedPersonIDs(d.Persons) {
		p := d.Persons[id]
		rd.Persons = append(rd.Persons, readablePerson{
			Label:   p.Label,
			Service: string(p.LLMConfig.Service),
			Model:   p.LLMConfig.Model,
		})
	}

	data, err := yaml.Marshal(rd)
	if err != nil {
		return nil, errors.WrapInvalid(err, "serializer", "MarshalReadable", "yaml encoding")
	}
	return data, nil
}

// endpointRef renders a handle endpoint as "{node label}" for the default
// handle or "{node label}_{handle label}" otherwise.
func endpointRef(id diagram.HandleID, d diagram.Diagram, labels map[diagram.NodeID]string) (string, error) {
	h, ok := d.Handles[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", errors.ErrHandleNotFound, id)
	}
	nodeLabel, ok := labels[h.NodeID]
	if !ok {
		return "", fmt.Errorf("%w: %s", errors.ErrNodeNotFound, h.NodeID)
	}
	if h.Label == "default" {
		return nodeLabel, nil
	}
	return nodeLabel + "_" + h.Label, nil
}

// nodeLabels maps each node to a unique display label, suffixing collisions
// with the node id so connections stay unambiguous.
func nodeLabels(d diagram.Diagram) map[diagram.NodeID]string {
	labels := make(map[diagram.NodeID]string, len(d.Nodes))
	used := make(map[string]bool, len(d.Nodes))
	for _, id := range sortedNodeIDs(d.Nodes) {
		node := d.Nodes[id]
		label, _ := node.Data["label"].(string)
		if label == "" {
			label = string(id)
		}
		if used[label] {
			label = label + " (" + string(id) + ")"
		}
		used[label] = true
		labels[id] = label
	}
	return labels
}

func sortedNodeIDs(nodes map[diagram.NodeID]diagram.Node) []diagram.NodeID {
	ids := make([]diagram.NodeID, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedPersonIDs(persons map[diagram.PersonID]diagram.Person) []diagram.PersonID {
	ids := make([]diagram.PersonID, 0, len(persons))
	for id := range persons {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
