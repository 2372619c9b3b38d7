package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dukex/journey/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

var (
	ErrDuplicateNodeKey = errors.New("duplicate node key")
	ErrUnknownNodeKey   = errors.New("connection references an unknown node key")
)

// Definition is a journey described in YAML. Nodes reference each other by
// key; keys become node ids when the definition is built.
type Definition struct {
	Name            string         `yaml:"name"`
	Description     string         `yaml:"description"`
	AutoEnroll      bool           `yaml:"auto_enroll"`
	Schedule        map[string]any `yaml:"schedule"`
	EntryCriteria   map[string]any `yaml:"entry_criteria"`
	RemovalCriteria map[string]any `yaml:"removal_criteria"`
	Nodes           []NodeDefinition `yaml:"nodes"`
}

type NodeDefinition struct {
	Key         string          `yaml:"key"`
	Type        models.NodeType `yaml:"type"`
	Name        string          `yaml:"name"`
	Config      map[string]any  `yaml:"config"`
	Connections map[string]any  `yaml:"connections"`
}

func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition %s: %w", path, err)
	}

	var def Definition

	err = yaml.Unmarshal(data, &def)
	if err != nil {
		return nil, fmt.Errorf("failed to parse definition %s: %w", path, err)
	}

	return &def, nil
}

// Build turns the definition into a journey and its nodes. Node creation
// times follow file order, so the first unreferenced node is the entry.
func (d *Definition) Build(tenantID string, now time.Time, validate *validator.Validate) (*models.Journey, []*models.JourneyNode, error) {
	journey := &models.Journey{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		Name:          d.Name,
		Description:   d.Description,
		Status:        models.JourneyStatusDraft,
		EntryCriteria: d.EntryCriteria,
		AutoEnroll:    d.AutoEnroll,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if d.Schedule != nil {
		journey.Schedule = &models.ScheduleConstraints{}

		err := convert(d.Schedule, journey.Schedule)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid schedule: %w", err)
		}
	}

	err := convert(d.RemovalCriteria, &journey.RemovalCriteria)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid removal criteria: %w", err)
	}

	err = validate.Struct(journey)
	if err != nil {
		return nil, nil, err
	}

	ids := make(map[string]string, len(d.Nodes))

	for _, n := range d.Nodes {
		if _, ok := ids[n.Key]; ok || n.Key == "" {
			return nil, nil, fmt.Errorf("%w: %q", ErrDuplicateNodeKey, n.Key)
		}

		ids[n.Key] = uuid.NewString()
	}

	nodes := make([]*models.JourneyNode, 0, len(d.Nodes))

	for i, n := range d.Nodes {
		node, err := n.build(journey.ID, ids, now.Add(time.Duration(i)*time.Millisecond), validate)
		if err != nil {
			return nil, nil, fmt.Errorf("node %s: %w", n.Key, err)
		}

		nodes = append(nodes, node)
	}

	return journey, nodes, nil
}

func (n NodeDefinition) build(journeyID string, ids map[string]string, created time.Time, validate *validator.Validate) (*models.JourneyNode, error) {
	raw, err := json.Marshal(n.Config)
	if err != nil {
		return nil, err
	}

	config, err := models.DecodeNodeConfig(n.Type, raw)
	if err != nil {
		return nil, err
	}

	err = validate.Struct(config)
	if err != nil {
		return nil, err
	}

	var conns models.Connections

	err = convert(n.Connections, &conns)
	if err != nil {
		return nil, fmt.Errorf("invalid connections: %w", err)
	}

	err = resolveKeys(&conns, ids)
	if err != nil {
		return nil, err
	}

	name := n.Name
	if name == "" {
		name = n.Key
	}

	return &models.JourneyNode{
		ID:          ids[n.Key],
		JourneyID:   journeyID,
		Type:        n.Type,
		Name:        name,
		Config:      config,
		Connections: conns,
		CreatedAt:   created,
		UpdatedAt:   created,
	}, nil
}

func resolveKeys(conns *models.Connections, ids map[string]string) error {
	resolve := func(key *string) error {
		if *key == "" {
			return nil
		}

		id, ok := ids[*key]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownNodeKey, *key)
		}

		*key = id

		return nil
	}

	errs := []error{resolve(&conns.NextNodeID)}

	for outcome, key := range conns.Outputs {
		errs = append(errs, resolve(&key))
		conns.Outputs[outcome] = key
	}

	for i := range conns.Branches {
		errs = append(errs, resolve(&conns.Branches[i].NextNodeID))
	}

	if conns.DefaultBranch != nil {
		errs = append(errs, resolve(&conns.DefaultBranch.NextNodeID))
	}

	for i := range conns.Paths {
		errs = append(errs, resolve(&conns.Paths[i].NextNodeID))
	}

	return errors.Join(errs...)
}

// convert maps YAML-decoded values onto a JSON-tagged model.
func convert(in map[string]any, out any) error {
	if in == nil {
		return nil
	}

	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}

	return json.Unmarshal(raw, out)
}
