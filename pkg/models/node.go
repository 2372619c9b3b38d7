package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// NodeType identifies the kind of step a JourneyNode performs.
type NodeType string

const (
	NodeTypeSendSMS             NodeType = "SEND_SMS"
	NodeTypeAddToCampaign       NodeType = "ADD_TO_CAMPAIGN"
	NodeTypeRemoveFromCampaign  NodeType = "REMOVE_FROM_CAMPAIGN"
	NodeTypeExecuteWebhook      NodeType = "EXECUTE_WEBHOOK"
	NodeTypeTimeDelay           NodeType = "TIME_DELAY"
	NodeTypeCondition           NodeType = "CONDITION"
	NodeTypeWeightedPath        NodeType = "WEIGHTED_PATH"
	NodeTypeMakeCall            NodeType = "MAKE_CALL"
	NodeTypeUpdateContactStatus NodeType = "UPDATE_CONTACT_STATUS"
)

// NodeTypes lists every supported node type.
var NodeTypes = []NodeType{
	NodeTypeSendSMS,
	NodeTypeAddToCampaign,
	NodeTypeRemoveFromCampaign,
	NodeTypeExecuteWebhook,
	NodeTypeTimeDelay,
	NodeTypeCondition,
	NodeTypeWeightedPath,
	NodeTypeMakeCall,
	NodeTypeUpdateContactStatus,
}

// IsBranching reports whether the next node is chosen by evaluation rather than nextNodeId.
func (t NodeType) IsBranching() bool {
	return t == NodeTypeCondition || t == NodeTypeWeightedPath
}

// ErrUnknownNodeType is returned when a node carries a type this engine does not know.
var ErrUnknownNodeType = errors.New("unknown node type")

// Branch is one predicate-guarded edge of a CONDITION node.
type Branch struct {
	ID         string    `json:"id,omitempty"`
	Label      string    `json:"label,omitempty"`
	Condition  Condition `json:"condition"`
	NextNodeID string    `json:"next_node_id,omitempty"`
}

// Condition is a single {field, operator, value} predicate.
type Condition struct {
	Field    string `json:"field"    validate:"required"`
	Operator string `json:"operator" validate:"required"`
	Value    any    `json:"value,omitempty"`
}

// DefaultBranch is taken when no CONDITION branch matches.
type DefaultBranch struct {
	NextNodeID string `json:"next_node_id,omitempty"`
}

// WeightedPath is one edge of a WEIGHTED_PATH node.
type WeightedPath struct {
	ID         string  `json:"id,omitempty"`
	Label      string  `json:"label,omitempty"`
	Percentage float64 `json:"percentage"`
	NextNodeID string  `json:"next_node_id,omitempty"`
}

// Connections holds a node's outbound edges.
type Connections struct {
	NextNodeID    string            `json:"next_node_id,omitempty"`
	Outputs       map[string]string `json:"outputs,omitempty"` // outcome -> node id
	Branches      []Branch          `json:"branches,omitempty"`
	DefaultBranch *DefaultBranch    `json:"default_branch,omitempty"`
	Paths         []WeightedPath    `json:"paths,omitempty"`
}

// Targets returns every node id referenced by these connections. Output edges come in map order.
func (c Connections) Targets() []string {
	var targets []string

	add := func(id string) {
		if id != "" {
			targets = append(targets, id)
		}
	}

	add(c.NextNodeID)

	for _, id := range c.Outputs {
		add(id)
	}

	for _, b := range c.Branches {
		add(b.NextNodeID)
	}

	if c.DefaultBranch != nil {
		add(c.DefaultBranch.NextNodeID)
	}

	for _, p := range c.Paths {
		add(p.NextNodeID)
	}

	return targets
}

// JourneyNode is one step in a journey graph. Config always holds the
// config struct matching Type.
type JourneyNode struct {
	ID          string      `json:"id"`
	JourneyID   string      `json:"journey_id"`
	Type        NodeType    `json:"type"        validate:"required"`
	Name        string      `json:"name"`
	Config      NodeConfig  `json:"config"`
	Connections Connections `json:"connections"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// UnmarshalJSON decodes the node and dispatches config decoding on the node type.
func (n *JourneyNode) UnmarshalJSON(data []byte) error {
	type alias JourneyNode

	aux := &struct {
		Config json.RawMessage `json:"config"`
		*alias
	}{alias: (*alias)(n)}

	err := json.Unmarshal(data, aux)
	if err != nil {
		return err
	}

	config, err := DecodeNodeConfig(n.Type, aux.Config)
	if err != nil {
		return err
	}

	n.Config = config

	return nil
}

// DecodeNodeConfig decodes raw JSON into the config struct for nodeType.
func DecodeNodeConfig(nodeType NodeType, raw json.RawMessage) (NodeConfig, error) {
	var config NodeConfig

	switch nodeType {
	case NodeTypeSendSMS:
		config = &SendSMSConfig{}
	case NodeTypeMakeCall:
		config = &MakeCallConfig{}
	case NodeTypeAddToCampaign, NodeTypeRemoveFromCampaign:
		config = &CampaignConfig{}
	case NodeTypeExecuteWebhook:
		config = &WebhookConfig{}
	case NodeTypeTimeDelay:
		config = &TimeDelayConfig{}
	case NodeTypeCondition:
		config = &ConditionConfig{}
	case NodeTypeWeightedPath:
		config = &WeightedPathConfig{}
	case NodeTypeUpdateContactStatus:
		config = &UpdateContactStatusConfig{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, nodeType)
	}

	if len(raw) == 0 || string(raw) == "null" {
		return config, nil
	}

	err := json.Unmarshal(raw, config)
	if err != nil {
		return nil, fmt.Errorf("invalid %s config: %w", nodeType, err)
	}

	return config, nil
}
