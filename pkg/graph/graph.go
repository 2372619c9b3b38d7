// Package graph resolves entry nodes and outbound edges of a journey graph.
package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dukex/journey/pkg/models"
	"github.com/google/uuid"
)

var (
	// ErrNoEntryNode indicates the journey has no nodes.
	ErrNoEntryNode = errors.New("journey has no entry node")

	// ErrMultipleEntryNodes indicates more than one node has no incoming edge.
	ErrMultipleEntryNodes = errors.New("journey has more than one entry node")

	// ErrMalformedNodeID indicates an edge references a non-canonical node identifier.
	ErrMalformedNodeID = errors.New("malformed node id")

	// ErrDanglingEdge indicates an edge references a node outside the journey.
	ErrDanglingEdge = errors.New("edge references unknown node")

	// ErrInvalidPaths indicates a weighted path node cannot select a path.
	ErrInvalidPaths = errors.New("weighted path node has no selectable path")

	// ErrNoBranches indicates a condition node has neither branches nor a default.
	ErrNoBranches = errors.New("condition node has no branches")
)

// RoutingError describes an edge that cannot be followed.
type RoutingError struct {
	NodeID string // Node the edge leaves from
	Target string // Referenced node id
	Err    error
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("cannot route from node %s to %q: %v", e.NodeID, e.Target, e.Err)
}

func (e *RoutingError) Unwrap() error {
	return e.Err
}

func (e *RoutingError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsRoutingError reports whether err is a fatal routing error.
func IsRoutingError(err error) bool {
	var routingErr *RoutingError

	return errors.As(err, &routingErr)
}

// ValidateNodeID checks that id is a canonical UUID.
func ValidateNodeID(id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil || parsed.String() != id {
		return fmt.Errorf("%w: %q", ErrMalformedNodeID, id)
	}

	return nil
}

// Graph is an indexed, immutable view over a journey's nodes.
type Graph struct {
	byID    map[string]*models.JourneyNode
	ordered []*models.JourneyNode
}

// New indexes nodes by id and sorts them by creation order.
func New(nodes []*models.JourneyNode) *Graph {
	ordered := make([]*models.JourneyNode, 0, len(nodes))
	byID := make(map[string]*models.JourneyNode, len(nodes))

	for _, n := range nodes {
		if n == nil {
			continue
		}

		ordered = append(ordered, n)
		byID[n.ID] = n
	}

	sortByCreation(ordered)

	return &Graph{byID: byID, ordered: ordered}
}

// Nodes returns the nodes in creation order.
func (g *Graph) Nodes() []*models.JourneyNode {
	return g.ordered
}

// Node looks a node up by id.
func (g *Graph) Node(id string) (*models.JourneyNode, bool) {
	n, ok := g.byID[id]

	return n, ok
}

// EntryCandidates returns the nodes nothing points to, in creation order.
func (g *Graph) EntryCandidates() []*models.JourneyNode {
	targeted := make(map[string]bool)

	for _, n := range g.ordered {
		for _, id := range n.Connections.Targets() {
			targeted[id] = true
		}
	}

	var candidates []*models.JourneyNode

	for _, n := range g.ordered {
		if !targeted[n.ID] {
			candidates = append(candidates, n)
		}
	}

	return candidates
}

// Entry returns the earliest-created node with no incoming edge, or the
// earliest-created node when every node is targeted.
func (g *Graph) Entry() (*models.JourneyNode, error) {
	if len(g.ordered) == 0 {
		return nil, ErrNoEntryNode
	}

	candidates := g.EntryCandidates()
	if len(candidates) > 0 {
		return candidates[0], nil
	}

	return g.ordered[0], nil
}

// Next resolves the node that follows node for the given result. A nil node
// with a nil error means the journey completes for the contact.
func (g *Graph) Next(node *models.JourneyNode, result models.ExecutionResult) (*models.JourneyNode, error) {
	id, err := ResolveNextNode(node, result)
	if err != nil || id == "" {
		return nil, err
	}

	next, ok := g.byID[id]
	if !ok {
		return nil, &RoutingError{NodeID: node.ID, Target: id, Err: ErrDanglingEdge}
	}

	return next, nil
}

// Validate checks the whole graph: every edge is canonical and resolvable,
// branching nodes can route, and there is a single canonical entry node.
func (g *Graph) Validate() error {
	if len(g.ordered) == 0 {
		return ErrNoEntryNode
	}

	var errs []error

	for _, n := range g.ordered {
		for _, target := range n.Connections.Targets() {
			if err := ValidateNodeID(target); err != nil {
				errs = append(errs, &RoutingError{NodeID: n.ID, Target: target, Err: err})

				continue
			}

			if _, ok := g.byID[target]; !ok {
				errs = append(errs, &RoutingError{NodeID: n.ID, Target: target, Err: ErrDanglingEdge})
			}
		}

		switch n.Type {
		case models.NodeTypeWeightedPath:
			if totalPercentage(n.Connections.Paths) <= 0 {
				errs = append(errs, fmt.Errorf("node %s: %w", n.ID, ErrInvalidPaths))
			}
		case models.NodeTypeCondition:
			if len(n.Connections.Branches) == 0 && n.Connections.DefaultBranch == nil {
				errs = append(errs, fmt.Errorf("node %s: %w", n.ID, ErrNoBranches))
			}
		}
	}

	if candidates := g.EntryCandidates(); len(candidates) > 1 {
		ids := make([]string, 0, len(candidates))
		for _, c := range candidates {
			ids = append(ids, c.ID)
		}

		errs = append(errs, fmt.Errorf("%w: %v", ErrMultipleEntryNodes, ids))
	}

	return errors.Join(errs...)
}

// ResolveEntryNode returns the entry node of nodes.
func ResolveEntryNode(nodes []*models.JourneyNode) (*models.JourneyNode, error) {
	return New(nodes).Entry()
}

// ResolveNextNode returns the id of the node that follows node, or "" when the
// journey completes. Branching nodes use the evaluated target carried in the
// result; other nodes route on the outcome.
func ResolveNextNode(node *models.JourneyNode, result models.ExecutionResult) (string, error) {
	if result.EndJourney {
		return "", nil
	}

	var next string

	if node.Type.IsBranching() {
		next = result.NextNodeID
	} else {
		next = routeOutcome(node.Connections, result.Outcome)
	}

	if next == "" {
		return "", nil
	}

	if err := ValidateNodeID(next); err != nil {
		return "", &RoutingError{NodeID: node.ID, Target: next, Err: err}
	}

	return next, nil
}

func routeOutcome(conns models.Connections, outcome string) string {
	if id, ok := conns.Outputs[outcome]; ok && id != "" {
		return id
	}

	if models.IsFailureOutcome(outcome) {
		return conns.Outputs[models.OutcomeFailed]
	}

	if outcome == models.OutcomeTransferred {
		if id, ok := conns.Outputs[models.OutcomeAnswered]; ok && id != "" {
			return id
		}
	}

	return conns.NextNodeID
}

func totalPercentage(paths []models.WeightedPath) float64 {
	var total float64

	for _, p := range paths {
		if p.Percentage > 0 {
			total += p.Percentage
		}
	}

	return total
}

func sortByCreation(nodes []*models.JourneyNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].CreatedAt.Equal(nodes[j].CreatedAt) {
			return nodes[i].ID < nodes[j].ID
		}

		return nodes[i].CreatedAt.Before(nodes[j].CreatedAt)
	})
}
