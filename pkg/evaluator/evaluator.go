package evaluator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/protocol"
	"github.com/spaolacci/murmur3"
)

// ErrNoPaths indicates a weighted path node has nothing to choose from.
var ErrNoPaths = errors.New("no weighted paths with positive percentage")

// Selection is the edge a branching node resolved to. An empty NextNodeID
// completes the journey.
type Selection struct {
	NextNodeID string
	BranchID   string
	Default    bool
}

// EvaluateCondition walks the node's branches in order and returns the first
// match, or the default branch.
func EvaluateCondition(
	ctx context.Context,
	node *models.JourneyNode,
	contact *models.Contact,
	conv protocol.ConversationContext,
) (Selection, error) {
	for i, branch := range node.Connections.Branches {
		actual, present, err := ResolveField(ctx, branch.Condition.Field, contact, conv)
		if err != nil {
			return Selection{}, fmt.Errorf("branch %d: %w", i, err)
		}

		matched, err := Compare(actual, present, branch.Condition.Operator, branch.Condition.Value)
		if err != nil {
			return Selection{}, fmt.Errorf("branch %d: %w", i, err)
		}

		if matched {
			return Selection{NextNodeID: branch.NextNodeID, BranchID: branchID(branch, i)}, nil
		}
	}

	selection := Selection{Default: true}
	if node.Connections.DefaultBranch != nil {
		selection.NextNodeID = node.Connections.DefaultBranch.NextNodeID
	}

	return selection, nil
}

// EvaluateWeightedPath picks a path from a stable hash of contactID, so the
// same contact always lands on the same path.
func EvaluateWeightedPath(node *models.JourneyNode, contactID string) (Selection, error) {
	paths := node.Connections.Paths

	var total float64

	for _, p := range paths {
		if p.Percentage > 0 {
			total += p.Percentage
		}
	}

	if total <= 0 {
		return Selection{}, ErrNoPaths
	}

	pick := HashPercent(contactID)
	scale := 100 / total

	var cumulative float64

	last := -1

	for i, p := range paths {
		if p.Percentage <= 0 {
			continue
		}

		last = i

		cumulative += p.Percentage * scale
		if pick < cumulative {
			return Selection{NextNodeID: p.NextNodeID, BranchID: pathID(p, i)}, nil
		}
	}

	// rounding gap
	return Selection{NextNodeID: paths[last].NextNodeID, BranchID: pathID(paths[last], last)}, nil
}

// HashPercent maps key into [0, 100) with two decimals of resolution.
func HashPercent(key string) float64 {
	return float64(murmur3.Sum32([]byte(key))%10000) / 100
}

// ResolveField looks a condition field up. Supported namespaces are
// contact.*, contact.attributes.*, message.received[:campaignId] and call.*.
func ResolveField(
	ctx context.Context,
	field string,
	contact *models.Contact,
	conv protocol.ConversationContext,
) (any, bool, error) {
	switch {
	case strings.HasPrefix(field, "message."):
		return resolveMessageField(ctx, strings.TrimPrefix(field, "message."), contact, conv)
	case strings.HasPrefix(field, "call."):
		return resolveCallField(ctx, strings.TrimPrefix(field, "call."), conv)
	default:
		value, ok := ContactField(contact, field)

		return value, ok, nil
	}
}

// ContactField resolves contact.<name>, contact.attributes.<key> and bare
// attribute names against a contact.
func ContactField(contact *models.Contact, field string) (any, bool) {
	if contact == nil {
		return nil, false
	}

	name := strings.TrimPrefix(field, "contact.")

	if key, ok := strings.CutPrefix(name, "attributes."); ok {
		v, found := contact.Attributes[key]

		return v, found
	}

	switch name {
	case "id":
		return contact.ID, true
	case "firstName", "first_name":
		return contact.FirstName, true
	case "lastName", "last_name":
		return contact.LastName, true
	case "fullName", "full_name":
		return contact.FullName(), true
	case "phone":
		return contact.Phone, true
	case "email":
		return contact.Email, true
	case "leadStatus", "lead_status", "status":
		return contact.LeadStatus, true
	case "optedOut", "opted_out":
		return contact.OptedOut, true
	case "timezone":
		return contact.Timezone, true
	}

	v, found := contact.Attributes[name]

	return v, found
}

func resolveMessageField(ctx context.Context, name string, contact *models.Contact, conv protocol.ConversationContext) (any, bool, error) {
	if conv == nil {
		return false, true, nil
	}

	// received:<campaign> and received.campaign:<campaign> are the same lookup.
	key, campaignID, _ := strings.Cut(name, ":")
	key = strings.TrimSuffix(key, ".campaign")

	switch key {
	case "received", "replied":
		received, err := conv.HasInboundMessage(ctx, protocol.MessageScope{CampaignID: campaignID})
		if err != nil {
			return nil, false, fmt.Errorf("failed to check inbound messages for contact %s: %w", contactID(contact), err)
		}

		return received, true, nil
	default:
		return nil, false, nil
	}
}

func resolveCallField(ctx context.Context, name string, conv protocol.ConversationContext) (any, bool, error) {
	if conv == nil {
		return nil, false, nil
	}

	outcome, err := conv.LastCallOutcome(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load last call outcome: %w", err)
	}

	switch name {
	case "lastOutcome", "last_outcome", "outcome":
		return outcome, outcome != "", nil
	case "answered":
		return outcome == models.OutcomeAnswered || outcome == models.OutcomeTransferred, true, nil
	case "transferred":
		return outcome == models.OutcomeTransferred, true, nil
	case "noAnswer", "no_answer":
		return outcome == models.OutcomeNoAnswer, true, nil
	case "busy":
		return outcome == models.OutcomeBusy, true, nil
	case "failed":
		return outcome == models.OutcomeFailed, true, nil
	default:
		return nil, false, nil
	}
}

func contactID(c *models.Contact) string {
	if c == nil {
		return ""
	}

	return c.ID
}

func branchID(b models.Branch, i int) string {
	if b.ID != "" {
		return b.ID
	}

	return fmt.Sprintf("branch-%d", i)
}

func pathID(p models.WeightedPath, i int) string {
	if p.ID != "" {
		return p.ID
	}

	return fmt.Sprintf("path-%d", i)
}
