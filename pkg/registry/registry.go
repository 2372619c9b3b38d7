// Package registry maps node types to their executors.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidConfig is returned when a node config does not match its type's schema.
var ErrInvalidConfig = errors.New("invalid node config")

type Registry struct {
	logger    *slog.Logger
	mu        sync.RWMutex
	executors map[models.NodeType]protocol.NodeExecutor
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:    log,
		executors: make(map[models.NodeType]protocol.NodeExecutor),
	}
}

// Register adds an executor, replacing any executor of the same type.
func (r *Registry) Register(executor protocol.NodeExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.executors[executor.Type()] = executor

	r.logger.Debug("registered node executor", "type", executor.Type())
}

// Get returns the executor for nodeType.
func (r *Registry) Get(nodeType models.NodeType) (protocol.NodeExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executor, ok := r.executors[nodeType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownNodeType, nodeType)
	}

	return executor, nil
}

// Executors returns every registered executor ordered by type.
func (r *Registry) Executors() []protocol.NodeExecutor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executors := make([]protocol.NodeExecutor, 0, len(r.executors))
	for _, executor := range r.executors {
		executors = append(executors, executor)
	}

	slices.SortFunc(executors, func(a, b protocol.NodeExecutor) int {
		return strings.Compare(string(a.Type()), string(b.Type()))
	})

	return executors
}

// HealthCheck reports whether every node type has an executor.
func (r *Registry) HealthCheck() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []string

	for _, nodeType := range models.NodeTypes {
		if _, ok := r.executors[nodeType]; !ok {
			missing = append(missing, string(nodeType))
		}
	}

	if len(missing) > 0 {
		return "Missing executors: " + strings.Join(missing, ", "), false
	}

	return fmt.Sprintf("%d executors registered", len(r.executors)), true
}

// Execute runs the node with its type's executor. A node type without an
// executor is a configuration error.
func (r *Registry) Execute(ctx context.Context, in *protocol.ExecutionInput) (protocol.Result, error) {
	executor, err := r.Get(in.Node.Type)
	if err != nil {
		return protocol.Result{}, protocol.NewConfigError(in.Node.ID, "no executor for node type", err)
	}

	return executor.Execute(ctx, in)
}

// ValidateConfig checks a node's config against the JSON schema of its type.
func (r *Registry) ValidateConfig(node *models.JourneyNode) error {
	executor, err := r.Get(node.Type)
	if err != nil {
		return err
	}

	if node.Config == nil {
		return fmt.Errorf("%w: %s node has no config", ErrInvalidConfig, node.Type)
	}

	raw, err := json.Marshal(node.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal node config: %w", err)
	}

	schemaLoader := gojsonschema.NewGoLoader(executor.Schema())
	dataLoader := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("failed to validate %s config: %w", node.Type, err)
	}

	if !result.Valid() {
		var errs []string
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return nil
}
