package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dukex/journey/pkg/cmd"
	"github.com/dukex/journey/pkg/log"
	"github.com/dukex/journey/pkg/persistence"
	"github.com/dukex/journey/pkg/registry"
	"github.com/dukex/journey/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/urfave/cli/v3"
)

func fileFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "file",
		Aliases:  []string{"f"},
		Usage:    "Journey definition YAML file",
		Required: true,
	}
}

func ValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate a journey definition file",
		Flags: []cli.Flag{
			fileFlag(),
			logLevelFlag(),
		},
		Action: func(_ context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := slog.With("module", "journeyd", "action", "validate")

			def, err := LoadDefinition(command.String("file"))
			if err != nil {
				return err
			}

			_, nodes, err := def.Build("validate", time.Now().UTC(), validator.New(validator.WithRequiredStructEnabled()))
			if err != nil {
				return err
			}

			err = services.ValidateNodes(nodes, registry.NewSchemas(logger))
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(os.Stdout, "%s: %d nodes, valid\n", def.Name, len(nodes))

			return nil
		},
	}
}

func ImportCommand() *cli.Command {
	return &cli.Command{
		Name:    "import",
		Aliases: []string{"i"},
		Usage:   "Validate a journey definition file and store it as a draft",
		Flags: []cli.Flag{
			fileFlag(),
			databaseURLFlag(),
			&cli.StringFlag{
				Name:     "tenant",
				Usage:    "Tenant that owns the journey",
				Required: true,
				Sources:  cli.EnvVars("TENANT_ID"),
			},
			&cli.BoolFlag{
				Name:  "launch",
				Usage: "Launch the journey after importing it",
			},
			logLevelFlag(),
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := slog.With("module", "journeyd", "action", "import")

			store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := store.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			def, err := LoadDefinition(command.String("file"))
			if err != nil {
				return err
			}

			journeyID, err := importDefinition(ctx, store, def, command.String("tenant"), command.Bool("launch"), logger)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintln(os.Stdout, journeyID)

			return nil
		},
	}
}

// importDefinition stores the journey and its nodes, then optionally launches it.
func importDefinition(
	ctx context.Context,
	store persistence.Persistence,
	def *Definition,
	tenantID string,
	launch bool,
	logger *slog.Logger,
) (string, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	schemas := registry.NewSchemas(logger)

	journey, nodes, err := def.Build(tenantID, time.Now().UTC(), validate)
	if err != nil {
		return "", err
	}

	err = services.ValidateNodes(nodes, schemas)
	if err != nil {
		return "", err
	}

	journeys := services.NewJourney(store, validate, schemas, nil)

	created, err := journeys.Create(ctx, services.CreateJourneyRequest{
		TenantID:        journey.TenantID,
		Name:            journey.Name,
		Description:     journey.Description,
		Schedule:        journey.Schedule,
		EntryCriteria:   journey.EntryCriteria,
		RemovalCriteria: journey.RemovalCriteria,
		AutoEnroll:      journey.AutoEnroll,
	})
	if err != nil {
		return "", err
	}

	for _, node := range nodes {
		node.JourneyID = created.ID

		err = store.Nodes().Save(ctx, node)
		if err != nil {
			return "", fmt.Errorf("failed to save node %s: %w", node.ID, err)
		}
	}

	logger.InfoContext(ctx, "Imported journey", "journey_id", created.ID, "nodes", len(nodes))

	if launch {
		_, err = journeys.Launch(ctx, tenantID, created.ID)
		if err != nil {
			return "", err
		}

		logger.InfoContext(ctx, "Launched journey", "journey_id", created.ID)
	}

	return created.ID, nil
}
