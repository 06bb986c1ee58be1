/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// csadmin is the operator CLI for the evidence pipeline: case and
// indicator management, bundle ingestion, bulk re-processing, and rule
// corpus builds.
package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/config"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/db"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/logger"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/models"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/queue"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/rules"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/staging"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/worker"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "csadmin",
		Short:         "Administer the caseScope evidence pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "/etc/casescope/worker.json", "Path to config file")

	root.AddCommand(
		caseCommand(),
		ingestCommand(),
		filesCommand(),
		iocCommand(),
		reprocessCommand("reindex", models.OperationReindexCase, models.OperationFull,
			"Re-run conversion, indexing, detection, and hunting"),
		reprocessCommand("redetect", models.OperationDetectCase, models.OperationDetectOnly,
			"Re-run detection against the current rule corpus"),
		reprocessCommand("rehunt", models.OperationHuntCase, models.OperationHuntOnly,
			"Re-run indicator hunting with the active indicator set"),
		rulesCommand(),
	)

	return root
}

// env holds the connections a command needs.
type env struct {
	cfg   *worker.Config
	log   logger.Logger
	store *db.Store
	queue *queue.Queue
}

func (e *env) close() {
	if e.queue != nil {
		e.queue.Close()
	}

	if e.store != nil {
		e.store.Close()
	}
}

func setup(ctx context.Context, needQueue bool) (*env, error) {
	log, err := logger.New(&logger.Config{Level: "warn"})
	if err != nil {
		return nil, err
	}

	cfg := &worker.Config{}

	if err := config.NewConfig(log).LoadAndValidate(ctx, configPath, cfg); err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, log: log}

	e.store, err = db.New(ctx, &cfg.Database, log)
	if err != nil {
		return nil, err
	}

	if needQueue {
		e.queue, err = queue.New(ctx, &cfg.Queue, log)
		if err != nil {
			e.close()
			return nil, err
		}
	}

	return e, nil
}

func caseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "case",
		Short: "Manage cases",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer e.close()

			c, err := e.store.CreateCase(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Created case %d: %s\n", c.ID, c.Name)

			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <case-id>",
		Short: "Show a case's aggregate counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caseID, err := parseCaseID(args[0])
			if err != nil {
				return err
			}

			e, err := setup(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer e.close()

			c, err := e.store.GetCase(cmd.Context(), caseID)
			if err != nil {
				return err
			}

			fmt.Printf("Case %d: %s\n", c.ID, c.Name)
			fmt.Printf("  files:      %d\n", c.FileCount)
			fmt.Printf("  events:     %d\n", c.EventCount)
			fmt.Printf("  violations: %d\n", c.ViolationCount)
			fmt.Printf("  ioc hits:   %d\n", c.IOCMatchCount)

			return nil
		},
	})

	return cmd
}

func ingestCommand() *cobra.Command {
	var caseID int64

	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Stage uploaded files or bundles into a case",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer e.close()

			stager := staging.New(e.store, e.queue, e.log)

			for _, path := range args {
				result, err := stager.Stage(cmd.Context(), caseID, path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}

				fmt.Printf("%s: queued %d, duplicates %d, artifacts %d, invalid %d\n",
					path, len(result.Queued), result.Duplicates, result.Artifacts, result.Invalid)
			}

			return nil
		},
	}

	cmd.Flags().Int64Var(&caseID, "case", 0, "Case id")
	_ = cmd.MarkFlagRequired("case")

	return cmd
}

func filesCommand() *cobra.Command {
	var (
		caseID     int64
		showHidden bool
	)

	cmd := &cobra.Command{
		Use:   "files",
		Short: "List a case's evidence files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer e.close()

			files, err := e.store.ListCaseFiles(cmd.Context(), caseID, showHidden)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tFILENAME\tFORMAT\tSTATUS\tEVENTS\tVIOLATIONS\tIOC HITS")

			for _, f := range files {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
					f.ID, f.Filename, f.Format, f.Status,
					f.AcknowledgedCount, f.ViolationCount, f.IOCMatchCount)
			}

			return w.Flush()
		},
	}

	cmd.Flags().Int64Var(&caseID, "case", 0, "Case id")
	cmd.Flags().BoolVar(&showHidden, "hidden", false, "Include hidden files")
	_ = cmd.MarkFlagRequired("case")

	return cmd
}

func iocCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ioc",
		Short: "Manage indicators of compromise",
	}

	var (
		caseID  int64
		iocType string
	)

	add := &cobra.Command{
		Use:   "add <value>",
		Short: "Add an indicator to a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer e.close()

			ind := &models.Indicator{
				CaseID: caseID,
				Type:   models.IndicatorType(iocType),
				Value:  args[0],
				Active: true,
			}

			if err := e.store.CreateIndicator(cmd.Context(), ind); err != nil {
				return err
			}

			fmt.Printf("Indicator %d added; run 'csadmin rehunt --case %d' to apply\n", ind.ID, caseID)

			return nil
		},
	}

	add.Flags().Int64Var(&caseID, "case", 0, "Case id")
	add.Flags().StringVar(&iocType, "type", string(models.IndicatorTypeFreeText), "Indicator type (ip, domain, hash, username, hostname, free_text)")
	_ = add.MarkFlagRequired("case")

	var active bool

	toggle := &cobra.Command{
		Use:   "toggle <indicator-id>",
		Short: "Enable or disable an indicator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id int64

			if _, err := fmt.Sscan(args[0], &id); err != nil {
				return fmt.Errorf("invalid indicator id %q", args[0])
			}

			e, err := setup(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer e.close()

			if err := e.store.SetIndicatorActive(cmd.Context(), id, active); err != nil {
				return err
			}

			fmt.Printf("Indicator %d active=%v; re-hunt to apply\n", id, active)

			return nil
		},
	}

	toggle.Flags().BoolVar(&active, "active", true, "Target state")

	var activeOnly bool

	list := &cobra.Command{
		Use:   "list",
		Short: "List a case's indicators",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer e.close()

			indicators, err := e.store.ListIndicators(cmd.Context(), caseID, activeOnly)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tVALUE\tACTIVE\tMATCHES")

			for _, ind := range indicators {
				matches, err := e.store.CountMatchesForIndicator(cmd.Context(), ind.ID)
				if err != nil {
					return err
				}

				fmt.Fprintf(w, "%d\t%s\t%s\t%v\t%d\n", ind.ID, ind.Type, ind.Value, ind.Active, matches)
			}

			return w.Flush()
		},
	}

	list.Flags().Int64Var(&caseID, "case", 0, "Case id")
	list.Flags().BoolVar(&activeOnly, "active", false, "Only active indicators")
	_ = list.MarkFlagRequired("case")

	cmd.AddCommand(add, toggle, list)

	return cmd
}

// reprocessCommand builds one of the reindex/redetect/rehunt commands.
// With --file the per-file variant is enqueued directly; otherwise the
// case-scoped job goes through the case lock on a worker.
func reprocessCommand(use string, caseOp, fileOp models.Operation, short string) *cobra.Command {
	var (
		caseID        int64
		fileID        string
		includeHidden bool
	)

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer e.close()

			job := &models.Job{
				ID:            uuid.New(),
				CaseID:        caseID,
				Operation:     caseOp,
				IncludeHidden: includeHidden,
			}

			if fileID != "" {
				id, err := uuid.Parse(fileID)
				if err != nil {
					return fmt.Errorf("invalid file id %q", fileID)
				}

				job.FileID = id
				job.Operation = fileOp
			}

			if err := e.queue.Enqueue(cmd.Context(), job); err != nil {
				return err
			}

			fmt.Printf("Enqueued %s job %s\n", job.Operation, job.ID)

			return nil
		},
	}

	cmd.Flags().Int64Var(&caseID, "case", 0, "Case id")
	cmd.Flags().StringVar(&fileID, "file", "", "Limit to one evidence file")
	cmd.Flags().BoolVar(&includeHidden, "include-hidden", false, "Include hidden files")
	_ = cmd.MarkFlagRequired("case")

	return cmd
}

func rulesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage the detection rule corpus",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "build",
		Short: "Build the corpus from the configured rule sources",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := logger.New(&logger.Config{Level: "info"})
			if err != nil {
				return err
			}

			cfg := &worker.Config{}

			if err := config.NewConfig(log).LoadAndValidate(cmd.Context(), configPath, cfg); err != nil {
				return err
			}

			builder := rules.NewBuilder(cfg.Detection.CorpusRoot, log)

			manifest, err := builder.Build(cmd.Context(), cfg.Detection.RuleSources)
			if err != nil {
				return err
			}

			fmt.Printf("Corpus %s: %d rules from %d sources\n",
				manifest.Version, manifest.RuleCount, len(manifest.Sources))

			return nil
		},
	})

	return cmd
}

func parseCaseID(raw string) (int64, error) {
	var id int64

	if _, err := fmt.Sscan(raw, &id); err != nil {
		return 0, fmt.Errorf("invalid case id %q", raw)
	}

	return id, nil
}
