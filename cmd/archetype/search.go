package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/longregen/archetype/internal/domain/models"
	"github.com/spf13/cobra"
)

// searchCmd runs the evolutionary search
func searchCmd() *cobra.Command {
	var populationID string
	var dataFile string
	var generations int
	var finalEval bool

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run the architecture search",
		Long: `Seed a new population (or resume one with --population) and evolve it for
the configured number of generations. Each generation clusters the
population, mutates the elite of every cluster and keeps the candidates
that clear the accuracy threshold.

Required configuration:
  - LLM endpoint (ARCHETYPE_LLM_URL, ARCHETYPE_LLM_API_KEY)
  - Benchmark CSV (--data or ARCHETYPE_DATA_FILENAME)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if !cmd.Flags().Changed("generations") {
				generations = cfg.Search.NGeneration
			}
			return runSearch(ctx, cmd.OutOrStdout(), populationID, dataFile, generations, finalEval)
		},
	}

	cmd.Flags().StringVarP(&populationID, "population", "p", "", "Resume a stored population instead of seeding a new one")
	cmd.Flags().StringVarP(&dataFile, "data", "d", "", "Benchmark CSV (defaults to search.data_filename)")
	cmd.Flags().IntVarP(&generations, "generations", "g", 0, "Generations to run (defaults to search.n_generation)")
	cmd.Flags().BoolVar(&finalEval, "final-eval", true, "Score the elites on the test split when the search ends")

	return cmd
}

func runSearch(ctx context.Context, out io.Writer, populationID, dataFile string, generations int, finalEval bool) error {
	valid, test, err := loadTasks(dataFile)
	if err != nil {
		return err
	}
	if len(valid) == 0 {
		return errors.New("benchmark has no search tasks; check valid_size")
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	engine, err := newEngine(st, newGateway())
	if err != nil {
		return err
	}

	var pop *models.Population
	if populationID != "" {
		pop, err = engine.Resume(ctx, populationID)
	} else {
		pop, err = engine.Initialize(ctx, valid)
	}
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "search started", "population_id", pop.ID, "generations", generations)
	if err := engine.Run(ctx, pop, valid, generations); err != nil {
		return fmt.Errorf("search of population %s stopped: %w", pop.ID, err)
	}

	fmt.Fprintf(out, "Population %s\n\n", pop.ID)
	printFrameworks(out, pop.Elites(), false)

	if !finalEval || len(test) == 0 {
		return nil
	}
	ranked, err := engine.FinalEvaluate(ctx, pop.ID, test)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Test evaluation:")
	printFrameworks(out, ranked, true)
	return nil
}

// evaluateCmd scores a population's elites on the test split
func evaluateCmd() *cobra.Command {
	var dataFile string

	cmd := &cobra.Command{
		Use:   "evaluate <population-id>",
		Short: "Evaluate the elites of a population on the test split",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			_, test, err := loadTasks(dataFile)
			if err != nil {
				return err
			}
			if len(test) == 0 {
				return errors.New("benchmark has no test tasks; check test_size")
			}

			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			engine, err := newEngine(st, newGateway())
			if err != nil {
				return err
			}
			ranked, err := engine.FinalEvaluate(ctx, args[0], test)
			if err != nil {
				return err
			}
			printFrameworks(cmd.OutOrStdout(), ranked, true)
			return nil
		},
	}

	cmd.Flags().StringVarP(&dataFile, "data", "d", "", "Benchmark CSV (defaults to search.data_filename)")
	return cmd
}

// printFrameworks writes one row per framework. withTest adds the test
// interval column.
func printFrameworks(out io.Writer, frameworks []*models.Framework, withTest bool) {
	if len(frameworks) == 0 {
		fmt.Fprintln(out, "No frameworks.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if withTest {
		fmt.Fprintln(w, "ID\tNAME\tGEN\tFITNESS\tTEST")
	} else {
		fmt.Fprintln(w, "ID\tNAME\tGEN\tFITNESS")
	}
	for _, f := range frameworks {
		if withTest {
			test := "not evaluated"
			if f.TestCI != nil {
				test = f.TestCI.String()
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", f.ID, f.Name, f.GenerationIndex, f.FitnessString(), test)
		} else {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", f.ID, f.Name, f.GenerationIndex, f.FitnessString())
		}
	}
	w.Flush()
}
