package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/longregen/archetype/internal/conversation"
	"github.com/spf13/cobra"
)

// populationCmd inspects stored populations
func populationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "population",
		Short: "Inspect stored populations",
		Long: `Inspect stored populations.

Subcommands:
  list     List populations
  show     Show a population's frameworks and generations
  code     Print the source of a framework`,
	}

	cmd.AddCommand(
		populationListCmd(),
		populationShowCmd(),
		populationCodeCmd(),
	)

	return cmd
}

func populationListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List populations",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			populations, err := st.evolution.ListPopulations(cmd.Context(), limit, 0)
			if err != nil {
				return fmt.Errorf("failed to list populations: %w", err)
			}
			if len(populations) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No populations found.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCREATED")
			for _, p := range populations {
				fmt.Fprintf(w, "%s\t%s\n", p.ID, p.CreatedAt.Format("2006-01-02 15:04"))
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum number of populations to list")
	return cmd
}

func populationShowCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "show <population-id>",
		Short: "Show a population",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			pop, err := st.evolution.GetPopulation(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Population %s (created %s)\n", pop.ID, pop.CreatedAt.Format("2006-01-02 15:04"))
			fmt.Fprintf(out, "Frameworks: %d, generations: %d\n\n", len(pop.Frameworks), len(pop.Generations))

			if g := pop.LatestGeneration(); g != nil {
				fmt.Fprintf(out, "Generation %d clusters:\n", g.Index)
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "CLUSTER\tNAME\tMEMBERS\tELITE")
				for _, c := range g.Clusters {
					elite := "-"
					if e := c.Elite(); e != nil {
						elite = e.Name
					}
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", c.ID, c.Name, len(c.Members), elite)
				}
				w.Flush()
				fmt.Fprintln(out)
			}

			frameworks := pop.Elites()
			if all {
				frameworks = pop.Frameworks
			}
			sort.SliceStable(frameworks, func(i, j int) bool { return frameworks[i].Better(frameworks[j]) })
			printFrameworks(out, frameworks, true)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "List every framework, not only the elites")
	return cmd
}

func populationCodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "code <framework-id>",
		Short: "Print the thought process and source of a framework",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			fw, err := st.evolution.GetFramework(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "// %s (%s)\n// %s\n", fw.Name, fw.ID, fw.FitnessString())
			if fw.ParentID != "" {
				fmt.Fprintf(out, "// parent %s, directive %s\n", fw.ParentID, fw.Directive)
			}
			fmt.Fprintf(out, "/*\n%s\n*/\n\n%s\n", fw.ThoughtProcess, fw.Code)
			return nil
		},
	}
}

// historyCmd prints an agent's prompt context as the LLM sees it
func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <agent-id>",
		Short: "Show an agent's conversation history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			agent, err := st.conversations.GetAgent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			chats, err := st.conversations.AgentHistory(cmd.Context(), agent.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Agent %s (%s, %s, temperature %.2f)\n\n", agent.Name, agent.ID, agent.Model, agent.Temperature)
			for _, m := range conversation.HistoryMessages(agent.ID, chats) {
				fmt.Fprintf(out, "[%s] %s\n\n", m.Role, m.Content)
			}
			return nil
		},
	}
}
