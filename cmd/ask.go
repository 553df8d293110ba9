package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openinfra/beacon/internal/app"
	"github.com/openinfra/beacon/internal/config"
	"github.com/openinfra/beacon/internal/knowledge"
	"github.com/openinfra/beacon/internal/log"
	"github.com/openinfra/beacon/internal/query"
)

var (
	askCountry string
	askTopic   string
	askYear    int
	askInclude []string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a research question against the indexed corpus",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askCountry, "country", "", "filter by country code")
	askCmd.Flags().StringVar(&askTopic, "topic", "", "filter by document type")
	askCmd.Flags().IntVar(&askYear, "year", 0, "filter by publication year")
	askCmd.Flags().StringSliceVar(&askInclude, "include", nil,
		"analysis blocks: context, connections, evolution, predictions, alignment")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx := cmd.Context()
	logger := log.New(log.Config{Level: slog.LevelWarn})

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() { _ = a.Close() }()

	include, err := parseInclude(askInclude)
	if err != nil {
		return err
	}

	resp, err := a.Query.Ask(ctx, query.Request{
		Query:   strings.Join(args, " "),
		Filter:  knowledge.Filter{Topic: askTopic, Country: askCountry, Year: askYear},
		Page:    knowledge.Page{Limit: cfg.PageSize},
		Include: include,
	})
	if err != nil {
		return fmt.Errorf("answering question: %w", err)
	}

	printResponse(cmd, resp)
	return nil
}

func parseInclude(blocks []string) (query.Include, error) {
	var in query.Include
	for _, b := range blocks {
		switch strings.TrimSpace(b) {
		case "context":
			in.LivingContext = true
		case "connections":
			in.Connections = true
		case "evolution":
			in.Evolution = true
		case "predictions":
			in.Predictions = true
		case "alignment":
			in.Alignment = true
		default:
			return in, fmt.Errorf("unknown include block %q", b)
		}
	}
	return in, nil
}

func printResponse(cmd *cobra.Command, resp query.Response) {
	out := cmd.OutOrStdout()

	if len(resp.Answer.Bullets) == 0 {
		fmt.Fprintln(out, "No grounded answer could be produced from the indexed documents.")
	}
	for _, b := range resp.Answer.Bullets {
		fmt.Fprintf(out, "- %s\n", b.Text)
		for _, c := range b.Citations {
			fmt.Fprintf(out, "    [%d] %s (%s)\n", c.Snippet, c.Title, c.URL)
		}
	}

	if len(resp.Items) > 0 {
		fmt.Fprintln(out, "\nSources:")
		for _, it := range resp.Items {
			fmt.Fprintf(out, "  %.2f  %s", it.Score, it.Title)
			if it.Year > 0 {
				fmt.Fprintf(out, " (%d)", it.Year)
			}
			fmt.Fprintln(out)
		}
	}

	if resp.LivingContext != nil {
		fmt.Fprintf(out, "\nCurrent context: %s\n%s\n", resp.LivingContext.Headline, resp.LivingContext.Synthesis)
		for _, f := range resp.LivingContext.Freshness {
			fmt.Fprintf(out, "  [%s] %s\n", f.Kind, f.Statement)
		}
		for _, c := range resp.LivingContext.Contradictions {
			fmt.Fprintf(out, "  contradiction (%s): %s\n", c.Severity, c.Description)
		}
	}

	for _, c := range resp.Connections {
		fmt.Fprintf(out, "\nconnection [%s] %s <-> %s: %s\n", c.Kind, c.DocA, c.DocB, c.Insight)
	}
	for _, s := range resp.Evolution {
		fmt.Fprintf(out, "\nphase %s (%d-%d): %s\n", s.Phase, s.Period.From, s.Period.To, s.Summary)
	}
	for _, p := range resp.Predictions {
		fmt.Fprintf(out, "\nscenario %s (confidence %.2f): %s\n", p.Scenario, p.Confidence, p.Projection)
	}
	if resp.Alignment != nil {
		fmt.Fprintf(out, "\nalignment score: %.1f/10\n", resp.Alignment.OverallScore)
		for _, ps := range resp.Alignment.PerPrinciple {
			fmt.Fprintf(out, "  %-16s %.1f\n", ps.Principle, ps.Score)
		}
	}
}
