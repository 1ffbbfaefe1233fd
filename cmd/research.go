package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/khizarrm/outreach/internal/model"
	"github.com/khizarrm/outreach/internal/pipeline"
	"github.com/khizarrm/outreach/internal/workflow"
)

var (
	researchFormat   string
	researchTemporal bool
)

var researchCmd = &cobra.Command{
	Use:   "research <company name or domain>",
	Short: "Research a company and find its leadership",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		query := strings.Join(args, " ")

		var (
			res *model.PipelineResult
			err error
		)
		if researchTemporal {
			res, err = researchViaTemporal(ctx, query)
		} else {
			res, err = researchLocal(ctx, query)
		}
		if err != nil {
			zap.L().Error("research failed",
				zap.String("query", query),
				zap.Int("status", pipeline.StatusCode(err)),
				zap.Error(err),
			)
			return eris.Errorf("research %q: %s", query, pipeline.Message(err))
		}

		if researchFormat == "table" {
			printResult(os.Stdout, res)
			return nil
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func researchLocal(ctx context.Context, query string) (*model.PipelineResult, error) {
	env, err := initEnv(ctx, "research")
	if err != nil {
		return nil, err
	}
	defer env.Close()
	return env.Pipeline.Run(ctx, query)
}

func researchViaTemporal(ctx context.Context, query string) (*model.PipelineResult, error) {
	c, err := dialTemporal()
	if err != nil {
		return nil, err
	}
	defer c.Close()

	res, err := workflow.Execute(ctx, c, cfg.Temporal.TaskQueue, query)
	if err != nil {
		return nil, workflow.AsPipelineError(err)
	}
	return res, nil
}

func dialTemporal() (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		return nil, eris.Wrap(err, "dial temporal")
	}
	return c, nil
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#20B9B4"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D8B90"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// printResult renders a result as a company summary followed by a people
// table.
func printResult(w io.Writer, res *model.PipelineResult) {
	fmt.Fprintln(w, titleStyle.Render(res.Company))
	fields := []struct {
		label string
		value *string
	}{
		{"Industry", res.Industry},
		{"Headquarters", res.Headquarters},
		{"Tech stack", res.TechStack},
		{"Revenue", res.Revenue},
		{"Funding", res.Funding},
	}
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Website:"), res.Website)
	for _, f := range fields {
		if f.value != nil {
			fmt.Fprintf(w, "%s %s\n", labelStyle.Render(f.label+":"), *f.value)
		}
	}
	if res.YearFounded != nil {
		fmt.Fprintf(w, "%s %d\n", labelStyle.Render("Founded:"), *res.YearFounded)
	}
	if res.Description != nil {
		fmt.Fprintf(w, "\n%s\n", *res.Description)
	}
	fmt.Fprintln(w)

	if len(res.People) == 0 {
		fmt.Fprintln(w, labelStyle.Render("No leadership found."))
	} else {
		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#16858E"))).
			StyleFunc(func(row, _ int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return cellStyle
			}).
			Headers("NAME", "ROLE", "EMAILS")
		for _, p := range res.People {
			t.Row(p.Name, p.Role, strings.Join(p.Emails, ", "))
		}
		fmt.Fprintln(w, t.Render())
	}

	fmt.Fprintf(w, "%s %d in / %d out tokens, $%.4f\n",
		labelStyle.Render("Usage:"), res.Usage.InputTokens, res.Usage.OutputTokens, res.Usage.Cost)
}

func init() {
	researchCmd.Flags().StringVar(&researchFormat, "format", "json", "output format (json, table)")
	researchCmd.Flags().BoolVar(&researchTemporal, "temporal", false, "run through the Temporal worker instead of in-process")
	rootCmd.AddCommand(researchCmd)
}
