package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/khizarrm/outreach/internal/model"
	"github.com/khizarrm/outreach/internal/store"
)

var companiesJSON bool

var companiesCmd = &cobra.Command{
	Use:   "companies",
	Short: "Browse researched companies and their leadership",
}

var companiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List companies with at least one employee",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := requireStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		companies, err := st.ListCompanies(ctx, store.CompanyFilter{Limit: limit, Offset: offset})
		if err != nil {
			return eris.Wrap(err, "companies list")
		}

		if companiesJSON {
			return writeIndented(os.Stdout, companies)
		}
		if len(companies) == 0 {
			fmt.Fprintln(os.Stderr, "No companies found.")
			return nil
		}
		formatCompanies(os.Stdout, companies)
		return nil
	},
}

var companiesEmployeesCmd = &cobra.Command{
	Use:   "employees <company-id>",
	Short: "List a company's employees",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Errorf("invalid company id %q", args[0])
		}

		st, err := requireStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		employees, err := st.ListEmployees(ctx, id)
		if err != nil {
			return eris.Wrap(err, "companies employees")
		}

		if companiesJSON {
			return writeIndented(os.Stdout, employees)
		}
		if len(employees) == 0 {
			fmt.Fprintln(os.Stderr, "No employees found.")
			return nil
		}
		formatEmployees(os.Stdout, employees)
		return nil
	},
}

func init() {
	companiesCmd.PersistentFlags().BoolVar(&companiesJSON, "json", false, "print JSON instead of a table")
	companiesListCmd.Flags().Int("limit", 50, "max number of companies to display")
	companiesListCmd.Flags().Int("offset", 0, "number of companies to skip")

	companiesCmd.AddCommand(companiesListCmd)
	companiesCmd.AddCommand(companiesEmployeesCmd)
	rootCmd.AddCommand(companiesCmd)
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatCompanies(out io.Writer, companies []model.Company) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tWEBSITE\tINDUSTRY\tEMPLOYEES\tUPDATED")
	_, _ = fmt.Fprintln(w, "--\t----\t-------\t--------\t---------\t-------")
	for _, c := range companies {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
			c.ID,
			c.Name,
			deref(c.Website),
			deref(c.Industry),
			c.EmployeeCount,
			c.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func formatEmployees(out io.Writer, employees []model.Employee) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tTITLE\tEMAIL")
	_, _ = fmt.Fprintln(w, "--\t----\t-----\t-----")
	for _, e := range employees {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.ID, e.Name, e.Title, e.Email)
	}
	_ = w.Flush()
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
