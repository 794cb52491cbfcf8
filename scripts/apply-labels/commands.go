package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/cleansing-engine/pkg/labels"
	"github.com/ekaya-inc/cleansing-engine/pkg/models"
	"github.com/ekaya-inc/cleansing-engine/pkg/resultview"
	"github.com/ekaya-inc/cleansing-engine/pkg/services/workflow"
)

// ============================================================================
// labels
// ============================================================================

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "List the label set for the import file and the records each would label",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		registry := labels.NewRegistry(s.results.Results, s.results.Labels)
		return printLabels(cmd.OutOrStdout(), registry.Labels(), s.results.Results)
	},
}

func printLabels(out io.Writer, set []models.Label, groups []*models.RecordValidationGroup) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCOLOR\tSTATUS\tRECORDS")
	for _, a := range labels.Match(set, groups) {
		status := "existing"
		if a.Label.IsEphemeral() {
			status = "new"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", a.Label.Name, a.Label.Color, status, len(a.RecordIDs))
	}
	return tw.Flush()
}

// ============================================================================
// results
// ============================================================================

var (
	prefsPath    string
	sortColumn   string
	filterArgs   []string
	clearFilters bool
	pageSize     int
	page         int
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Show one page of cleansing results with remembered sort and filters",
	RunE:  runResults,
}

func init() {
	resultsCmd.Flags().StringVar(&prefsPath, "prefs", defaultPrefsPath(), "Preference database path")
	resultsCmd.Flags().StringVar(&sortColumn, "sort", "", "Sort by column; repeating the current column flips the direction")
	resultsCmd.Flags().StringArrayVar(&filterArgs, "filter", nil, "Filter as column=value (repeatable); replaces remembered filters")
	resultsCmd.Flags().BoolVar(&clearFilters, "clear-filters", false, "Forget remembered filters")
	resultsCmd.Flags().IntVar(&pageSize, "page-size", 0, "Records per page (remembered)")
	resultsCmd.Flags().IntVar(&page, "page", 1, "Page to show")
}

func runResults(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	params, err := parseFilters(filterArgs)
	if err != nil {
		return err
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(prefsPath), 0o755); err != nil {
		return fmt.Errorf("failed to create preference directory: %w", err)
	}
	store, err := resultview.OpenSQLiteStore(ctx, prefsPath, fmt.Sprintf("org-%d", organizationID))
	if err != nil {
		return err
	}
	defer store.Close()

	groups := s.results.Results
	view := resultview.New("cleansing", store, resultview.DefaultColumns(), s.logger)
	view.Restore(ctx)
	switch {
	case clearFilters:
		view.ApplyFilters(ctx, groups, nil)
	case len(params) > 0:
		view.ApplyFilters(ctx, groups, params)
	default:
		view.Refilter(groups)
	}
	if sortColumn != "" && !view.SortBy(ctx, sortColumn) {
		return fmt.Errorf("column %q cannot be sorted", sortColumn)
	}
	if pageSize > 0 {
		view.SetPageSize(ctx, pageSize)
	}
	view.Sort(groups)

	rows, pages := view.Page(groups, page)
	return printResults(cmd.OutOrStdout(), view, rows, page, pages)
}

// parseFilters turns "column=value" arguments into filter params.
func parseFilters(args []string) (map[string]string, error) {
	params := make(map[string]string, len(args))
	for _, arg := range args {
		column, value, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(column) == "" {
			return nil, fmt.Errorf("invalid filter %q, expected column=value", arg)
		}
		params[strings.TrimSpace(column)] = value
	}
	return params, nil
}

func printResults(out io.Writer, view *resultview.View, rows []*models.RecordValidationGroup, page, pages int) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	columns := resultview.DefaultColumns()
	for i, c := range columns {
		title := c.Title
		switch view.SortedClass(c.Name) {
		case "sorted sort_desc":
			title += " v"
		case "sorted sort_asc":
			title += " ^"
		}
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, title)
	}
	fmt.Fprintln(tw)

	for _, g := range rows {
		for _, f := range g.Findings {
			if !f.Visible {
				continue
			}
			for _, c := range columns {
				switch c.Name {
				case resultview.ColumnField:
					fmt.Fprintf(tw, "%s\t", f.Field)
				case resultview.ColumnMessage:
					fmt.Fprintf(tw, "%s\n", f.Message)
				default:
					v, _ := g.Attribute(c.Name)
					fmt.Fprintf(tw, "%s\t", v)
				}
			}
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "\npage %d of %d\n", page, pages)
	return err
}

// ============================================================================
// apply
// ============================================================================

var (
	selectNames []string
	selectAll   bool
	jsonOutput  bool
	pushgateway string
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply the selected labels to every building whose findings carry that message",
	RunE:  runApply,
}

func init() {
	applyCmd.Flags().StringArrayVar(&selectNames, "select", nil, "Label name to apply (repeatable)")
	applyCmd.Flags().BoolVar(&selectAll, "all", false, "Apply every label in the set")
	applyCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the final workflow state as JSON")
	applyCmd.Flags().StringVar(&pushgateway, "pushgateway", "", "Push workflow metrics to this Prometheus Pushgateway URL")
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	registry := labels.NewRegistry(s.results.Results, s.results.Labels)

	names := selectNames
	if selectAll {
		names = nil
		for _, l := range registry.Labels() {
			names = append(names, l.Name)
		}
	}

	reg := prometheus.NewRegistry()
	w := workflow.NewApplyLabels(
		registry.Labels(),
		s.results.Results,
		s.client,
		workflow.Config{SubmitTimeout: timeout},
		workflow.NewMetrics(reg),
		s.logger,
	)
	if err := w.SetSelection(names...); err != nil {
		return err
	}
	applyErr := w.Apply(ctx)

	if pushgateway != "" {
		if err := push.New(pushgateway, "apply_labels").Gatherer(reg).Push(); err != nil {
			s.logger.Warn("Failed to push metrics", zap.Error(err))
		}
	}

	snap := w.Snapshot()
	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), snap.Message)
	}

	if applyErr != nil {
		return applyErr
	}
	if snap.State == workflow.StateFailed {
		return fmt.Errorf("labels were not applied (%s)", snap.Status.Kind)
	}
	return w.Done()
}
