package cmd

import (
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"launchpad/internal/cli"
	"launchpad/internal/client"
	pkgstrings "launchpad/pkg/strings"
)

var appsCategory string

var appsCmd = &cobra.Command{
	Use:     "apps",
	Aliases: []string{"applications"},
	Short:   "Work with the bookmarked applications",
}

var appsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the applications you can open",
	Long: `List the applications bookmarked in launchpad, grouped by category.

Examples:
  launchpad apps list
  launchpad apps list --category Monitoring
  launchpad apps list -o template --template '{{ range . }}{{ .Name }}{{ "\n" }}{{ end }}'`,
	Args: cobra.NoArgs,
	RunE: runAppsList,
}

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "Work with application categories",
}

var categoriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List application categories",
	Args:  cobra.NoArgs,
	RunE:  runCategoriesList,
}

func init() {
	rootCmd.AddCommand(appsCmd)
	appsCmd.AddCommand(appsListCmd)
	rootCmd.AddCommand(categoriesCmd)
	categoriesCmd.AddCommand(categoriesListCmd)

	appsListCmd.Flags().StringVar(&appsCategory, "category", "", "Only show applications in this category")
	addOutputFlags(appsListCmd)
	addOutputFlags(categoriesListCmd)
}

func runAppsList(cmd *cobra.Command, args []string) error {
	p, err := printer(cmd)
	if err != nil {
		return err
	}

	return withApplication(cmd, func(a *application) error {
		var (
			apps []client.Application
			cats []client.Category
		)
		err := cli.Progress(cmd.ErrOrStderr(), quiet || p.Format != cli.OutputFormatTable, "Loading applications...", func() error {
			var err error
			if cats, err = a.api.Categories(cmd.Context()); err != nil {
				return err
			}
			apps, err = a.api.Applications(cmd.Context())
			return err
		})
		if err != nil {
			return err
		}

		apps = filterByCategory(sortApplications(apps, cats), cats, appsCategory)

		names := categoryNames(cats)
		t := cli.Table{Headers: []string{"Name", "Category", "Isolated", "URL"}}
		for _, app := range apps {
			t.Rows = append(t.Rows, []string{app.Name, names[categoryID(app)], yesNo(app.Isolated), pkgstrings.TruncateMiddle(app.URL, pkgstrings.DefaultCellWidth)})
		}
		return p.Print(t, apps)
	})
}

func runCategoriesList(cmd *cobra.Command, args []string) error {
	p, err := printer(cmd)
	if err != nil {
		return err
	}

	return withApplication(cmd, func(a *application) error {
		cats, err := a.api.Categories(cmd.Context())
		if err != nil {
			return err
		}
		sort.SliceStable(cats, func(i, j int) bool { return cats[i].SortOrder < cats[j].SortOrder })

		t := cli.Table{Headers: []string{"ID", "Name"}}
		for _, c := range cats {
			t.Rows = append(t.Rows, []string{strconv.FormatInt(c.ID, 10), c.Name})
		}
		return p.Print(t, cats)
	})
}

func categoryID(app client.Application) int64 {
	if app.CategoryID == nil {
		return -1
	}
	return *app.CategoryID
}

func categoryNames(cats []client.Category) map[int64]string {
	names := make(map[int64]string, len(cats))
	for _, c := range cats {
		names[c.ID] = c.Name
	}
	return names
}

// sortApplications orders applications by category order, then by their own
// order. Uncategorised applications come last.
func sortApplications(apps []client.Application, cats []client.Category) []client.Application {
	rank := make(map[int64]int, len(cats))
	for _, c := range cats {
		rank[c.ID] = c.SortOrder
	}
	catRank := func(app client.Application) int {
		if r, ok := rank[categoryID(app)]; ok {
			return r
		}
		return int(^uint(0) >> 1)
	}

	sorted := append([]client.Application(nil), apps...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := catRank(sorted[i]), catRank(sorted[j])
		if ri != rj {
			return ri < rj
		}
		return sorted[i].SortOrder < sorted[j].SortOrder
	})
	return sorted
}

func filterByCategory(apps []client.Application, cats []client.Category, name string) []client.Application {
	if name == "" {
		return apps
	}
	names := categoryNames(cats)
	var out []client.Application
	for _, app := range apps {
		if strings.EqualFold(names[categoryID(app)], name) {
			out = append(out, app)
		}
	}
	return out
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
