package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/3leaps/gobulk/pkg/resource"
)

var (
	kindsShowQuery bool
	kindsJSON      bool
)

var kindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List extractable resource kinds",
	Long: `List the resource kinds in the catalog with their root field, record
type and grouping rule.

Use --show-query to print the bulk export mutation and the paginated query
for each kind.`,
	Args: cobra.NoArgs,
	RunE: runKinds,
}

func init() {
	rootCmd.AddCommand(kindsCmd)
	kindsCmd.Flags().BoolVar(&kindsShowQuery, "show-query", false, "Print the export and page queries")
	kindsCmd.Flags().BoolVar(&kindsJSON, "json", false, "Output as JSON")
}

type kindView struct {
	Kind      string `json:"kind"`
	RootField string `json:"root_field"`
	TypeName  string `json:"type_name"`
	Grouping  string `json:"grouping"`
	Mutation  string `json:"bulk_mutation,omitempty"`
	PageQuery string `json:"page_query,omitempty"`
}

func runKinds(cmd *cobra.Command, _ []string) error {
	var views []kindView
	for _, k := range resource.Kinds() {
		st, err := resource.Lookup(k)
		if err != nil {
			return err
		}
		v := kindView{
			Kind:      st.Kind.String(),
			RootField: st.RootField,
			TypeName:  st.TypeName,
			Grouping:  st.Grouping.String(),
		}
		if kindsShowQuery {
			if v.Mutation, err = resource.BulkMutation(k); err != nil {
				return err
			}
			v.PageQuery = st.PageQuery
		}
		views = append(views, v)
	}

	out := cmd.OutOrStdout()
	if kindsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}

	if kindsShowQuery {
		for _, v := range views {
			_, _ = fmt.Fprintf(out, "# %s (%s, %s)\n\n", v.Kind, v.TypeName, v.Grouping)
			_, _ = fmt.Fprintf(out, "## bulk export\n%s\n\n", v.Mutation)
			_, _ = fmt.Fprintf(out, "## page query\n%s\n\n", v.PageQuery)
		}
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()
	_, _ = fmt.Fprintln(w, "KIND\tROOT FIELD\tTYPE\tGROUPING")
	for _, v := range views {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", v.Kind, v.RootField, v.TypeName, v.Grouping)
	}
	return nil
}
