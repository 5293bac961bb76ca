package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/floodprep/internal/variant"
)

var variantsCmd = &cobra.Command{
	Use:   "variants [name]",
	Short: "List pipeline variants, or the fields of one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := variant.Builtin()
		if err != nil {
			return err
		}
		if len(args) == 0 {
			formatVariants(os.Stdout, reg)
			return nil
		}
		v, err := reg.Get(args[0])
		if err != nil {
			return err
		}
		formatFields(os.Stdout, v)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(variantsCmd)
}

func formatVariants(out io.Writer, reg *variant.Registry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tBOUNDARY\tKEYWORD\tFIELDS\tENTRIES")
	_, _ = fmt.Fprintln(w, "----\t--------\t-------\t------\t-------")

	for _, name := range reg.Names() {
		v, err := reg.Get(name)
		if err != nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n",
			v.Name,
			v.Boundary,
			v.Keyword,
			len(v.Fields),
			len(v.Entries),
		)
	}
	_ = w.Flush()
}

func formatFields(out io.Writer, v *variant.Variant) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FIELD\tKIND\tREQUIRED\tDEFAULT")
	_, _ = fmt.Fprintln(w, "-----\t----\t--------\t-------")

	for _, f := range v.Fields {
		def := "-"
		if f.Default != nil {
			def = *f.Default
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", f.Name, f.Kind, f.Required, def)
	}
	_ = w.Flush()

	names := make([]string, len(v.Entries))
	for i, e := range v.Entries {
		names[i] = e.Name
	}
	_, _ = fmt.Fprintf(out, "\nentries: %s\n", strings.Join(names, ", "))
}
