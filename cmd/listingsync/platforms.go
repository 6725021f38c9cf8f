package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newPlatformsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "platforms",
		Short: "List registered platforms and the configuration they are missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tNAME\tOAUTH\tFREE\tAVAILABLE\tMISSING")
			for _, d := range a.registry.Descriptors() {
				missing, err := a.registry.Validate(d.Key)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\t%t\t%t\t%t\t%s\n",
					d.Key, d.DisplayName, d.OAuthRequired, d.Pricing.FreeTier, d.Available, strings.Join(missing, ","))
			}
			return w.Flush()
		},
	}
}
