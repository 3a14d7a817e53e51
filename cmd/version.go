package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/example/dropsched/internal/migrate"
)

func newVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show the build and the newest embedded schema migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(w, Version)
				return nil
			}
			files, err := migrate.Files()
			if err != nil {
				return err
			}
			schema := "none"
			if len(files) > 0 {
				schema = files[len(files)-1]
			}
			cyan.Fprintf(w, "dropsched %s\n", Version)
			fmt.Fprintf(w, "  commit   %s\n", CommitSHA)
			fmt.Fprintf(w, "  built    %s\n", BuildDate)
			fmt.Fprintf(w, "  go       %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(w, "  schema   %s (%d migrations)\n", schema, len(files))
			return nil
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "print only the version string")
	return cmd
}
