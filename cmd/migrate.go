package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/dropsched/internal/migrate"
)

func newMigrateCmd() *cobra.Command {
	var list bool
	c := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				files, err := migrate.Files()
				if err != nil {
					return err
				}
				for _, f := range files {
					fmt.Fprintln(cmd.OutOrStdout(), f)
				}
				return nil
			}
			a, err := openApp(context.Background(), appOptions{migrate: true})
			if err != nil {
				return err
			}
			defer a.Close()
			if a.db == nil {
				return errors.New("nothing to migrate with STORE=memory")
			}
			green.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
	c.Flags().BoolVar(&list, "list", false, "print embedded migration files and exit")
	return c
}
