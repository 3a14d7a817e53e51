package cmd

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"
)

func newKeysCmd() *cobra.Command {
	var withToken bool
	c := &cobra.Command{
		Use:   "keys",
		Short: "Generate COOKIE_HASH_KEY, COOKIE_BLOCK_KEY and WORKER_TOKEN values",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, name := range []string{"COOKIE_HASH_KEY", "COOKIE_BLOCK_KEY"} {
				v, err := randomB64()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "export %s=%s\n", name, v)
			}
			if withToken {
				v, err := randomB64()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "export WORKER_TOKEN=%s\n", v)
			}
			return nil
		},
	}
	c.Flags().BoolVar(&withToken, "worker-token", true, "also print a WORKER_TOKEN")
	return c
}

func randomB64() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
