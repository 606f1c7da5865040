package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lifelonglearners/tortoise/internal/auth"
)

func newGenkeyCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "genkey",
		Short: "Generate the Ed25519 key pair used to sign session tokens",
		Long: `Write jwt_private.pem and jwt_public.pem into --dir. Point
TORTOISE_JWT_PRIVATE_KEY and TORTOISE_JWT_PUBLIC_KEY at them so tokens
survive server restarts. Existing keys are never overwritten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			priv := filepath.Join(dir, "jwt_private.pem")
			pub := filepath.Join(dir, "jwt_public.pem")
			if err := auth.GenerateKeyFiles(priv, pub); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "wrote %s\nwrote %s\n\n", priv, pub)
			fmt.Fprintf(out, "TORTOISE_JWT_PRIVATE_KEY=%s\nTORTOISE_JWT_PUBLIC_KEY=%s\n", priv, pub)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "data", "directory to write the key pair to")
	return cmd
}
