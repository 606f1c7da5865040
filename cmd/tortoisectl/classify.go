package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lifelonglearners/tortoise/internal/service/intent"
)

func newClassifyCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "classify <message...>",
		Short: "Show how a chat message is classified by keywords",
		Long: `Classify a message with the keyword scorer alone, the same first pass the
server runs before consulting a model, and print the search keywords it
would extract. No database or API key is needed.`,
		Example: `  tortoisectl classify "recommend a book about habits"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")
			res := intent.ByKeywords(message)
			keywords := intent.ExtractKeywords(message)
			if keywords == nil {
				keywords = []string{}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					intent.Result
					Keywords []string `json:"keywords"`
				}{res, keywords})
			}
			fmt.Fprintf(out, "intent:     %s\n", res.Intent)
			fmt.Fprintf(out, "confidence: %.2f\n", res.Confidence)
			fmt.Fprintf(out, "keywords:   %s\n", strings.Join(keywords, ", "))
			if res.Confidence < intent.DefaultThreshold {
				fmt.Fprintln(out, "(below threshold: the server would ask the model when one is configured)")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
