package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ashureev/portfolio-assistant/internal/intent"
)

func newClassifyCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "classify <text...>",
		Short: "Print the intent of a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := loadLibrary()
			if err != nil {
				return err
			}
			text := strings.Join(args, " ")
			in, keyword := intent.NewEngine(lib).Explain(text)

			out := cmd.OutOrStdout()
			if asJSON {
				b, _ := json.Marshal(map[string]string{"text": text, "intent": string(in), "keyword": keyword})
				fmt.Fprintln(out, string(b))
				return nil
			}
			if keyword == "" {
				fmt.Fprintln(out, in)
				return nil
			}
			fmt.Fprintf(out, "%s (matched %q)\n", in, keyword)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}
