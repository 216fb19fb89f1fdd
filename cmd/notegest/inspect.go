package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/adrg/frontmatter"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <note.md>",
	Short: "Print the front matter of a rendered Obsidian note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		matter, body, err := inspectNote(f)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}

		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"front_matter": matter, "body_lines": lineCount(body)})
		}
		keys := make([]string, 0, len(matter))
		for k := range matter {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "%s: %v\n", k, matter[k])
		}
		fmt.Fprintf(out, "(%d body lines)\n", lineCount(body))
		return nil
	},
}

func init() {
	inspectCmd.Flags().Bool("json", false, "print as JSON")

	rootCmd.AddCommand(inspectCmd)
}

func inspectNote(r io.Reader) (map[string]any, []byte, error) {
	matter := map[string]any{}
	body, err := frontmatter.Parse(r, &matter)
	if err != nil {
		return nil, nil, err
	}
	if len(matter) == 0 {
		return nil, nil, fmt.Errorf("no front matter")
	}
	return matter, body, nil
}

func lineCount(body []byte) int {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return 0
	}
	return bytes.Count(body, []byte("\n")) + 1
}
