// Package index implements commands that inspect container indexes.
package index

import (
	"github.com/spf13/cobra"
)

var (
	method string
	limit  int
)

// Command returns the index command for use in the root command.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect container indexes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(createListCmd(), createLookupCmd(), createRecordsCmd())
	return cmd
}

func createListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <uri>[,<uri>...]",
		Short: "List the merged index of one or more containers",
		Args:  cobra.ExactArgs(1),
		RunE:  runListCmd,
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows to print (0 = all)")
	return cmd
}

func createLookupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup <uri>[,<uri>...] <url>",
		Short: "Show which capture would answer a request",
		Args:  cobra.ExactArgs(2),
		RunE:  runLookupCmd,
	}
	cmd.Flags().StringVar(&method, "method", "GET", "request method")
	return cmd
}

func createRecordsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "records <records-file-uri>",
		Short: "List the WARC records of a records file",
		Args:  cobra.ExactArgs(1),
		RunE:  runRecordsCmd,
	}
}
