package main

import (
	"github.com/spf13/cobra"
)

func newGetCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get URL",
		Short: "Fetch URL and print the response body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.client(cmd)
			if err != nil {
				return err
			}
			defer c.ResetAll()
			body, err := c.GetContent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(body)
			return err
		},
	}
}
