package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/spetersoncode/loom/partialjson"
)

func newRepairCmd() *cobra.Command {
	var showState bool
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Read a truncated JSON document from stdin and print it completed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			return repair(cmd.OutOrStdout(), cmd.ErrOrStderr(), string(data), showState)
		},
	}
	cmd.Flags().BoolVar(&showState, "state", false, "print the parse state to stderr")
	return cmd
}

func repair(out, log io.Writer, text string, showState bool) error {
	_, repaired, state := partialjson.Parse(text)
	if showState {
		fmt.Fprintln(log, state)
	}
	switch state {
	case partialjson.Undefined:
		return errors.New("input holds no JSON value")
	case partialjson.Failed:
		return errors.New("input cannot be repaired into JSON")
	}
	fmt.Fprintln(out, repaired)
	return nil
}
