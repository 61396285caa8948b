package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Guizzs26/go-textmend/pkg/encoding"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var policyName string

	cmd := &cobra.Command{
		Use:   "textmend [file ...]",
		Short: "Convert mixed Windows-1252/UTF-8 text to UTF-8",
		Long: `textmend reads files (or stdin when none are given) holding a mix of
Windows-1252 bytes and UTF-8 sequences and writes clean UTF-8 to stdout.
Valid UTF-8 is kept; every other byte is decoded as Windows-1252.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := encoding.ParsePolicy(policyName)
			if err != nil {
				return err
			}

			out := bufio.NewWriter(cmd.OutOrStdout())
			defer out.Flush()

			if len(args) == 0 {
				return mend(out, cmd.InOrStdin(), "<stdin>", policy)
			}
			for _, name := range args {
				if err := mendFile(out, name, policy); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&policyName, "policy", "p", "strict",
		"handling of bytes undefined in Windows-1252: strict, replace or skip")
	return cmd
}

func mendFile(w io.Writer, name string, policy encoding.Policy) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	return mend(w, f, name, policy)
}

func mend(w io.Writer, r io.Reader, name string, policy encoding.Policy) error {
	_, err := io.Copy(w, encoding.NewPolicyReader(r, policy))
	return describe(name, err)
}

func describe(name string, err error) error {
	if err == nil {
		return nil
	}
	var ibe *encoding.InvalidByteError
	if errors.As(err, &ibe) {
		return fmt.Errorf("%s: undefined Windows-1252 byte 0x%02X at offset %d (use --policy replace or skip): %w",
			name, ibe.Byte, ibe.Offset, encoding.ErrInvalidLegacyByte)
	}
	return fmt.Errorf("%s: %w", name, err)
}
