package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Ning0612/restoredrill/internal/core/checksum"
	"github.com/Ning0612/restoredrill/internal/core/diff"
	"github.com/Ning0612/restoredrill/internal/core/snapshot"
	"github.com/Ning0612/restoredrill/internal/domain"
)

var (
	argChecksum string
	argExclude  []string
	argFormat   string
)

var compareCmd = &cobra.Command{
	Use:   "compare <expected> <actual>",
	Short: "compare two directory trees by name, type and content digest",
	Long: `Builds a snapshot of both directories and reports the first difference.
Children are compared in name order; the comparison stops at the first
mismatch. Exit status is 2 when the trees differ.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		builder, err := treeBuilder()
		if err != nil {
			return err
		}

		expected, err := builder.Build(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		actual, err := builder.Build(cmd.Context(), args[1])
		if err != nil {
			return err
		}

		if ok, mismatch := diff.Compare(expected, actual); !ok {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", mismatch.Kind, mismatch.Error())
			return fmt.Errorf("%w: %v", domain.ErrMismatch, mismatch)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "trees are identical")
		return nil
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <dir>",
	Short: "print the snapshot of a directory tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		builder, err := treeBuilder()
		if err != nil {
			return err
		}
		tree, err := builder.Build(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return writeTree(cmd.OutOrStdout(), tree, argFormat)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{compareCmd, snapshotCmd} {
		cmd.Flags().StringVar(&argChecksum, "checksum", string(checksum.MD5), "content digest algorithm (md5, sha256)")
		cmd.Flags().StringSliceVar(&argExclude, "exclude", snapshot.DefaultExclude, "directory names to skip")
		rootCmd.AddCommand(cmd)
	}
	snapshotCmd.Flags().StringVarP(&argFormat, "format", "f", "yaml", "output format (yaml, json)")
}

func treeBuilder() (*snapshot.Builder, error) {
	algo := checksum.Algorithm(strings.ToLower(argChecksum))
	if !checksum.IsSupported(algo) {
		return nil, fmt.Errorf("unsupported checksum algorithm: %s", argChecksum)
	}
	return snapshot.NewBuilder(afero.NewOsFs(),
		snapshot.WithAlgorithm(algo),
		snapshot.WithExclude(argExclude...),
	), nil
}

func writeTree(w io.Writer, tree *domain.Tree, format string) error {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(tree); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(tree)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}
