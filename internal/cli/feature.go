package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/shopkeep/internal/featurestore"
)

// featureFile is the YAML accepted by feature sync.
type featureFile struct {
	Features []featurestore.Feature `yaml:"features"`
}

// NewFeatureCommand creates the feature command group.
func NewFeatureCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feature",
		Short: "Inspect and sync feature flags",
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "ls",
		Short:         "List features",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFeatures(rootOpts, func(fs *featurestore.Store) error {
				features, err := fs.List(commandContext(cmd))
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list features", err)
				}
				rows := make([][]string, len(features))
				for i, f := range features {
					rows[i] = []string{f.Name, string(f.Status), string(f.Type), f.Title}
				}
				return newFormatter(rootOpts, cmd.OutOrStdout()).Table(features, []string{"NAME", "STATUS", "TYPE", "TITLE"}, rows)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "get <name>",
		Short:         "Print one feature",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFeatures(rootOpts, func(fs *featurestore.Store) error {
				f, err := fs.Get(commandContext(cmd), args[0])
				if err != nil {
					return WrapExitError(ExitFailure, "failed to read feature", err)
				}
				out := newFormatter(rootOpts, cmd.OutOrStdout())
				if f == nil {
					_ = out.Error(CodeNotFound, fmt.Sprintf("feature %q not found", args[0]), nil)
					return NewExitError(ExitFailure, fmt.Sprintf("feature %q not found", args[0]))
				}
				if rootOpts.Format == "json" {
					return out.Success(f)
				}
				b, err := yaml.Marshal(f)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(b)
				return err
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "sync <file>",
		Short: "Replace the feature table with a YAML file",
		Long: `Replace the feature table with the features listed in a YAML file.
Features missing from the file are removed.

Example file:
  features:
    - name: orders
      status: ON
      params: '{"tabs":["new","done"]}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read feature file", err)
			}
			var file featureFile
			if err := yaml.Unmarshal(data, &file); err != nil {
				return WrapExitError(ExitCommandError, "failed to parse feature file", err)
			}
			return withFeatures(rootOpts, func(fs *featurestore.Store) error {
				if err := fs.Sync(commandContext(cmd), file.Features); err != nil {
					return WrapExitError(ExitFailure, "failed to sync features", err)
				}
				return newFormatter(rootOpts, cmd.OutOrStdout()).Success(fmt.Sprintf("%d features synced", len(file.Features)))
			})
		},
	})

	return cmd
}

func withFeatures(opts *RootOptions, fn func(*featurestore.Store) error) error {
	st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer closeStore(st)
	return fn(featurestore.New(st))
}
