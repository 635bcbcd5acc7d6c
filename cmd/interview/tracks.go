package main

import (
	"fmt"

	"github.com/ashureev/techtree/internal/curriculum"
	"github.com/spf13/cobra"
)

func newTracksCmd() *cobra.Command {
	var (
		path string
		tier string
	)

	cmd := &cobra.Command{
		Use:   "tracks [track]",
		Short: "Show the curriculum",
		Long:  "Without arguments lists every track. With a track lists its tiers, and with --tier the subjects of that tier.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, err := openTree(path)
			if err != nil {
				return err
			}
			track := ""
			if len(args) == 1 {
				track = args[0]
			}
			if track != "" {
				if _, ok := tree.FindTrack(track); !ok {
					return fmt.Errorf("track %q: %w", track, curriculum.ErrNotFound)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), tree.Context(track, tier))
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "curriculum", "", "path to a curriculum YAML file (default: built-in)")
	cmd.Flags().StringVar(&tier, "tier", "", "tier within the track")
	return cmd
}

func openTree(path string) (*curriculum.Tree, error) {
	if path == "" {
		return curriculum.Default()
	}
	return curriculum.LoadFile(path)
}
