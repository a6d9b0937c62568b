package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newIllustrateCmd(opts *options) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "illustrate <scene>",
		Short: "Render a scene to a PNG file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := opts.newSession(cmd.OutOrStdout())
			defer s.Close()
			return illustrate(cmd.Context(), s, strings.Join(args, " "), outPath)
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "illustration.png", "output file")
	return cmd
}

func newNarrateCmd(opts *options) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "narrate <text>",
		Short: "Render text to an mp3 file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := opts.newSession(cmd.OutOrStdout())
			defer s.Close()
			return narrate(cmd.Context(), s, strings.Join(args, " "), outPath)
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "narration.mp3", "output file")
	return cmd
}

func illustrate(ctx context.Context, s *session, scene, path string) error {
	snap, err := s.do(ctx, func() error { return s.mgr.GenerateIllustration(scene) })
	if err != nil {
		return errors.Wrap(err, "illustrate")
	}
	if snap.ImageRef == "" {
		return errors.New("illustrate: no image in session")
	}
	if err := writeBase64(path, snap.ImageRef); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "image written to %s\n", path)
	return nil
}

func narrate(ctx context.Context, s *session, text, path string) error {
	snap, err := s.do(ctx, func() error { return s.mgr.GenerateNarration(text) })
	if err != nil {
		return errors.Wrap(err, "narrate")
	}
	if snap.AudioRef == "" {
		return errors.New("narrate: no audio in session")
	}
	if err := writeBase64(path, snap.AudioRef); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "audio written to %s\n", path)
	return nil
}
