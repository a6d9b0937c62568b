package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newModelsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models offered by the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := opts.newSession(cmd.OutOrStdout())
			defer s.Close()
			snap, err := s.do(cmd.Context(), s.mgr.LoadModels)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tPROVIDER")
			for _, m := range snap.Models {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", m.ID, m.Name, m.Provider)
			}
			return tw.Flush()
		},
	}
}

func newHistoryCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List saved stories, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := opts.newSession(cmd.OutOrStdout())
			defer s.Close()
			return printHistory(cmd.Context(), s)
		},
	}
}

func printHistory(ctx context.Context, s *session) error {
	snap, err := s.do(ctx, s.mgr.LoadHistory)
	if err != nil {
		return err
	}
	if len(snap.History) == 0 {
		fmt.Fprintln(s.out, helpStyle.Render("no saved stories"))
		return nil
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tGENRE\tWORDS\tCREATED")
	for _, st := range snap.History {
		title := st.Title
		if st.IsFavorite {
			title = "* " + title
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", st.ID, title, st.Genre, st.WordCount, st.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func newShowCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a saved story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := opts.newSession(cmd.OutOrStdout())
			defer s.Close()
			return withID(args[0], func(id int64) error { return loadStory(cmd.Context(), s, id) })
		},
	}
}

func newDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := opts.newSession(cmd.OutOrStdout())
			defer s.Close()
			return withID(args[0], func(id int64) error {
				if _, err := s.do(cmd.Context(), func() error { return s.mgr.DeleteStory(id) }); err != nil {
					return err
				}
				fmt.Fprintf(s.out, "deleted story %d\n", id)
				return nil
			})
		},
	}
}
