package commands

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"storyforge/internal/state"
)

func newGenerateCmd(opts *options) *cobra.Command {
	var (
		saveTitle string
		noStream  bool
	)
	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate one story continuation",
		Long: `Generate one story continuation.

By default the text is streamed as it is written. --no-stream waits for
the whole passage and lets the backend use its story tools.

Examples:
  storyforge generate "A dragon guards the last library"
  storyforge generate -g horror --no-stream "The cellar door opens" --save "Cellar"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")
			s := opts.newSession(cmd.OutOrStdout())
			defer s.Close()
			ctx := cmd.Context()

			if noStream {
				snap, err := s.do(ctx, func() error { return s.mgr.GenerateStory(prompt) })
				if err != nil {
					return err
				}
				if msg, ok := snap.LastMessage(); ok {
					fmt.Fprintln(cmd.OutOrStdout(), msg.Content)
				}
			} else if _, err := s.streamStory(ctx, prompt); err != nil {
				return err
			}

			if saveTitle == "" {
				return nil
			}
			return saveStory(ctx, s, saveTitle)
		},
	}
	cmd.Flags().StringVar(&saveTitle, "save", "", "save the story under this title")
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "wait for the full passage")
	return cmd
}

func newChatCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive story session",
		Long: `Interactive story session. Every line continues the story; lines
starting with ':' are commands (type :help).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := opts.newSession(cmd.OutOrStdout())
			defer s.Close()
			return runChat(cmd.Context(), s, bufio.NewScanner(cmd.InOrStdin()))
		},
	}
}

const chatHelp = `:save [title]      save the story
:illustrate [scene] illustrate a scene, the latest passage by default
:narrate [text]     narrate text, the whole story by default
:history           list saved stories
:load <id>         continue a saved story
:delete <id>       delete a saved story
:model <id>        switch model
:genre <genre>     switch genre
:voice <voice>     switch narration voice
:style <style>     switch illustration style
:new               start over
:clear             forget the conversation
:q                 quit`

func runChat(ctx context.Context, s *session, scanner *bufio.Scanner) error {
	out := s.out
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	snap := s.mgr.Snapshot()
	fmt.Fprintln(out, titleStyle.Render("StoryForge")+helpStyle.Render(
		fmt.Sprintf("  model %s, genre %s (type :help)", snap.SelectedModel, snap.Genre)))

	media := 0
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, ":") {
			if _, err := s.streamStory(ctx, line); err != nil {
				fmt.Fprintln(out, errorStyle.Render(err.Error()))
			}
			continue
		}

		name, arg, _ := strings.Cut(line[1:], " ")
		arg = strings.TrimSpace(arg)
		var err error
		switch name {
		case "q", "quit", "exit":
			fmt.Fprintln(out, "Bye.")
			return nil
		case "help":
			fmt.Fprintln(out, helpStyle.Render(chatHelp))
		case "save":
			err = saveStory(ctx, s, arg)
		case "illustrate":
			media++
			err = illustrate(ctx, s, arg, fmt.Sprintf("illustration-%d.png", media))
		case "narrate":
			media++
			err = narrate(ctx, s, arg, fmt.Sprintf("narration-%d.mp3", media))
		case "history":
			err = printHistory(ctx, s)
		case "load":
			err = withID(arg, func(id int64) error { return loadStory(ctx, s, id) })
		case "delete":
			err = withID(arg, func(id int64) error {
				_, derr := s.do(ctx, func() error { return s.mgr.DeleteStory(id) })
				return derr
			})
		case "model":
			_, err = s.do(ctx, func() error { return s.mgr.SelectModel(arg) })
		case "genre":
			_, err = s.do(ctx, func() error { return s.mgr.SelectGenre(arg) })
		case "voice":
			_, err = s.do(ctx, func() error { return s.mgr.SelectVoice(arg) })
		case "style":
			_, err = s.do(ctx, func() error { return s.mgr.SelectImageStyle(arg) })
		case "new":
			_, err = s.do(ctx, s.mgr.NewStory)
		case "clear":
			_, err = s.do(ctx, s.mgr.ClearConversation)
		default:
			err = errors.Errorf("unknown command :%s", name)
		}
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render(err.Error()))
		}
	}
}

func saveStory(ctx context.Context, s *session, title string) error {
	snap, err := s.do(ctx, func() error { return s.mgr.SaveStory(title) })
	if err != nil {
		return errors.Wrap(err, "save story")
	}
	if snap.LastSavedID == 0 {
		return errors.New("save story: backend returned no id")
	}
	fmt.Fprintf(s.out, "saved as story %d\n", snap.LastSavedID)
	return nil
}

func loadStory(ctx context.Context, s *session, id int64) error {
	snap, err := s.do(ctx, func() error { return s.mgr.LoadStory(id) })
	if err != nil {
		return err
	}
	printConversation(s, snap)
	return nil
}

func printConversation(s *session, snap state.Snapshot) {
	for _, msg := range snap.Messages {
		fmt.Fprintln(s.out, titleStyle.Render(string(msg.Role)))
		fmt.Fprintln(s.out, msg.Content)
	}
}

func withID(arg string, fn func(id int64) error) error {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return errors.Errorf("invalid story id %q", arg)
	}
	return fn(id)
}
