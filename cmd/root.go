/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/blacktop/lipost/internal/lipost"
	"github.com/blacktop/lipost/internal/lipost/linkedin"
	"github.com/blacktop/lipost/internal/lipost/publish"
	"github.com/blacktop/lipost/internal/logutil"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	configPath  string
	verbose     bool
	messageFlag string
	imagePath   string
	videoPath   string
	altText     string
	mirrorsFlag []string
	dryRun      bool
)

// Execute runs the root command.
func Execute() error {
	return newRootCommand().Execute()
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lipost [message]",
		Short: "Publish to LinkedIn",
		Long: "lipost publishes text, image and video posts to LinkedIn, generates drafts with a language model, " +
			"and can mirror each post to X, Bluesky and Mastodon.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logutil.SetVerbose(verbose)
		},
		Args: cobra.ArbitraryArgs,
		RunE: runRoot,
		Example: `  lipost "Excited to share our new release!"
  lipost --message "Demo day" --video ./demo.mp4
  lipost "New office" --image ./office.jpg --mirror bluesky --mirror mastodon
  echo "Shipped" | lipost --dry-run`,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: user config dir)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "Enable debug logging")

	cmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Message text to post")
	cmd.Flags().StringVar(&imagePath, "image", "", "Path to an image to attach")
	cmd.Flags().StringVar(&videoPath, "video", "", "Path to a video to attach")
	cmd.Flags().StringVar(&altText, "alt-text", "", "Description of the attached media")
	cmd.Flags().StringSliceVar(&mirrorsFlag, "mirror", nil, "Also post to (twitter, mastodon, bluesky, or all)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print actions without posting")
	cmd.MarkFlagsMutuallyExclusive("image", "video")
	cmd.Flags().SortFlags = false

	cmd.AddCommand(
		newGenerateCommand(),
		newChatCommand(),
		newDeleteCommand(),
		newProfileCommand(),
		newURLCommand(),
		newServeCommand(),
		newConfigCommand(),
		newCompletionCommand(),
	)

	return cmd
}

func runRoot(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	message, err := resolveMessage(cmd, args)
	if err != nil {
		return err
	}

	draft := lipost.Draft{Text: message, AltText: strings.TrimSpace(altText)}
	if draft.Media, err = loadAttachment(imagePath, videoPath); err != nil {
		return err
	}
	if err := draft.Media.Validate(); err != nil {
		return err
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	mirrorNames := cfg.Mirrors.Enabled
	if cmd.Flags().Changed("mirror") {
		mirrorNames = mirrorsFlag
	}
	targets, err := normalizeMirrors(mirrorNames)
	if err != nil {
		return err
	}

	if dryRun {
		return describe(out, draft, targets)
	}

	token, err := resolveToken(cmd, cfg)
	if err != nil {
		return err
	}
	mirrors, err := buildMirrors(ctx, targets)
	if err != nil {
		return err
	}

	coord := newCoordinator(cfg, mirrors...)
	if names := coord.Mirrors(); len(names) > 0 {
		logutil.Debugf("mirroring to %s", strings.Join(names, ", "))
	}
	fmt.Fprintln(out, "posting to linkedin...")
	res := coord.Publish(ctx, publish.NewSession(token), draft)
	return report(out, res)
}

func loadAttachment(image, video string) (*lipost.Media, error) {
	switch {
	case image != "":
		return lipost.LoadMedia(image, lipost.MediaImage)
	case video != "":
		return lipost.LoadMedia(video, lipost.MediaVideo)
	default:
		return nil, nil
	}
}

func resolveMessage(cmd *cobra.Command, args []string) (string, error) {
	var message string

	if messageFlag != "" {
		message = messageFlag
	}

	if len(args) > 0 {
		if message != "" {
			return "", errors.New("provide the message either as an argument or with --message, not both")
		}
		message = strings.Join(args, " ")
	}

	if message != "" {
		return strings.TrimSpace(message), nil
	}

	data, err := readPiped(cmd.InOrStdin())
	if err != nil {
		return "", err
	}
	message = strings.TrimSpace(data)

	if message == "" {
		return "", errors.New("message is required")
	}

	return message, nil
}

// readPiped returns stdin's contents unless it is an interactive terminal.
func readPiped(stdin io.Reader) (string, error) {
	if file, ok := stdin.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		return "", nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func describe(out io.Writer, draft lipost.Draft, mirrors []string) error {
	fmt.Fprintf(out, "[dry-run] would post to linkedin: %q\n", draft.Text)
	if n := utf8.RuneCountInString(draft.Text); n > lipost.MaxCommentaryRunes {
		fmt.Fprintf(out, "[dry-run] warning: %d characters exceeds the %d character limit\n", n, lipost.MaxCommentaryRunes)
	}
	if m := draft.Media; m != nil {
		fmt.Fprintf(out, "[dry-run] %s: %s (%s, %s)\n", m.Kind, m.Name, m.ContentType, humanize.IBytes(uint64(m.Size())))
	}
	for _, name := range mirrors {
		fmt.Fprintf(out, "[dry-run] would mirror to %s\n", name)
	}
	return nil
}

func report(out io.Writer, res publish.Result) error {
	if res.Err != nil {
		return res.Err
	}

	fmt.Fprintf(out, "published %s post: %s\n", res.Kind, res.URL)
	if activity := linkedin.ActivityURL(res.PostID); activity != "" {
		fmt.Fprintf(out, "activity: %s\n", activity)
	}
	if res.Degraded {
		fmt.Fprintf(out, "warning: %s\n", res.Reason())
	}

	var errs []error
	for _, m := range res.Mirrors {
		if m.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.Network, m.Err))
			continue
		}
		fmt.Fprintf(out, "mirrored to %s: %s\n", m.Network, m.Receipt.URL)
	}
	return errors.Join(errs...)
}
