package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/clipnote/clipnote/internal/chat"
	"github.com/clipnote/clipnote/internal/markup"
	"github.com/clipnote/clipnote/internal/ratelimit"
	"github.com/clipnote/clipnote/internal/readiness"
)

var (
	assistantLabel = color.New(color.FgCyan, color.Bold)
	citationColor  = color.New(color.FgYellow)
	noticeColor    = color.New(color.FgYellow)
	errorColor     = color.New(color.FgRed)
)

func chatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <video>",
		Short: "Chat with a video interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			notifier := &terminalNotifier{}
			session := chat.NewSession(a.client, a.resolver,
				chat.WithNotifier(notifier),
				chat.WithPolling(a.cfg.Chat.PollInterval, a.cfg.Chat.PollBudget))
			notifier.session = session
			defer session.Close()

			if err := session.SetVideoReference(args[0]); err != nil {
				return err
			}

			ctx := cmd.Context()
			input := bufio.NewScanner(os.Stdin)
			for {
				fmt.Println("preparing video...")
				status, snapshot := session.WaitReady(ctx)
				switch status {
				case readiness.StatusReady:
					if snapshot.Metadata != nil {
						fmt.Printf("ready: %s (%s)\n", snapshot.Metadata.Title, snapshot.Metadata.Channel)
					}
				case readiness.StatusTimedOut:
					noticeColor.Println("the video is taking longer than expected; press enter to keep waiting, ctrl-c to give up")
					if !input.Scan() {
						return nil
					}
					session.RefreshReadiness()
					continue
				default:
					return ctx.Err()
				}
				break
			}

			fmt.Println("type a question, /new for a fresh conversation, /quit to leave")
			for {
				fmt.Print("you> ")
				if !input.Scan() {
					return nil
				}
				line := strings.TrimSpace(input.Text())
				switch line {
				case "/quit":
					return nil
				case "/new":
					session.NewChat()
					fmt.Println("started a new conversation")
					continue
				}
				err := session.Submit(ctx, line)
				switch {
				case err == nil:
				case errors.Is(err, chat.ErrBusy):
					noticeColor.Println("still answering the previous question")
				case errors.Is(err, chat.ErrNotReady):
					noticeColor.Println("the video is not ready yet")
				case ctx.Err() != nil:
					return nil
				default:
					// Already surfaced through the notifier or message list.
				}
			}
		},
	}
}

// terminalNotifier renders session events: streamed deltas go straight to the
// terminal, the dismissable "thinking" indicator ends on the first delta, and
// the finished answer gets a colored citation summary.
type terminalNotifier struct {
	session *chat.Session
}

func (n *terminalNotifier) FirstDelta(string) {
	assistantLabel.Print("assistant> ")
}

func (n *terminalNotifier) Delta(_ string, text string) {
	fmt.Print(text)
}

func (n *terminalNotifier) StreamEnded(messageID string, err error) {
	fmt.Println()
	if err != nil {
		errorColor.Println("the answer was cut off")
	}
	for _, msg := range n.session.Messages() {
		if msg.ID == messageID {
			printCitations(msg.Content)
			return
		}
	}
}

func printCitations(content string) {
	var refs []string
	for _, seg := range markup.Render(content) {
		if seg.Kind == markup.KindCitation {
			refs = append(refs, fmt.Sprintf("%s (seek to %s)",
				citationColor.Sprintf("[%s]", seg.Text), formatSeconds(seg.SeekSeconds())))
		}
	}
	if len(refs) > 0 {
		fmt.Println("citations: " + strings.Join(refs, ", "))
	}
}

func formatSeconds(s int) string {
	d := time.Duration(s) * time.Second
	if d >= time.Hour {
		return fmt.Sprintf("%d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
	}
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func (n *terminalNotifier) QuotaExceeded(limit ratelimit.Limit) {
	if limit.Tier == ratelimit.TierGuest {
		noticeColor.Println("guest limit reached; sign up with 'clipnote signup' to keep chatting")
		return
	}
	noticeColor.Printf("daily limit reached; resets in %s\n", limit.ResetIn.Round(time.Minute))
}

func (n *terminalNotifier) ReauthRequired() {
	errorColor.Println("your session expired; run 'clipnote login' to sign in again")
}
