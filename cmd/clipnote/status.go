package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clipnote/clipnote/internal/videoref"
)

func statusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <video>",
		Short: "Show how far a video's preparation has come",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			videoID, err := videoref.Parse(args[0])
			if err != nil {
				return err
			}
			r, err := a.client.VideoStatus(cmd.Context(), videoID)
			if err != nil {
				return err
			}
			fmt.Printf("video:      %s\n", videoID)
			fmt.Printf("transcript: %s\n", yesno(r.TranscriptAvailable))
			if r.Metadata != nil {
				fmt.Printf("title:      %s (%s, %ds)\n", r.Metadata.Title, r.Metadata.Channel, r.Metadata.DurationSeconds)
			} else {
				fmt.Println("title:      pending")
			}
			if r.Summary != "" {
				fmt.Printf("summary:    %s\n", r.Summary)
			} else {
				fmt.Println("summary:    pending")
			}
			if r.Complete() {
				fmt.Println("ready for chat")
			}
			return nil
		},
	}
}

func yesno(b bool) string {
	if b {
		return "yes"
	}
	return "pending"
}
