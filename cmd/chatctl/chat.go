package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"carechat/application/commands"
	"carechat/application/services"
	"carechat/domain/core/valueobjects"
	"carechat/infrastructure/di"

	"github.com/spf13/cobra"
)

var (
	chatUser         string
	chatConversation string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the configured backend, one turn per input line",
	Long: `Reads messages from stdin and streams each answer to stdout. The
conversation is stored in the configured store, so a later --conversation
resumes it.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatUser, "user", "u", "", "verified user identifier; empty chats as a guest")
	chatCmd.Flags().StringVarP(&chatConversation, "conversation", "c", "", "resume an existing conversation")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	return withContainer(ctx, func(c *di.Container) error {
		verified := valueobjects.NewIdentity(chatUser)

		conversationID := chatConversation
		if conversationID == "" {
			result, err := c.CommandBus.Send(ctx, commands.CreateConversationCommand{Verified: verified})
			if err != nil {
				return err
			}
			conversationID = result.(*commands.ConversationResult).ConversationID
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "conversation %s (backend %s)\n", conversationID, c.Backend.Name())

		return chatLoop(ctx, c.Chat, conversationID, verified, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	})
}

// chatLoop runs one turn per non-blank input line until EOF or ctx ends
func chatLoop(ctx context.Context, chat *services.ChatService, conversationID string, verified valueobjects.Identity, in io.Reader, out, errOut io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(errOut, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(errOut)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		sink := services.EventSinkFunc(func(event services.StreamEvent) error {
			switch event.Kind {
			case services.EventChunk:
				_, err := fmt.Fprint(out, event.Text)
				return err
			case services.EventError:
				_, err := fmt.Fprintf(errOut, "\n[error] %s\n", event.Text)
				return err
			default:
				_, err := fmt.Fprintln(out)
				return err
			}
		})

		if _, err := chat.Turn(ctx, services.TurnRequest{
			ConversationID: conversationID,
			Message:        line,
			Verified:       verified,
		}, sink); err != nil {
			fmt.Fprintf(errOut, "[rejected] %v\n", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
