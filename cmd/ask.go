package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cartageio/cartage/internal/app"
)

var askConversationID string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question and print the answer",
	Long: `Runs one conversational turn and streams the answer to stdout.
Pass --conversation to continue an existing conversation.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askConversationID, "conversation", "", "conversation UUID to continue")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger(false)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	conversationID := uuid.New()
	if askConversationID != "" {
		conversationID, err = uuid.Parse(askConversationID)
		if err != nil {
			return fmt.Errorf("parsing conversation id: %w", err)
		}
	}

	question := strings.Join(args, " ")
	streamed := false
	resp, err := a.Orchestrator.HandleTurnStream(ctx, conversationID, question,
		func(_ context.Context, chunk *ai.ModelResponseChunk) error {
			if text := chunk.Text(); text != "" {
				streamed = true
				fmt.Print(text)
			}
			return nil
		})
	if err != nil {
		return fmt.Errorf("processing question: %w", err)
	}

	// When no chunks arrived (non-streaming model), print the final text.
	if !streamed {
		fmt.Print(resp.FinalText)
	}
	fmt.Println()
	fmt.Fprintf(os.Stderr, "conversation: %s\n", resp.ConversationID)
	return nil
}
