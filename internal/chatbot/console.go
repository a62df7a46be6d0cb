package chatbot

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"TutorChat/internal/session"
)

// Console is the terminal front end: one session, read from in, written to out
type Console struct {
	bot      *ChatBot
	title    string
	greeting string
	in       io.Reader
	out      io.Writer
	session  *session.Session
}

// NewConsole creates a console bound to a fresh session
func NewConsole(bot *ChatBot, title, greeting string, in io.Reader, out io.Writer) *Console {
	return &Console{
		bot:      bot,
		title:    title,
		greeting: greeting,
		in:       in,
		out:      out,
		session:  session.New(),
	}
}

// Session returns the session the console is currently writing to
func (c *Console) Session() *session.Session {
	return c.session
}

// handleCommand handles slash commands, reporting whether the loop should stop
func (c *Console) handleCommand(cmd string) bool {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true

	case "/new-session":
		c.session = session.New()
		fmt.Fprintln(c.out, "Started new session:", c.session.ID)

	case "/history":
		turns := c.session.History.All()
		if len(turns) == 0 {
			fmt.Fprintln(c.out, "No messages yet.")
			return false
		}
		for _, turn := range turns {
			fmt.Fprintf(c.out, "You: %s\nBot: %s\n", turn.Human, turn.AI)
		}
		fmt.Fprintln(c.out)

	case "/help":
		fmt.Fprintln(c.out, "Available commands:")
		fmt.Fprintln(c.out, "  /quit, /exit   - Exit the chatbot")
		fmt.Fprintln(c.out, "  /new-session   - Start a new chat session")
		fmt.Fprintln(c.out, "  /history       - Show the conversation so far")
		fmt.Fprintln(c.out, "  /help          - Show this help message")

	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type /help)\n", parts[0])
	}
	return false
}

// Run reads lines until EOF or /quit, dispatching each one to the bot
func (c *Console) Run(ctx context.Context) error {
	fmt.Fprintf(c.out, "=== %s ===\n", c.title)
	fmt.Fprintf(c.out, "Session: %s\n", c.session.ID)
	fmt.Fprintf(c.out, "Backend: %s (%s)\n", c.bot.Provider().Name(), c.bot.Provider().Model())
	fmt.Fprintln(c.out, "Type /help for commands, /quit to exit")
	fmt.Fprintln(c.out)
	if c.greeting != "" {
		fmt.Fprintf(c.out, "Bot: %s\n\n", c.greeting)
	}

	scanner := bufio.NewScanner(c.in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		fmt.Fprint(c.out, "You: ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if c.handleCommand(input) {
				break
			}
			continue
		}

		turn, err := c.bot.Send(ctx, c.session, input)
		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n\n", err)
			continue
		}

		fmt.Fprintf(c.out, "Bot: %s\n\n", turn.AI)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	fmt.Fprintln(c.out, "Goodbye!")
	return nil
}
