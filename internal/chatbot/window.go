package chatbot

import (
	"TutorChat/internal/backend"
	"TutorChat/internal/session"
)

// BuildMessages assembles the request sent to the provider: the persistent
// instruction first, then each replayed turn as a user/assistant pair, then
// the new input. Callers pass turns already bounded to the context window.
func BuildMessages(systemPrompt string, turns []session.Turn, input string) []backend.Message {
	messages := make([]backend.Message, 0, 2+2*len(turns))
	messages = append(messages, backend.Message{Role: backend.RoleSystem, Content: systemPrompt})
	for _, turn := range turns {
		messages = append(messages,
			backend.Message{Role: backend.RoleUser, Content: turn.Human},
			backend.Message{Role: backend.RoleAssistant, Content: turn.AI},
		)
	}
	messages = append(messages, backend.Message{Role: backend.RoleUser, Content: input})
	return messages
}
