package model

import "time"

// Entry is a daily gratitude journal entry: three gratitude lines plus a
// reflection prompt and the user's response to it.
type Entry struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Gratitudes     []string  `json:"gratitudes"` // always three lines
	Prompt         string    `json:"user_prompt"`
	PromptResponse string    `json:"user_prompt_response"`
	CreatedAt      time.Time `json:"timestamp"`
}
