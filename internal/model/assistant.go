package model

type Assistant struct {
	ID           string  `json:"id" db:"id"`
	Name         string  `json:"name" db:"name"`
	Model        string  `json:"model" db:"model"`
	SystemPrompt string  `json:"system_prompt" db:"system_prompt"`
	Temperature  float64 `json:"temperature" db:"temperature"`
	MaxTokens    int     `json:"max_tokens" db:"max_tokens"`
	Ctime        int64   `json:"ctime" db:"ctime"`
}
