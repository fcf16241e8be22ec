package models

// Task is one multiple-choice benchmark item.
type Task struct {
	Question      string    `json:"question"`
	Choices       [4]string `json:"choices"`
	CorrectLetter string    `json:"answer"`
	Subject       string    `json:"subject,omitempty"`
}

// Letters are the valid answer letters, in choice order.
var Letters = [4]string{"A", "B", "C", "D"}

// IsLetter reports whether s is exactly one of A, B, C or D.
func IsLetter(s string) bool {
	for _, l := range Letters {
		if s == l {
			return true
		}
	}
	return false
}
