package sandbox

import (
	"fmt"
	"strings"

	"github.com/longregen/archetype/internal/domain/models"
)

// FormatQuestion renders a task as the canonical multiple-choice prompt.
func FormatQuestion(task models.Task) string {
	var b strings.Builder
	b.WriteString("Answer the following multiple choice question.\n\n")
	b.WriteString(task.Question)
	b.WriteString("\n")
	for i, l := range models.Letters {
		fmt.Fprintf(&b, "\n(%s) %s", l, task.Choices[i])
	}
	return b.String()
}
