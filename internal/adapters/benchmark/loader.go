// Package benchmark loads the multiple-choice task table.
package benchmark

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strings"

	"github.com/longregen/archetype/internal/domain"
	"github.com/longregen/archetype/internal/domain/models"
)

var requiredColumns = []string{"question", "a", "b", "c", "d", "answer"}

// Load reads the CSV at path and shuffles it with seed.
func Load(path string, seed uint64) ([]models.Task, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open benchmark: %w", err)
	}
	defer f.Close()

	tasks, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read benchmark %s: %w", path, err)
	}
	Shuffle(tasks, seed)
	return tasks, nil
}

// Read parses rows in file order. Header names match case-insensitively and
// extra columns are ignored.
func Read(r io.Reader) ([]models.Task, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty benchmark file", domain.ErrInvalidInput)
		}
		return nil, err
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", domain.ErrInvalidInput, col)
		}
	}
	subjectCol, hasSubject := index["subject"]

	var tasks []models.Task
	line := 1
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, err
		}
		field := func(i int) string {
			if i < len(record) {
				return strings.TrimSpace(record[i])
			}
			return ""
		}

		task := models.Task{
			Question:      field(index["question"]),
			CorrectLetter: strings.ToUpper(field(index["answer"])),
		}
		for i, l := range models.Letters {
			task.Choices[i] = field(index[strings.ToLower(l)])
		}
		if hasSubject {
			task.Subject = field(subjectCol)
		}
		if !models.IsLetter(task.CorrectLetter) {
			return nil, fmt.Errorf("%w: line %d: answer %q is not one of A-D", domain.ErrInvalidInput, line, task.CorrectLetter)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// Shuffle permutes tasks in place; the same seed gives the same order.
func Shuffle(tasks []models.Task, seed uint64) {
	rng := rand.New(rand.NewPCG(seed, 0))
	rng.Shuffle(len(tasks), func(i, j int) {
		tasks[i], tasks[j] = tasks[j], tasks[i]
	})
}

// Split returns the first validSize tasks for the search and the next
// testSize for the final evaluation, truncated to what is available.
func Split(tasks []models.Task, validSize, testSize int) (valid, test []models.Task) {
	validSize = min(max(validSize, 0), len(tasks))
	valid = tasks[:validSize]
	rest := tasks[validSize:]
	test = rest[:min(max(testSize, 0), len(rest))]
	return valid, test
}
