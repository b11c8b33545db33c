package eval

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// LoadQuestions reads a JSONL question set. Blank lines and # comments are
// skipped.
func LoadQuestions(path string) ([]Question, error) {
	var questions []Question
	err := readJSONL(path, func(line []byte, n int) error {
		var q Question
		if err := json.Unmarshal(line, &q); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		if q.ID == "" {
			return fmt.Errorf("line %d: question id is required", n)
		}
		if strings.TrimSpace(q.Query) == "" {
			return fmt.Errorf("line %d: query is required", n)
		}
		questions = append(questions, q)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading questions from %s: %w", path, err)
	}
	return questions, nil
}

// LoadFixtures reads a JSONL fixture corpus.
func LoadFixtures(path string) ([]Fixture, error) {
	var fixtures []Fixture
	err := readJSONL(path, func(line []byte, n int) error {
		var f Fixture
		if err := json.Unmarshal(line, &f); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		if strings.TrimSpace(f.Content) == "" {
			return fmt.Errorf("line %d: fixture content is required", n)
		}
		fixtures = append(fixtures, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading fixtures from %s: %w", path, err)
	}
	return fixtures, nil
}

func readJSONL(path string, fn func(line []byte, n int) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := fn([]byte(line), n); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}
