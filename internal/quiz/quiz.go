// Package quiz holds the question bank the game draws from.
package quiz

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/valyala/fastrand"
)

//go:embed questions.json
var defaultQuestions []byte

var ErrEmptyBank = errors.New("question bank is empty")

type Question struct {
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
}

func (q Question) IsCorrect(option string) bool {
	return option == q.CorrectAnswer
}

// Rand is the randomness the bank needs. Tests swap in a fixed sequence.
type Rand interface {
	Intn(n int) int
}

type fastRand struct{}

func (fastRand) Intn(n int) int {
	return int(fastrand.Uint32n(uint32(n)))
}

// DefaultRand is backed by fastrand and safe for concurrent use.
var DefaultRand Rand = fastRand{}

type Bank struct {
	questions []Question
}

func NewBank(questions []Question) (*Bank, error) {
	b := &Bank{questions: questions}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

func Default() *Bank {
	b, err := Parse(defaultQuestions)
	if err != nil {
		panic(fmt.Sprintf("embedded question bank: %v", err))
	}
	return b
}

func Parse(data []byte) (*Bank, error) {
	var questions []Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	return NewBank(questions)
}

// Load reads a JSON question bank from path, or the embedded bank when path
// is empty.
func Load(path string) (*Bank, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}
	return Parse(data)
}

func (b *Bank) Validate() error {
	if len(b.questions) == 0 {
		return ErrEmptyBank
	}
	for i, q := range b.questions {
		if q.Text == "" {
			return fmt.Errorf("question %d: empty text", i)
		}
		if len(q.Options) < 2 {
			return fmt.Errorf("question %d: need at least 2 options, got %d", i, len(q.Options))
		}
		if !slices.Contains(q.Options, q.CorrectAnswer) {
			return fmt.Errorf("question %d: correct answer %q is not an option", i, q.CorrectAnswer)
		}
	}
	return nil
}

func (b *Bank) Len() int { return len(b.questions) }

func (b *Bank) Get(i int) (Question, bool) {
	if i < 0 || i >= len(b.questions) {
		return Question{}, false
	}
	return b.questions[i], true
}

// Random picks a question uniformly.
func (b *Bank) Random(r Rand) (int, Question) {
	i := r.Intn(len(b.questions))
	return i, b.questions[i]
}

// Shuffle returns a Fisher–Yates permutation of options. The input is not
// modified.
func Shuffle(options []string, r Rand) []string {
	out := append([]string(nil), options...)
	for i := len(out) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}
