package smoketest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrCancelled is returned when input ends before the questionnaire does.
var ErrCancelled = errors.New("smoke test cancelled")

// Questionnaire asks questions over a line-oriented reader and writer.
type Questionnaire struct {
	Questions []Question
	in        *bufio.Reader
	out       io.Writer
}

// NewQuestionnaire creates a questionnaire over in and out.
func NewQuestionnaire(questions []Question, in io.Reader, out io.Writer) *Questionnaire {
	return &Questionnaire{Questions: questions, in: bufio.NewReader(in), out: out}
}

// Run asks each question in order. After a "no" the operator can stop;
// stopping answers every remaining question with n/a.
func (q *Questionnaire) Run() (Answers, error) {
	answers := make(Answers, len(q.Questions))

	for i, question := range q.Questions {
		ans, err := q.ask(question)
		if err != nil {
			return nil, err
		}
		answers[question.Key] = ans

		if ans != No || i == len(q.Questions)-1 {
			continue
		}

		cont, err := q.confirm("Continue with the remaining questions?")
		if err != nil {
			return nil, err
		}
		if !cont {
			for _, rest := range q.Questions[i+1:] {
				answers[rest.Key] = NA
			}
			break
		}
	}

	return answers, nil
}

func (q *Questionnaire) ask(question Question) (Answer, error) {
	for {
		fmt.Fprintf(q.out, "%s [yes/no/n/a]: ", question.Text)
		line, err := q.readLine()
		if err != nil {
			return "", err
		}
		ans, perr := ParseAnswer(line)
		if perr == nil {
			return ans, nil
		}
		fmt.Fprintln(q.out, perr)
	}
}

func (q *Questionnaire) confirm(prompt string) (bool, error) {
	fmt.Fprintf(q.out, "%s [y/N]: ", prompt)
	line, err := q.readLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func (q *Questionnaire) readLine() (string, error) {
	line, err := q.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && strings.TrimSpace(line) != "" {
			return line, nil
		}
		if errors.Is(err, io.EOF) {
			return "", ErrCancelled
		}
		return "", fmt.Errorf("reading answer: %w", err)
	}
	return line, nil
}
