package smoketest

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name    string
		answers Answers
		want    Result
		wantErr bool
	}{
		{
			name:    "any no fails",
			answers: Answers{"nodes": Yes, "bootstrap": No, "dashboard": Yes},
			want:    Failed,
		},
		{
			name:    "yes and n/a pass",
			answers: Answers{"nodes": Yes, "bootstrap": NA, "dashboard": Yes},
			want:    Passed,
		},
		{
			name:    "empty is rejected",
			answers: Answers{},
			want:    NotRun,
			wantErr: true,
		},
		{
			name:    "invalid answer is rejected",
			answers: Answers{"nodes": "maybe"},
			want:    NotRun,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.answers)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Evaluate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Evaluate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseAnswer(t *testing.T) {
	tests := map[string]Answer{
		"y": Yes, "YES": Yes, " no ": No, "N": No, "n/a": NA, "na": NA, "-": NA,
	}
	for in, want := range tests {
		got, err := ParseAnswer(in)
		if err != nil {
			t.Errorf("ParseAnswer(%q) failed: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseAnswer(%q) = %q, want %q", in, got, want)
		}
	}

	if _, err := ParseAnswer("sometimes"); err == nil {
		t.Error("Expected error for invalid answer")
	}
}

func TestAnswers_Ordered(t *testing.T) {
	a := Answers{"dashboard": Yes, "custom": NA, "nodes": No}
	got := a.Ordered(DefaultQuestions)

	keys := make([]string, len(got))
	for i, qa := range got {
		keys[i] = qa.Question.Key
	}
	want := []string{"nodes", "dashboard", "custom"}
	if strings.Join(keys, ",") != strings.Join(want, ",") {
		t.Errorf("Ordered() keys = %v, want %v", keys, want)
	}
	if got[0].Question.Text != "Are all nodes running?" {
		t.Errorf("Expected question text to be resolved, got %q", got[0].Question.Text)
	}
}

func TestQuestionnaire_AllAnswered(t *testing.T) {
	questions := DefaultQuestions[:3]
	in := strings.NewReader("yes\nmaybe\nn/a\ny\n")
	var out bytes.Buffer

	answers, err := NewQuestionnaire(questions, in, &out).Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := Answers{"nodes": Yes, "bootstrap": NA, "dashboard": Yes}
	for k, v := range want {
		if answers[k] != v {
			t.Errorf("Answer for %s = %q, want %q", k, answers[k], v)
		}
	}
	if !strings.Contains(out.String(), "invalid answer") {
		t.Error("Expected the invalid answer to be reported")
	}
}

func TestQuestionnaire_StopAfterNoFillsRemaining(t *testing.T) {
	questions := DefaultQuestions[:4]
	in := strings.NewReader("yes\nno\nn\n")

	answers, err := NewQuestionnaire(questions, in, &bytes.Buffer{}).Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if answers["bootstrap"] != No {
		t.Errorf("Expected bootstrap=no, got %q", answers["bootstrap"])
	}
	if answers["dashboard"] != NA || answers["generic-peers"] != NA {
		t.Errorf("Expected remaining questions to be n/a, got %v", answers)
	}

	result, err := Evaluate(answers)
	if err != nil || result != Failed {
		t.Errorf("Expected failed result, got %q (%v)", result, err)
	}
}

func TestQuestionnaire_ContinueAfterNo(t *testing.T) {
	questions := DefaultQuestions[:3]
	in := strings.NewReader("no\ny\nyes\nyes\n")

	answers, err := NewQuestionnaire(questions, in, &bytes.Buffer{}).Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if answers["bootstrap"] != Yes || answers["dashboard"] != Yes {
		t.Errorf("Expected remaining questions answered, got %v", answers)
	}
}

func TestQuestionnaire_EOFCancels(t *testing.T) {
	_, err := NewQuestionnaire(DefaultQuestions, strings.NewReader("yes\n"), &bytes.Buffer{}).Run()
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("Expected ErrCancelled, got %v", err)
	}
}
