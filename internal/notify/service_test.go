package notify

import (
	"net/smtp"
	"strings"
	"testing"
	"time"

	"rulehistory/internal/report"
	"rulehistory/internal/rules"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{name: "empty config", config: Config{}, expected: false},
		{name: "missing recipients", config: Config{Host: "smtp.example.com", Port: "587", From: "rules@example.com"}, expected: false},
		{name: "complete", config: Config{Host: "smtp.example.com", Port: "587", From: "rules@example.com", To: []string{"clerk@example.com"}}, expected: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewService(tt.config).IsConfigured(); got != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestNotifyConflictsSendsOnlyConflicts(t *testing.T) {
	svc := NewService(Config{Host: "smtp.example.com", Port: "25", From: "rules@example.com", FromName: "Rule History", To: []string{"clerk@example.com"}})
	var sent []byte
	calls := 0
	svc.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		calls++
		if addr != "smtp.example.com:25" || from != "rules@example.com" || len(to) != 1 {
			t.Fatalf("unexpected envelope %s %s %v", addr, from, to)
		}
		sent = msg
		return nil
	}

	summary := report.Summary{RunID: "run_1", Mode: "update"}
	summary.Add(report.Newf(report.KindMalformedVersionData, rules.DocumentID{Category: "ndrappp", Slug: "rule-3"}, nil, "bad date"))
	if err := svc.NotifyConflicts(summary); err != nil {
		t.Fatalf("NotifyConflicts() error = %v", err)
	}
	if calls != 0 {
		t.Fatalf("sent %d mails without conflicts", calls)
	}

	summary.Add(report.Newf(report.KindOrderingConflict, rules.DocumentID{Category: "ndrappp", Slug: "rule-28"},
		[]rules.Date{rules.NewDate(2005, time.January, 1), rules.NewDate(2010, time.June, 1)}, "older than latest"))
	if err := svc.NotifyConflicts(summary); err != nil {
		t.Fatalf("NotifyConflicts() error = %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	msg := string(sent)
	for _, want := range []string{
		"Subject: [rulehistory] 1 ordering conflict(s) in update run run_1",
		"From: Rule History <rules@example.com>",
		"ordering_conflict ndrappp/rule-28 [2005-01-01, 2010-06-01]: older than latest",
		"<td>2005-01-01, 2010-06-01</td>",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
	if strings.Contains(msg, "rule-3") {
		t.Error("message includes non-conflict problem")
	}
}
