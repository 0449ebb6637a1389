package policy

import (
	"testing"
)

func TestParseDaySet(t *testing.T) {
	set, err := ParseDaySet("7, 3,1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if set.Len() != 3 {
		t.Errorf("expected 3 offsets, got %d", set.Len())
	}
	for _, d := range []int{1, 3, 7} {
		if !set.Contains(d) {
			t.Errorf("expected set to contain %d", d)
		}
	}
	if set.Contains(2) {
		t.Error("set should not contain 2")
	}
}

func TestParseDaySet_Empty(t *testing.T) {
	set, err := ParseDaySet("")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if set.Len() != 0 {
		t.Errorf("expected empty set, got %d offsets", set.Len())
	}
	if set.Contains(0) {
		t.Error("empty set should contain nothing")
	}
}

func TestParseDaySet_Duplicates(t *testing.T) {
	set, err := ParseDaySet("7,7,7,3")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if set.Len() != 2 {
		t.Errorf("expected duplicates to collapse to 2 offsets, got %d", set.Len())
	}
}

func TestParseDaySet_Negative(t *testing.T) {
	if _, err := ParseDaySet("7,-3"); err == nil {
		t.Error("expected error for negative offset")
	}
}

func TestParseDaySet_Garbage(t *testing.T) {
	if _, err := ParseDaySet("7,banana"); err == nil {
		t.Error("expected error for non-numeric offset")
	}
}

func TestDaySet_SortedString(t *testing.T) {
	set, err := ParseDaySet("14,1,7")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := set.String(); got != "1,7,14" {
		t.Errorf("expected sorted string %q, got %q", "1,7,14", got)
	}
}

func TestDaySet_DaysReturnsCopy(t *testing.T) {
	set := NewDaySet(1, 7)
	days := set.Days()
	days[0] = 99
	if set.Contains(99) {
		t.Error("mutating the returned slice must not affect the set")
	}
}

func TestReminderPolicy_Validate(t *testing.T) {
	valid := ReminderPolicy{
		ReminderMethod:      MethodEmail,
		StatementMethod:     MethodEmail,
		StatementDayOfMonth: 1,
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("expected valid policy, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*ReminderPolicy)
	}{
		{"bad reminder method", func(p *ReminderPolicy) { p.ReminderMethod = "pigeon" }},
		{"bad statement method", func(p *ReminderPolicy) { p.StatementMethod = "" }},
		{"statement day zero", func(p *ReminderPolicy) { p.StatementDayOfMonth = 0 }},
		{"statement day 29", func(p *ReminderPolicy) { p.StatementDayOfMonth = 29 }},
		{"negative escalation threshold", func(p *ReminderPolicy) {
			p.SMSEscalationEnabled = true
			p.SMSEscalationDaysOverdue = -1
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			if err := p.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestMethod_Valid(t *testing.T) {
	for _, m := range []Method{MethodEmail, MethodSMS, MethodBoth} {
		if !m.Valid() {
			t.Errorf("expected %q to be valid", m)
		}
	}
	if Method("fax").Valid() {
		t.Error("unknown method should be invalid")
	}
}
