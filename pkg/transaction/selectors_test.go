package transaction

import "testing"

func TestSelectors_Lookup(t *testing.T) {
	s := NewSelectors().
		Type("AuditRepo", "audit").
		Method("AuditRepo", "Archive", "archive").
		Extends("UserAuditRepo", "AuditRepo").
		Extends("AdminAuditRepo", "UserAuditRepo").
		Method("AdminAuditRepo", "Purge", "admin").
		Extends("Cycle", "Cycle")

	tests := []struct {
		name   string
		call   *Call
		want   string
		wantOK bool
	}{
		{"explicit call value wins", &Call{Receiver: "AuditRepo", Method: "Archive", Database: "B"}, "B", true},
		{"method registration", &Call{Receiver: "AuditRepo", Method: "Archive"}, "archive", true},
		{"type registration", &Call{Receiver: "AuditRepo", Method: "Read"}, "audit", true},
		{"inherited type", &Call{Receiver: "UserAuditRepo", Method: "Read"}, "audit", true},
		{"inherited method override", &Call{Receiver: "AdminAuditRepo", Method: "Archive"}, "archive", true},
		{"own method", &Call{Receiver: "AdminAuditRepo", Method: "Purge"}, "admin", true},
		{"unregistered", &Call{Receiver: "Other", Method: "Read"}, "", false},
		{"self cycle terminates", &Call{Receiver: "Cycle"}, "", false},
		{"nil call", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := s.Lookup(tt.call)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Lookup() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestSelectors_NilTableHonorsExplicitValue(t *testing.T) {
	var s *Selectors
	if got, ok := s.Lookup(&Call{Database: "B"}); !ok || got != "B" {
		t.Fatalf("Lookup() = (%q, %v), want (\"B\", true)", got, ok)
	}
	if _, ok := s.Lookup(&Call{Receiver: "X"}); ok {
		t.Fatal("nil table should not resolve registrations")
	}
}
