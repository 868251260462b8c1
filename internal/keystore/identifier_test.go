package keystore

import (
	"context"
	"testing"
)

func TestValidateTableName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"keys", false},
		{"license_keys", false},
		{"_keys2", false},
		{"", true},
		{"2keys", true},
		{"keys; DROP TABLE x", true},
		{"my-keys", true},
		{"select", true},
		{"User", true},
		{"a_table_name_that_is_far_too_long", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTableName(tt.name)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTableName(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
		})
	}
}

func TestOpenRejectsBadTable(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "sqlite", Table: "keys;--"})
	if err == nil {
		t.Fatal("expected error for an unsafe table name")
	}
}

func TestOpenCustomTable(t *testing.T) {
	s, err := Open(context.Background(), Config{Driver: "sqlite", Table: "license_keys"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if _, err := s.CountKeys(context.Background()); err != nil {
		t.Errorf("CountKeys on custom table: %v", err)
	}
}
