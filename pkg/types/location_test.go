// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"strings"
	"testing"
)

func TestLocation_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		loc     Location
		wantErr bool
	}{
		{"dotted name", Location("com.example.payment"), false},
		{"single word", Location("payment"), false},
		{"unicode", Location("com.例え.mod"), false},
		{"max length", Location(strings.Repeat("a", MaxLocationBytes)), false},
		{"empty", Location(""), true},
		{"whitespace only", Location(" \t "), true},
		{"invalid utf8", Location("bad\xff"), true},
		{"too long", Location(strings.Repeat("a", MaxLocationBytes+1)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.loc.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Location.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			if !errors.Is(err, ErrInvalidLocation) {
				t.Errorf("error should wrap ErrInvalidLocation, got: %v", err)
			}
			var locErr *InvalidLocationError
			if !errors.As(err, &locErr) {
				t.Fatalf("error should be *InvalidLocationError, got: %T", err)
			}
			if locErr.Reason == "" {
				t.Error("expected a non-empty reason")
			}
		})
	}
}
