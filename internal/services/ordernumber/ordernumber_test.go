package ordernumber

import (
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	number := Generate()

	if !strings.HasPrefix(number, "ORD") {
		t.Errorf("Generate() = %s, want ORD prefix", number)
	}

	if err := Validate(number); err != nil {
		t.Errorf("Validate(%s) error = %v", number, err)
	}
}

func TestGenerateUnique(t *testing.T) {
	seen := make(map[string]struct{})

	for i := 0; i < 100; i++ {
		number := Generate()

		if _, ok := seen[number]; ok {
			t.Fatalf("Generate() repeated %s", number)
		}

		seen[number] = struct{}{}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		number  string
		wantErr bool
	}{
		{name: "no prefix", number: "12345678903", wantErr: true},
		{name: "prefix only", number: "ORD", wantErr: true},
		{name: "bad check digit", number: "ORD12345678904", wantErr: true},
		{name: "valid", number: "ORD12345678903", wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.number)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%s) error = %v, wantErr %v", tt.number, err, tt.wantErr)
			}
		})
	}
}
