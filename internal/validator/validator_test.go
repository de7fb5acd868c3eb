package validator

import "testing"

func TestValidator_Check(t *testing.T) {
	v := New("en", "es", "de")

	tests := []struct {
		name       string
		translated string
		tgtLocale  string
		wantErr    bool
	}{
		{"matching spanish", "Hola, esto es una prueba en español de longitud suficiente.", "es", false},
		{"mismatched english for spanish", "Hello, this text is clearly written in the English language.", "es", true},
		{"short text passes", "Hola", "es", false},
		{"empty target passes", "anything at all goes here", "", false},
		{"empty translation fails", "   ", "es", true},
		{"regional variant", "Hola, esto es una prueba en español de longitud suficiente.", "es-MX", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Check(tt.translated, tt.tgtLocale)
			if (err != nil) != tt.wantErr {
				t.Errorf("Check(%q, %q) error = %v, wantErr %v", tt.translated, tt.tgtLocale, err, tt.wantErr)
			}
		})
	}
}
