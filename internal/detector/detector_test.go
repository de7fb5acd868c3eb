package detector

import "testing"

func TestDetector_DetectISO(t *testing.T) {
	d := New("en", "es", "de", "uk")

	tests := []struct {
		name     string
		text     string
		wantCode string
		wantOK   bool
	}{
		{"empty text", "", "", false},
		{"english", "Hello, this is a test in English.", "en", true},
		{"spanish", "Hola, esto es una prueba en español.", "es", true},
		{"german", "Hallo, das ist ein Test auf Deutsch.", "de", true},
		{"ukrainian", "Привіт, це тест українською мовою.", "uk", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, ok := d.DetectISO(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("DetectISO(%q) ok = %v, want %v", tt.text, ok, tt.wantOK)
			}
			if tt.wantOK && code != tt.wantCode {
				t.Errorf("DetectISO(%q) = %q, want %q", tt.text, code, tt.wantCode)
			}
		})
	}
}

func TestNew_RegionalVariantsAndUnknownCodes(t *testing.T) {
	// Regional suffixes are stripped; unknown codes are ignored rather
	// than failing construction.
	d := New("pt-BR", "xx", "es")
	code, ok := d.DetectISO("Esta é uma frase escrita em português do Brasil.")
	if !ok || code != "pt" {
		t.Errorf("DetectISO = %q, %v, want pt", code, ok)
	}
}
