package security

import (
	"strings"
	"testing"
)

func TestSanitize_RemovesDangerousMarkup(t *testing.T) {
	s := NewContentSanitizer()

	tests := []struct {
		name    string
		input   string
		absent  []string
		present []string
	}{
		{
			name:    "script removed",
			input:   `<p>Hola</p><script>alert(1)</script>`,
			absent:  []string{"<script", "alert(1)"},
			present: []string{"<p>Hola</p>"},
		},
		{
			name:   "event handler removed",
			input:  `<p onclick="steal()">texto</p>`,
			absent: []string{"onclick"},
		},
		{
			name:   "iframe removed",
			input:  `<iframe src="https://evil.example"></iframe><p>ok</p>`,
			absent: []string{"<iframe"},
		},
		{
			name:   "javascript link removed",
			input:  `<a href="javascript:alert(1)">x</a>`,
			absent: []string{"javascript:"},
		},
		{
			name:    "headings and code kept",
			input:   `<h2>Título</h2><pre><code class="language-go">fmt.Println()</code></pre>`,
			present: []string{"<h2>Título</h2>", `class="language-go"`},
		},
		{
			name:    "relative image kept",
			input:   `<img src="/storage/cover.png" alt="Portada">`,
			present: []string{`src="/storage/cover.png"`, `alt="Portada"`},
		},
		{
			name:   "http image dropped",
			input:  `<img src="http://insecure.example/a.png">`,
			absent: []string{"http://insecure.example"},
		},
		{
			name:    "external link hardened",
			input:   `<a href="https://nuxt.com">Nuxt</a>`,
			present: []string{`target="_blank"`, "noopener", "noreferrer"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Sanitize(tt.input)
			for _, a := range tt.absent {
				if strings.Contains(got, a) {
					t.Errorf("Sanitize(%q) = %q, should not contain %q", tt.input, got, a)
				}
			}
			for _, p := range tt.present {
				if !strings.Contains(got, p) {
					t.Errorf("Sanitize(%q) = %q, should contain %q", tt.input, got, p)
				}
			}
		})
	}
}

func TestSanitize_EmptyAndIdempotent(t *testing.T) {
	s := NewContentSanitizer()
	if got := s.Sanitize(""); got != "" {
		t.Errorf("Sanitize(\"\") = %q, want empty", got)
	}

	in := `<p>Uno <strong>dos</strong></p><ul><li>tres</li></ul>`
	once := s.Sanitize(in)
	if twice := s.Sanitize(once); twice != once {
		t.Errorf("Sanitize is not idempotent: %q != %q", twice, once)
	}
}
