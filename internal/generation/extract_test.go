package generation

import (
	"errors"
	"testing"
)

func TestExtractImageRef_Markdown(t *testing.T) {
	raw := "Here is your stylized image:\n\n![result](https://cdn.openai.com/outputs/abc123.png)\n\nEnjoy!"
	ref, err := ExtractImageRef(raw)
	if err != nil {
		t.Fatalf("ExtractImageRef: %v", err)
	}
	if ref != "https://cdn.openai.com/outputs/abc123.png" {
		t.Errorf("ref: got %q", ref)
	}
}

func TestExtractImageRef_DataURI(t *testing.T) {
	raw := "Done! data:image/png;base64,iVBORw0KGgoAAAANSUhEUg== hope you like it"
	ref, err := ExtractImageRef(raw)
	if err != nil {
		t.Fatalf("ExtractImageRef: %v", err)
	}
	if ref != "data:image/png;base64,iVBORw0KGgoAAAANSUhEUg==" {
		t.Errorf("ref: got %q", ref)
	}
}

func TestExtractImageRef_BareURL(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{
			"image extension",
			"Your result is ready at https://files.invalid/out/42.webp.",
			"https://files.invalid/out/42.webp",
		},
		{
			"query string",
			"See https://files.invalid/out/42.png?sig=xyz for the image",
			"https://files.invalid/out/42.png?sig=xyz",
		},
		{
			"image in path",
			"Result: https://files.invalid/images/render/42",
			"https://files.invalid/images/render/42",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ref, err := ExtractImageRef(tc.raw)
			if err != nil {
				t.Fatalf("ExtractImageRef: %v", err)
			}
			if ref != tc.want {
				t.Errorf("ref: got %q, want %q", ref, tc.want)
			}
		})
	}
}

func TestExtractImageRef_Refusals(t *testing.T) {
	cases := []string{
		"I'm sorry, but I can't help with that request.",
		"I cannot generate that image as it violates content policy.",
		"As an AI, I am unable to produce this.",
	}
	for _, raw := range cases {
		if _, err := ExtractImageRef(raw); !errors.Is(err, ErrRefused) {
			t.Errorf("%q: expected ErrRefused, got: %v", raw, err)
		}
	}
}

// A refusal that also contains a URL is still a refusal.
func TestExtractImageRef_RefusalWinsOverURL(t *testing.T) {
	raw := "I can't generate that, see https://policy.invalid/rules.png for details"
	if _, err := ExtractImageRef(raw); !errors.Is(err, ErrRefused) {
		t.Errorf("expected ErrRefused, got: %v", err)
	}
}

func TestExtractImageRef_Placeholders(t *testing.T) {
	cases := []string{
		"![result](https://example.com/image.png)",
		"Here: https://host.invalid/path/to/your-image.png",
		"![out](https://cdn.invalid/placeholder.png)",
	}
	for _, raw := range cases {
		if _, err := ExtractImageRef(raw); !errors.Is(err, ErrNoResult) {
			t.Errorf("%q: expected ErrNoResult, got: %v", raw, err)
		}
	}
}

func TestExtractImageRef_NoCandidate(t *testing.T) {
	cases := []string{
		"",
		"   \n ",
		"A lovely description of a fox, but no image anywhere.",
		"Docs live at https://docs.invalid/start (not an image)",
	}
	for _, raw := range cases {
		if _, err := ExtractImageRef(raw); !errors.Is(err, ErrNoResult) {
			t.Errorf("%q: expected ErrNoResult, got: %v", raw, err)
		}
	}
}

// Markdown wins over a bare URL elsewhere in the reply.
func TestExtractImageRef_Preference(t *testing.T) {
	raw := "Served from https://mirror.invalid/alt.png\n![main](https://cdn.invalid/main.png)"
	ref, err := ExtractImageRef(raw)
	if err != nil {
		t.Fatalf("ExtractImageRef: %v", err)
	}
	if ref != "https://cdn.invalid/main.png" {
		t.Errorf("ref: got %q, want the markdown candidate", ref)
	}
}

func TestExtractImageRef_TrailingPunctuation(t *testing.T) {
	ref, err := ExtractImageRef("Your image: https://cdn.invalid/out.png.")
	if err != nil {
		t.Fatalf("ExtractImageRef: %v", err)
	}
	if ref != "https://cdn.invalid/out.png" {
		t.Errorf("ref: got %q", ref)
	}
}
