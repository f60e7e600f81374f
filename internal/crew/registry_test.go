package crew

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	xerrors "AI-Agency/internal/errors"
)

func TestBuiltinDefinitionsAreValid(t *testing.T) {
	registry, err := NewRegistry(BuiltinDefinitions()...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	names := registry.Names()
	want := []string{"analysis", "marketing", "social_media", "support"}
	if len(names) != len(want) {
		t.Fatalf("unexpected names: %v", names)
	}
	for i, name := range want {
		if names[i] != name {
			t.Fatalf("unexpected names: %v", names)
		}
	}
}

func TestLookupUnknownCrew(t *testing.T) {
	registry, err := NewRegistry(BuiltinDefinitions()...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := registry.Lookup("nonexistent"); !errors.Is(err, ErrCrewNotFound) {
		t.Fatalf("expected ErrCrewNotFound, got %v", err)
	}
}

func TestValidateRejectsUnknownAgent(t *testing.T) {
	def := Definition{
		Name:   "broken",
		Agents: []AgentSpec{{Name: "writer", Role: "Writer"}},
		Tasks:  []TaskSpec{{Name: "write", Agent: "ghost", Description: "x"}},
	}

	if _, err := NewRegistry(def); xerrors.CodeOf(err) != CodeCrewInvalid {
		t.Fatalf("expected %s, got %v", CodeCrewInvalid, err)
	}
}

func TestValidateRejectsForwardContext(t *testing.T) {
	def := Definition{
		Name:   "broken",
		Agents: []AgentSpec{{Name: "writer", Role: "Writer"}},
		Tasks: []TaskSpec{
			{Name: "first", Agent: "writer", Description: "x", Context: []string{"second"}},
			{Name: "second", Agent: "writer", Description: "y"},
		},
	}

	if _, err := NewRegistry(def); xerrors.CodeOf(err) != CodeCrewInvalid {
		t.Fatalf("expected %s, got %v", CodeCrewInvalid, err)
	}
}

func TestExternalDefinitionOverridesBuiltin(t *testing.T) {
	custom := Definition{
		Name:   "marketing",
		Agents: []AgentSpec{{Name: "copywriter", Role: "Copywriter"}},
		Tasks:  []TaskSpec{{Name: "slogan", Agent: "copywriter", Description: "write a slogan"}},
	}

	definitions := append(BuiltinDefinitions(), custom)
	registry, err := NewRegistry(definitions...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	def, err := registry.Lookup("marketing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(def.Agents) != 1 || def.Agents[0].Name != "copywriter" {
		t.Fatalf("expected custom definition to win, got %+v", def)
	}
}

func TestLoadDefinitions(t *testing.T) {
	content := `crews:
  - name: translation
    description: translate text
    inputs:
      - name: text
        required: true
      - name: language
        default: English
    agents:
      - name: translator
        role: Professional Translator
        goal: Translate text into {language}
        backstory: You translate with precision.
    tasks:
      - name: translate
        agent: translator
        description: "Translate the following text into {language}: {text}"
        expected_output: The translated text
`
	path := filepath.Join(t.TempDir(), "crews.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	definitions, err := LoadDefinitions(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(definitions) != 1 {
		t.Fatalf("unexpected definitions: %+v", definitions)
	}

	registry, err := NewRegistry(definitions...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := registry.Lookup("translation"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadDefinitionsMissingFile(t *testing.T) {
	if _, err := LoadDefinitions(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
