package data

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadStatusInfo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.yml")
	doc := `
version:
  name: "custom 1.8"
  protocol: 47
players:
  max: 64
description:
  text: "welcome"
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	info, err := LoadStatusInfo(path, 47, "fallback")
	if err != nil {
		t.Fatal(err)
	}
	if info.Version.Name != "custom 1.8" || info.Players.Max != 64 || info.Description.Text != "welcome" {
		t.Errorf("loaded %+v", info)
	}
}

func TestLoadStatusInfoMissingFile(t *testing.T) {
	info, err := LoadStatusInfo(filepath.Join(t.TempDir(), "nope.yml"), 47, "railsgo")
	if err != nil {
		t.Fatalf("missing file should fall back to defaults: %v", err)
	}
	if info.Version.Protocol != 47 || info.Version.Name != "railsgo" {
		t.Errorf("defaults %+v", info)
	}
}

func TestStatusJSON(t *testing.T) {
	info, err := LoadStatusInfo(filepath.Join(t.TempDir(), "nope.yml"), 47, "railsgo")
	if err != nil {
		t.Fatal(err)
	}
	raw, err := info.JSON(12)
	if err != nil {
		t.Fatal(err)
	}

	var decoded struct {
		Version struct {
			Name     string `json:"name"`
			Protocol int32  `json:"protocol"`
		} `json:"version"`
		Players struct {
			Max    int `json:"max"`
			Online int `json:"online"`
		} `json:"players"`
		Description struct {
			Text string `json:"text"`
		} `json:"description"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Players.Online != 12 {
		t.Errorf("online %d, want 12", decoded.Players.Online)
	}
	if decoded.Version.Protocol != 47 {
		t.Errorf("protocol %d", decoded.Version.Protocol)
	}
	// Rendering must not mutate the shared template.
	if info.Players.Online != 0 {
		t.Error("template online count mutated")
	}
}
