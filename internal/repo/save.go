package repo

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SaveMap writes the readable tree map next to the clone for prompt
// attachment use. Returns the file path.
func (s *Survey) SaveMap(dir string) (string, error) {
	path := filepath.Join(dir, "project_map.txt")
	if err := os.WriteFile(path, []byte(s.Map), 0o644); err != nil {
		return "", fmt.Errorf("writing project map: %w", err)
	}
	return path, nil
}

// SaveInventory writes the structured inventory as JSON.
func (s *Survey) SaveInventory(dir string) (string, error) {
	path := filepath.Join(dir, "file_inventory.json")
	payload := struct {
		Stats Stats   `json:"stats"`
		Files []Entry `json:"files"`
	}{Stats: s.Stats, Files: s.Inventory}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding inventory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing inventory: %w", err)
	}
	return path, nil
}
