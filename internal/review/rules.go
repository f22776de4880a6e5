package review

import (
	"fmt"
	"os"
)

// LoadRules reads the project rules file. The content is returned verbatim
// because it is embedded in every prompt as written.
func LoadRules(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("rules file path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading rules file: %w", err)
	}
	return string(data), nil
}
