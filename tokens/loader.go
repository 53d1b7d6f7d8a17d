package tokens

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

/* Loader for operator-supplied token files.
 *
 * The fleet sync job needs Trello user tokens beyond the ones already in
 * the database - tokens whose webhooks were registered out of band and
 * should be adopted locally. Operators keep them in a small YAML file:
 *
 *   tokens:
 *     - 62b9a4a6...
 *     - 9f31c0d2...
 */

type file struct {
	Tokens []string `yaml:"tokens"`
}

// Load reads and parses a token file, dropping blanks and duplicates
func Load(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading token file: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing token file: %w", err)
	}

	seen := make(map[string]bool)
	tokens := make([]string, 0, len(f.Tokens))
	for _, t := range f.Tokens {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tokens = append(tokens, t)
	}
	return tokens, nil
}
