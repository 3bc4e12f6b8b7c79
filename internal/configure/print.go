package configure

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gmab/internal/config"
)

// Print shows the location and contents of both configuration files in dir.
// Secret values in providers.json are replaced with config.Mask.
func Print(dir string, out io.Writer) error {
	files := []struct {
		name, title string
		mask        bool
	}{
		{config.GeneralFile, "General Configuration", false},
		{config.ProvidersFile, "Provider Configuration", true},
	}

	for _, f := range files {
		path := filepath.Join(dir, f.name)
		fmt.Fprintf(out, "\n%s\n", f.title)
		fmt.Fprintf(out, "Location: %s\n", path)

		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintln(out, "File does not exist")
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}

		contents, err := render(data, f.mask)
		if err != nil {
			fmt.Fprintf(out, "Error reading configuration: %v\n", err)
			continue
		}
		fmt.Fprintln(out, "Contents:")
		fmt.Fprintln(out, contents)
	}
	return nil
}

func render(data []byte, mask bool) (string, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", err
	}
	if mask {
		maskSecrets(doc)
	}

	pretty, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	return string(pretty), nil
}

// maskSecrets masks non-empty config.SecretKeys values in every provider entry
func maskSecrets(doc any) {
	providers, ok := doc.(map[string]any)
	if !ok {
		return
	}
	for _, entry := range providers {
		fields, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		for _, key := range config.SecretKeys {
			if v, ok := fields[key]; ok && v != nil && v != "" {
				fields[key] = config.Mask
			}
		}
	}
}
