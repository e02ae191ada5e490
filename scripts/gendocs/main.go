// Package main generates markdown reference documentation for the fedplan
// command line and configuration file.
//
// Usage:
//
//	go run ./scripts/gendocs -gen=cli -outdir=docs/cli
//	go run ./scripts/gendocs -gen=config -outdir=docs/reference
//	go run ./scripts/gendocs -gen=all
package main

import (
	"errors"
	"flag"
	"log"
	"os"
	"path/filepath"
)

// generators maps each -gen value to its writer and default directory under docs/.
var generators = map[string]struct {
	dir string
	run func(outDir string) error
}{
	"cli":    {"cli", generateCLIDocs},
	"config": {"reference", generateConfigDocs},
}

func main() {
	gen := flag.String("gen", "all", "what to generate: cli, config, all")
	outDir := flag.String("outdir", "", "output directory (defaults based on gen type)")
	flag.Parse()

	selected := []string{*gen}
	if *gen == "all" {
		selected = []string{"cli", "config"}
		*outDir = ""
	}

	root, err := moduleRoot()
	if err != nil {
		log.Fatalf("failed to find module root: %v", err)
	}

	for _, name := range selected {
		g, ok := generators[name]
		if !ok {
			log.Fatalf("unknown -gen value: %s (use: cli, config, all)", name)
		}
		dir := *outDir
		if dir == "" {
			dir = filepath.Join(root, "docs", g.dir)
		}
		if err := g.run(dir); err != nil {
			log.Fatalf("failed to generate %s docs: %v", name, err)
		}
	}
	log.Println("Done!")
}

// moduleRoot returns the closest directory at or above the working directory holding go.mod.
func moduleRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("no go.mod above the working directory")
		}
		dir = parent
	}
}
