// Command gendocs generates markdown docs, man pages and shell completions
// for the syncx CLI.
//
// Usage: gendocs <markdown|man|completions> [output dir]
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/bolasblack/syncx/internal/cli"
)

var generators = map[string]struct {
	dir string
	gen func(cmd *cobra.Command, dir string) error
}{
	"markdown":    {"docs/commands", generateMarkdown},
	"man":         {"out/man", generateMan},
	"completions": {"out/completions", generateCompletions},
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: gendocs <markdown|man|completions> [output dir]")
		os.Exit(1)
	}
	g, ok := generators[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown format: %s\n", os.Args[1])
		os.Exit(1)
	}
	dir := g.dir
	if len(os.Args) > 2 {
		dir = os.Args[2]
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create %s: %v\n", dir, err)
		os.Exit(1)
	}
	if err := g.gen(cli.GetRootCmd(), dir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
	fmt.Printf("Generated %s in %s/\n", os.Args[1], dir)
}

// generateMarkdown writes one page per command with front matter for
// static site generators.
func generateMarkdown(cmd *cobra.Command, dir string) error {
	date := time.Now().Format("2006-01-02")
	frontMatter := func(filename string) string {
		base := strings.TrimSuffix(filepath.Base(filename), ".md")
		return fmt.Sprintf("---\ntitle: %q\ndate: %s\n---\n\n", strings.ReplaceAll(base, "_", " "), date)
	}
	link := func(name string) string {
		return "./" + strings.TrimSuffix(name, filepath.Ext(name)) + ".md"
	}
	return doc.GenMarkdownTreeCustom(cmd, dir, frontMatter, link)
}

func generateMan(cmd *cobra.Command, dir string) error {
	return doc.GenManTree(cmd, &doc.GenManHeader{
		Title:   "SYNCX",
		Section: "1",
		Source:  "syncx " + cli.Version,
		Manual:  "syncx Manual",
	}, dir)
}

func generateCompletions(cmd *cobra.Command, dir string) error {
	shells := map[string]func(io.Writer) error{
		"syncx.bash": func(w io.Writer) error { return cmd.GenBashCompletionV2(w, true) },
		"syncx.zsh":  cmd.GenZshCompletion,
		"syncx.fish": func(w io.Writer) error { return cmd.GenFishCompletion(w, true) },
		"syncx.ps1":  cmd.GenPowerShellCompletionWithDesc,
	}
	for name, gen := range shells {
		if err := writeFile(filepath.Join(dir, name), gen); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, gen func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gen(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}
