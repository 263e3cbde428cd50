package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"text/tabwriter"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/nfrund/wirecall/internal/events"
	"github.com/nfrund/wirecall/internal/schema"
)

func newSchemaCommand(fs afero.Fs) *cobra.Command {
	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Work with interface definition files",
		Long: `The schema command compiles interface definition files (YAML or JSON) the
same way nodes compile their interfaces, and prints the method ids, parameter
signatures and fingerprints that end up on the wire.

Composite parameter types are resolved against the built-in sample catalog
(Composite, SimpleComposite).`,
	}
	schemaCmd.AddCommand(newSchemaCompileCommand(fs))
	return schemaCmd
}

func newSchemaCompileCommand(fs afero.Fs) *cobra.Command {
	var (
		format string
		watch  bool
	)
	compileCmd := &cobra.Command{
		Use:   "compile <file>",
		Short: "Compile a definition file and print its descriptors",
		Long: `Compile a definition file and print every interface with its methods.

Examples:
  wirecall schema compile events.yaml                 # Table output
  wirecall schema compile events.yaml --format json   # JSON output
  wirecall schema compile events.yaml --watch         # Recompile on every save

Output formats:
  table - Human-readable table format (default)
  json  - Machine-readable JSON format`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "table" && format != "json" {
				return fmt.Errorf("unsupported output format %q, use 'table' or 'json'", format)
			}
			path := args[0]
			if err := compile(fs, path, format, cmd.OutOrStdout()); err != nil {
				if !watch {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			}
			if !watch {
				return nil
			}
			return watchDefinitions(cmd.Context(), fs, path, format, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	compileCmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, json)")
	compileCmd.Flags().BoolVarP(&watch, "watch", "w", false, "Recompile whenever the file changes")
	return compileCmd
}

func compile(fs afero.Fs, path, format string, out io.Writer) error {
	descs, err := schema.LoadFile(fs, path, events.Catalog())
	if err != nil {
		return err
	}
	if format == "json" {
		return displayJSON(out, descs)
	}
	displayTable(out, descs)
	return nil
}

type methodDisplay struct {
	ID        int32  `json:"id"`
	Name      string `json:"name"`
	Signature string `json:"signature"`
}

type interfaceDisplay struct {
	Name         string          `json:"name"`
	Capabilities []string        `json:"capabilities"`
	Fingerprint  string          `json:"fingerprint"`
	Methods      []methodDisplay `json:"methods"`
}

func displayJSON(out io.Writer, descs []*schema.InterfaceDescriptor) error {
	displays := make([]interfaceDisplay, len(descs))
	for i, d := range descs {
		displays[i] = interfaceDisplay{
			Name:         d.Name,
			Capabilities: d.Capabilities,
			Fingerprint:  fmt.Sprintf("%016x", d.Fingerprint()),
			Methods:      make([]methodDisplay, len(d.Methods)),
		}
		for j := range d.Methods {
			m := &d.Methods[j]
			displays[i].Methods[j] = methodDisplay{ID: m.ID, Name: m.Name, Signature: m.Signature()}
		}
	}

	output := struct {
		Interfaces []interfaceDisplay `json:"interfaces"`
		Count      int                `json:"count"`
	}{
		Interfaces: displays,
		Count:      len(displays),
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func displayTable(out io.Writer, descs []*schema.InterfaceDescriptor) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "INTERFACE\tID\tMETHOD\tSIGNATURE\tFINGERPRINT")
	fmt.Fprintln(w, "---------\t--\t------\t---------\t-----------")
	if len(descs) == 0 {
		fmt.Fprintln(w, "No interfaces found")
		return
	}
	for _, d := range descs {
		fp := fmt.Sprintf("%016x", d.Fingerprint())
		if len(d.Methods) == 0 {
			fmt.Fprintf(w, "%s\t-\t-\t-\t%s\n", d.Name, fp)
			continue
		}
		for j := range d.Methods {
			m := &d.Methods[j]
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", d.Name, m.ID, m.Name, truncateString(m.Signature(), 60), fp)
		}
	}
}

// watchDefinitions recompiles path on every write until ctx is done. The
// parent directory is watched so editors that replace the file are seen.
func watchDefinitions(ctx context.Context, fs afero.Fs, path, format string, out, errOut io.Writer) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file system watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	slog.Debug("Watching definition file", "path", target)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			fmt.Fprintf(out, "# %s changed, recompiling\n", target)
			if err := compile(fs, target, format, out); err != nil {
				fmt.Fprintf(errOut, "Error: %v\n", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("File system watcher error", "error", err)
		}
	}
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
