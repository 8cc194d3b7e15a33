package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nvandessel/labkit/internal/archive"
	"github.com/nvandessel/labkit/internal/fault"
	"github.com/nvandessel/labkit/internal/library"
	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <experiment> <path>",
		Short: "Write a saved experiment to an archive file",
		Long: `Write the latest saved version of an experiment, or an older one with
--version, to a .sav file the simulator can open or to a .lkb bundle.

The format comes from --format, then the file extension, then sav.

Examples:
  labkit export adder ~/Desktop/adder.sav
  labkit export adder adder.lkb
  labkit export adder old.sav --version experiments/adder/20260401T090000.000000000Z.sav`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatName, _ := cmd.Flags().GetString("format")
			key, _ := cmd.Flags().GetString("version")
			name, path := args[0], filepath.Clean(args[1])

			format, err := archive.FormatFor(formatName, path)
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			var doc *archive.Document
			if key != "" {
				doc, err = a.lib.LoadVersion(ctx, key)
			} else {
				doc, _, err = a.lib.Load(ctx, name)
			}
			if err != nil {
				return err
			}
			if doc.Name != name {
				return fmt.Errorf("version %s belongs to %q, not %q", key, doc.Name, name)
			}

			var buf bytes.Buffer
			if err := archive.Encode(&buf, doc, format); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
				return fmt.Errorf("failed to create export directory: %w", err)
			}
			if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
				return fmt.Errorf("failed to write archive: %w", err)
			}

			result := map[string]any{"path": path, "format": format, "size_bytes": buf.Len()}
			return emit(cmd, result, func(w io.Writer) {
				fmt.Fprintf(w, "Exported %q to %s (%s, %d bytes)\n", name, path, format, buf.Len())
			})
		},
	}

	cmd.Flags().String("format", "", "Archive format: sav or bundle")
	cmd.Flags().String("version", "", "Storage key of an older version (see 'labkit versions')")

	return cmd
}

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <path>",
		Short: "Save an archive file into the library",
		Long: `Read a .sav or .lkb archive and save it into the library under the name
stored in the archive. Foreign .sav files from the simulator are accepted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overwrite, _ := cmd.Flags().GetBool("overwrite")

			f, err := os.Open(filepath.Clean(args[0]))
			if err != nil {
				return fmt.Errorf("failed to open archive: %w", err)
			}
			defer f.Close()

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			e, err := a.wb.Import(ctx, f)
			if err != nil {
				return err
			}
			if !overwrite {
				exists, err := a.lib.Exists(ctx, e.Name())
				if err != nil || exists {
					_ = a.wb.Close(ctx, e, false)
					if err != nil {
						return err
					}
					return fault.New(fault.KindExperimentExists, "experiment %q already exists; use --overwrite to add a new version", e.Name())
				}
			}
			var entry *library.Entry
			if entry, err = a.wb.Save(ctx, e); err != nil {
				_ = a.wb.Close(ctx, e, false)
				return err
			}
			if err := a.wb.Close(ctx, e, false); err != nil {
				return err
			}

			return emit(cmd, entry, func(w io.Writer) {
				fmt.Fprintf(w, "Imported %q (%s, %d elements, %d wires)\n", entry.Name, entry.Type, entry.Elements, entry.Wires)
			})
		},
	}

	cmd.Flags().Bool("overwrite", false, "Save even if an experiment with the same name exists")

	return cmd
}
