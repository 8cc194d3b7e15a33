package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nvandessel/labkit/internal/catalog"
	"github.com/nvandessel/labkit/internal/element"
	"github.com/nvandessel/labkit/internal/experiment"
	"github.com/nvandessel/labkit/internal/exptype"
	"github.com/nvandessel/labkit/internal/fault"
	"github.com/nvandessel/labkit/internal/geom"
	"github.com/spf13/cobra"
)

func newNewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new <name>",
		Short: "Create and save an empty experiment",
		Long: `Create an empty experiment and save it to the library.

Example:
  labkit new adder --type circuit --grid --origin 0,0,0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typeName, _ := cmd.Flags().GetString("type")
			overwrite, _ := cmd.Flags().GetBool("overwrite")
			grid, _ := cmd.Flags().GetBool("grid")
			origin, _ := cmd.Flags().GetString("origin")

			typ, err := exptype.Parse(typeName)
			if err != nil {
				return err
			}
			mode := experiment.CreateNew
			if overwrite {
				mode = experiment.CreateOverwrite
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			e, err := a.wb.Create(ctx, args[0], typ, mode)
			if err != nil {
				return err
			}
			if err := configureGrid(e, grid, origin); err != nil {
				_ = a.wb.Close(ctx, e, false)
				return err
			}
			entry, err := a.wb.Save(ctx, e)
			if err != nil {
				_ = a.wb.Close(ctx, e, false)
				return err
			}
			if err := a.wb.Close(ctx, e, false); err != nil {
				return err
			}

			return emit(cmd, entry, func(w io.Writer) {
				fmt.Fprintf(w, "Created %s experiment %q\n", typ, entry.Name)
			})
		},
	}

	cmd.Flags().StringP("type", "t", "circuit", "Experiment type: circuit, celestial or electromagnetism")
	cmd.Flags().Bool("overwrite", false, "Replace a saved experiment with the same name")
	cmd.Flags().Bool("grid", false, "Read positions as grid coordinates (circuit only)")
	cmd.Flags().String("origin", "", "Native position of grid (0,0,0) as x,y,z (circuit only)")

	return cmd
}

func configureGrid(e *experiment.Experiment, grid bool, origin string) error {
	if origin != "" {
		o, err := geom.ParsePosition(origin)
		if err != nil {
			return err
		}
		if err := e.SetOrigin(o); err != nil {
			return err
		}
	}
	if grid {
		return e.SetGridMode(true)
	}
	return nil
}

// parsePosition reads the --at flag.
func parsePosition(cmd *cobra.Command) (geom.Position, error) {
	at, _ := cmd.Flags().GetString("at")
	if at == "" {
		return geom.Position{}, nil
	}
	return geom.ParsePosition(at)
}

func newPlaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "place <experiment> <model>",
		Short: "Place an element from the catalog",
		Long: `Build an element from the catalog and place it in a saved experiment.

Positions follow the experiment's grid mode unless --grid is given.

Examples:
  labkit place adder "And Gate" --at 1,0,0
  labkit place song "Simple Instrument" --at 0,0,0 --param pitch=C4 --param bpm=120`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			grid, _ := cmd.Flags().GetBool("grid")
			params, _ := cmd.Flags().GetStringToString("param")
			pos, err := parsePosition(cmd)
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var placed *element.Element
			err = a.edit(cmd.Context(), args[0], func(e *experiment.Experiment) error {
				if grid {
					el, err := a.wb.Catalog().Build(args[1], catalog.Params(params))
					if err != nil {
						return err
					}
					id, err := e.PlaceGrid(el, pos)
					if err != nil {
						return err
					}
					placed, err = e.Element(id)
					return err
				}
				el, err := e.PlaceModel(args[1], catalog.Params(params), pos)
				placed = el
				return err
			})
			if err != nil {
				return err
			}

			return emit(cmd, elementJSON(placed), func(w io.Writer) {
				fmt.Fprintf(w, "Placed %s as %s at %s\n", placed.Model, placed.ID(), placed.Position())
			})
		},
	}

	cmd.Flags().String("at", "", "Position as x,y,z (default 0,0,0)")
	cmd.Flags().Bool("grid", false, "Read --at as grid coordinates even when grid mode is off")
	cmd.Flags().StringToString("param", nil, "Model parameter as key=value (repeatable)")

	return cmd
}

func newMoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move <experiment> <element>",
		Short: "Move an element",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := parsePosition(cmd)
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.edit(cmd.Context(), args[0], func(e *experiment.Experiment) error {
				return e.Move(args[1], pos)
			}); err != nil {
				return err
			}
			return emit(cmd, map[string]string{"element": args[1], "status": "moved"}, func(w io.Writer) {
				fmt.Fprintf(w, "Moved %s\n", args[1])
			})
		},
	}

	cmd.Flags().String("at", "", "Position as x,y,z")
	cmd.MarkFlagRequired("at")

	return cmd
}

// parsePin reads "element:pin" where pin is an index or a pin name of the
// element.
func parsePin(e *experiment.Experiment, s string) (element.PinRef, error) {
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return element.PinRef{}, fault.New(fault.KindInvalidArgument, "pin %q: want element:pin", s)
	}
	id, pin := s[:i], s[i+1:]
	if n, err := strconv.Atoi(pin); err == nil {
		return element.PinRef{Element: id, Pin: n}, nil
	}
	el, err := e.Element(id)
	if err != nil {
		return element.PinRef{}, fault.Wrap(fault.KindInvalidWire, err, "wire endpoint %s", id)
	}
	n, ok := el.PinIndex(pin)
	if !ok {
		return element.PinRef{}, fault.New(fault.KindInvalidWire, "%s %s has no pin named %q (has %s)",
			el.Model, id, pin, strings.Join(el.Pins, ", "))
	}
	return element.PinRef{Element: id, Pin: n}, nil
}

func newConnectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connect <experiment> <element:pin> <element:pin>",
		Short: "Wire two pins together",
		Long: `Wire two element pins together in a circuit experiment.

Pins are given by index or by name.

Example:
  labkit connect adder 3f2a...:o 9c1d...:i_up --color red`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			color, _ := cmd.Flags().GetString("color")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var src, dst element.PinRef
			if err := a.edit(cmd.Context(), args[0], func(e *experiment.Experiment) error {
				var err error
				if src, err = parsePin(e, args[1]); err != nil {
					return err
				}
				if dst, err = parsePin(e, args[2]); err != nil {
					return err
				}
				return e.Connect(src, dst, color)
			}); err != nil {
				return err
			}
			return emit(cmd, map[string]any{"source": src, "target": dst, "status": "connected"}, func(w io.Writer) {
				fmt.Fprintf(w, "Wired %s:%d -> %s:%d\n", src.Element, src.Pin, dst.Element, dst.Pin)
			})
		},
	}

	cmd.Flags().String("color", "", "Wire color: blue, red, green, yellow or black (default blue)")

	return cmd
}

func newDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect <experiment> <element:pin> <element:pin>",
		Short: "Remove the wire between two pins",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var src, dst element.PinRef
			if err := a.edit(cmd.Context(), args[0], func(e *experiment.Experiment) error {
				var err error
				if src, err = parsePin(e, args[1]); err != nil {
					return err
				}
				if dst, err = parsePin(e, args[2]); err != nil {
					return err
				}
				return e.Disconnect(src, dst)
			}); err != nil {
				return err
			}
			return emit(cmd, map[string]any{"source": src, "target": dst, "status": "disconnected"}, func(w io.Writer) {
				fmt.Fprintf(w, "Removed wire %s:%d -> %s:%d\n", src.Element, src.Pin, dst.Element, dst.Pin)
			})
		},
	}
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <experiment> <element>",
		Short: "Remove an element and its wires",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.edit(cmd.Context(), args[0], func(e *experiment.Experiment) error {
				return e.Remove(args[1])
			}); err != nil {
				return err
			}
			return emit(cmd, map[string]string{"element": args[1], "status": "removed"}, func(w io.Writer) {
				fmt.Fprintf(w, "Removed %s\n", args[1])
			})
		},
	}
}

type elementOut struct {
	ID       string        `json:"id"`
	Model    string        `json:"model"`
	Position geom.Position `json:"position"`
	Pins     []string      `json:"pins,omitempty"`
}

func elementJSON(el *element.Element) elementOut {
	return elementOut{ID: el.ID(), Model: el.Model, Position: el.Position(), Pins: el.Pins}
}

type showOut struct {
	Name      string       `json:"name"`
	Type      string       `json:"type"`
	GridMode  bool         `json:"grid_mode"`
	Origin    geom.Origin  `json:"origin"`
	UpdatedAt time.Time    `json:"updated_at"`
	Elements  []elementOut `json:"elements"`
	Wires     []wireOut    `json:"wires"`
}

type wireOut struct {
	Source element.PinRef `json:"source"`
	Target element.PinRef `json:"target"`
	Color  string         `json:"color"`
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <experiment>",
		Short: "Show the elements and wires of a saved experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			doc, entry, err := a.lib.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := showOut{
				Name:      doc.Name,
				Type:      doc.Type.String(),
				GridMode:  doc.GridMode,
				Origin:    doc.Origin,
				UpdatedAt: entry.UpdatedAt,
				Elements:  make([]elementOut, 0, len(doc.Elements)),
				Wires:     make([]wireOut, 0, len(doc.Wires)),
			}
			for _, el := range doc.Elements {
				out.Elements = append(out.Elements, elementOut{ID: el.ID, Model: el.Model, Position: el.Position})
			}
			for _, w := range doc.Wires {
				out.Wires = append(out.Wires, wireOut{
					Source: element.PinRef{Element: w.Source, Pin: w.SourcePin},
					Target: element.PinRef{Element: w.Target, Pin: w.TargetPin},
					Color:  w.Color,
				})
			}

			return emit(cmd, out, func(w io.Writer) {
				fmt.Fprintf(w, "%s (%s), saved %s\n", out.Name, out.Type, out.UpdatedAt.Format(time.RFC3339))
				if out.GridMode {
					fmt.Fprintf(w, "grid mode, origin %s\n", out.Origin)
				}
				fmt.Fprintf(w, "\nElements (%d):\n", len(out.Elements))
				for _, el := range out.Elements {
					fmt.Fprintf(w, "  %s  %-18s %s\n", el.ID, el.Model, el.Position)
				}
				if len(out.Wires) > 0 {
					fmt.Fprintf(w, "\nWires (%d):\n", len(out.Wires))
					for _, wr := range out.Wires {
						fmt.Fprintf(w, "  %s:%d -> %s:%d  %s\n", wr.Source.Element, wr.Source.Pin, wr.Target.Element, wr.Target.Pin, wr.Color)
					}
				}
			})
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved experiments",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.lib.List(cmd.Context())
			if err != nil {
				return err
			}
			return emit(cmd, entries, func(w io.Writer) {
				if len(entries) == 0 {
					fmt.Fprintln(w, "No saved experiments.")
					return
				}
				for _, e := range entries {
					fmt.Fprintf(w, "%-24s %-16s %3d elements %3d wires  %s\n",
						e.Name, e.Type, e.Elements, e.Wires, e.UpdatedAt.Format(time.RFC3339))
				}
			})
		},
	}
}

func newVersionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "versions <experiment>",
		Short: "List the saved versions of an experiment, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			versions, err := a.lib.Versions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return emit(cmd, versions, func(w io.Writer) {
				for _, v := range versions {
					fmt.Fprintf(w, "%s  %8d bytes  %s\n", v.CreatedAt.Format(time.RFC3339), v.Size, v.Key)
				}
			})
		},
	}
}

func newModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the element models that can be placed",
		RunE: func(cmd *cobra.Command, args []string) error {
			typeName, _ := cmd.Flags().GetString("type")
			types := exptype.All
			if typeName != "" {
				typ, err := exptype.Parse(typeName)
				if err != nil {
					return err
				}
				types = []exptype.Type{typ}
			}

			cat := catalog.Default()
			models := make(map[string][]string, len(types))
			for _, typ := range types {
				models[typ.String()] = cat.Models(typ)
			}
			return emit(cmd, models, func(w io.Writer) {
				for _, typ := range types {
					fmt.Fprintf(w, "%s:\n", typ)
					for _, m := range models[typ.String()] {
						fmt.Fprintf(w, "  %s\n", m)
					}
				}
			})
		},
	}

	cmd.Flags().StringP("type", "t", "", "Only list models of this experiment type")

	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <experiment>",
		Short: "Delete every saved version of an experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.wb.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			return emit(cmd, map[string]string{"name": args[0], "status": "deleted"}, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted %q\n", args[0])
			})
		},
	}
}
