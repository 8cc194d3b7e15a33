package mcp

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/labkit/internal/archive"
	"github.com/nvandessel/labkit/internal/catalog"
	"github.com/nvandessel/labkit/internal/element"
	"github.com/nvandessel/labkit/internal/experiment"
	"github.com/nvandessel/labkit/internal/exptype"
	"github.com/nvandessel/labkit/internal/fault"
	"github.com/nvandessel/labkit/internal/geom"
	"github.com/nvandessel/labkit/internal/pathutil"
	"github.com/nvandessel/labkit/internal/ratelimit"
	"github.com/nvandessel/labkit/internal/sanitize"
)

// registerTools registers all labkit MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "lab_models",
		Description: "List the element models that can be placed, grouped by experiment type",
	}, s.handleLabModels)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "lab_create",
		Description: "Create and open a new, empty experiment",
	}, s.handleLabCreate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "lab_open",
		Description: "Open the latest saved version of an experiment",
	}, s.handleLabOpen)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "lab_import",
		Description: "Open an experiment from a .sav or .lkb archive file",
	}, s.handleLabImport)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "lab_save",
		Description: "Save an open experiment to the library without closing it",
	}, s.handleLabSave)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "lab_close",
		Description: "Close an open experiment, saving it unless discard is set",
	}, s.handleLabClose)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "lab_delete",
		Description: "Delete every saved version of an experiment that is not open",
	}, s.handleLabDelete)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "lab_export",
		Description: "Write an open or saved experiment to an archive file",
	}, s.handleLabExport)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "lab_place",
		Description: "Build an element from the catalog and place it in an open experiment",
	}, s.handleLabPlace)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "lab_move",
		Description: "Move an element; the position follows the experiment's grid mode",
	}, s.handleLabMove)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "lab_remove",
		Description: "Remove an element and every wire attached to it",
	}, s.handleLabRemove)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "lab_connect",
		Description: "Wire two element pins together (circuit experiments only)",
	}, s.handleLabConnect)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "lab_disconnect",
		Description: "Remove the wire between two element pins",
	}, s.handleLabDisconnect)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "lab_show",
		Description: "Show the elements and wires of an open experiment",
	}, s.handleLabShow)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "lab_list",
		Description: "List saved experiments and the ones currently open",
	}, s.handleLabList)
}

// registerResources registers MCP resources for auto-loading into context.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         "labkit://experiments/open",
		Name:        "labkit-open-experiments",
		Description: "The experiments currently open in this session and their contents.",
		MIMEType:    "text/markdown",
	}, s.handleOpenResource)

	s.server.AddResourceTemplate(&sdk.ResourceTemplate{
		URITemplate: "labkit://experiments/saved/{name}",
		Name:        "labkit-saved-experiment",
		Description: "The latest saved version of an experiment in the consumer .sav layout.",
		MIMEType:    "application/json",
	}, s.handleSavedResource)
}

// handleOpenResource summarizes every open experiment as markdown.
func (s *Server) handleOpenResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	var sb strings.Builder
	names := s.wb.OpenNames()
	if len(names) == 0 {
		sb.WriteString("No experiments are open. Use lab_create, lab_open or lab_import.\n")
	}
	for _, name := range names {
		e, ok := s.wb.Active(name)
		if !ok {
			continue
		}
		show, err := s.show(e)
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "# %s (%s)\n\n", sanitize.Inline(show.Name), show.Type)
		if show.GridMode {
			sb.WriteString("Positions are grid coordinates.\n\n")
		}
		for _, el := range show.Elements {
			fmt.Fprintf(&sb, "- `%s` %s at %v\n", sanitize.Inline(el.ID), sanitize.Inline(el.Model), el.Position)
		}
		for _, w := range show.Wires {
			fmt.Fprintf(&sb, "- wire %s:%d -> %s:%d (%s)\n", sanitize.Inline(w.Source), w.SourcePin, sanitize.Inline(w.Target), w.TargetPin, sanitize.Inline(w.Color))
		}
		sb.WriteString("\n")
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      "labkit://experiments/open",
				MIMEType: "text/markdown",
				Text:     sb.String(),
			},
		},
	}, nil
}

// handleSavedResource returns the latest saved version of one experiment.
func (s *Server) handleSavedResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	uri := req.Params.URI
	prefix := "labkit://experiments/saved/"
	if !strings.HasPrefix(uri, prefix) {
		return nil, fmt.Errorf("invalid URI format: %s", uri)
	}
	name, err := url.PathUnescape(strings.TrimPrefix(uri, prefix))
	if err != nil {
		return nil, fault.Wrap(fault.KindInvalidArgument, err, "invalid experiment name in %s", uri)
	}
	if name == "" {
		return nil, fmt.Errorf("experiment name is required")
	}

	doc, _, err := s.wb.Library().Load(ctx, name)
	if err != nil {
		return nil, err
	}
	data, err := archive.MarshalSav(doc)
	if err != nil {
		return nil, err
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}

// active returns the open handle for name. A saved but unopened experiment
// reports ExperimentClosed; an unknown one reports ExperimentNotFound.
func (s *Server) active(ctx context.Context, name string) (*experiment.Experiment, error) {
	if name == "" {
		return nil, fault.New(fault.KindInvalidArgument, "'name' parameter is required")
	}
	if e, ok := s.wb.Active(name); ok {
		return e, nil
	}
	exists, err := s.wb.Library().Exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fault.New(fault.KindExperimentClosed, "experiment %q is not open; use lab_open", name)
	}
	return nil, fault.New(fault.KindExperimentNotFound, "experiment %q does not exist", name)
}

// archivePath resolves a client-supplied archive path against the allowed
// directories. With no allowed directories any path is accepted.
func (s *Server) archivePath(p string) (string, error) {
	if p == "" {
		return "", fault.New(fault.KindInvalidArgument, "'path' parameter is required")
	}
	path := pathutil.Resolve(p, s.archiveDirs)
	if len(s.archiveDirs) == 0 {
		return path, nil
	}
	if err := pathutil.ValidatePath(path, s.archiveDirs); err != nil {
		return "", err
	}
	return path, nil
}

func summarize(e *experiment.Experiment, message string) (ExperimentSummary, error) {
	els, err := e.Elements()
	if err != nil {
		return ExperimentSummary{}, err
	}
	wires, err := e.Wires()
	if err != nil {
		return ExperimentSummary{}, err
	}
	return ExperimentSummary{
		Name:     e.Name(),
		Type:     e.Type().String(),
		GridMode: e.GridMode(),
		Elements: len(els),
		Wires:    len(wires),
		Message:  message,
	}, nil
}

// view renders the snapshot el, adding grid coordinates when e is in grid
// mode.
func view(e *experiment.Experiment, el *element.Element) ElementView {
	p := el.Position()
	v := ElementView{
		ID:       el.ID(),
		Model:    el.Model,
		Position: [3]float64{p.X, p.Y, p.Z},
		Pins:     el.Pins,
	}
	if e.GridMode() {
		if g, err := e.ToGrid(p, el.Big); err == nil {
			v.Grid = []float64{g.X, g.Y, g.Z}
		}
	}
	return v
}

func (s *Server) show(e *experiment.Experiment) (LabShowOutput, error) {
	els, err := e.Elements()
	if err != nil {
		return LabShowOutput{}, err
	}
	wires, err := e.Wires()
	if err != nil {
		return LabShowOutput{}, err
	}
	out := LabShowOutput{
		Name:     e.Name(),
		Type:     e.Type().String(),
		GridMode: e.GridMode(),
		Elements: make([]ElementView, 0, len(els)),
		Wires:    make([]WireView, 0, len(wires)),
	}
	for _, el := range els {
		out.Elements = append(out.Elements, view(e, el))
	}
	for _, w := range wires {
		out.Wires = append(out.Wires, WireView{
			Source: w.A.Element, SourcePin: w.A.Pin,
			Target: w.B.Element, TargetPin: w.B.Pin,
			Color: w.Color,
		})
	}
	return out, nil
}

// handleLabModels implements the lab_models tool.
func (s *Server) handleLabModels(ctx context.Context, req *sdk.CallToolRequest, args LabModelsInput) (_ *sdk.CallToolResult, _ LabModelsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("lab_models", start, retErr, sanitizeToolParams(map[string]any{"type": args.Type}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "lab_models"); err != nil {
		return nil, LabModelsOutput{}, err
	}

	types := exptype.All
	if args.Type != "" {
		typ, err := exptype.Parse(args.Type)
		if err != nil {
			return nil, LabModelsOutput{}, err
		}
		types = []exptype.Type{typ}
	}

	out := LabModelsOutput{Models: make(map[string][]string, len(types))}
	for _, typ := range types {
		models := s.wb.Catalog().Models(typ)
		out.Models[typ.String()] = models
		out.Count += len(models)
	}
	return nil, out, nil
}

// handleLabCreate implements the lab_create tool.
func (s *Server) handleLabCreate(ctx context.Context, req *sdk.CallToolRequest, args LabCreateInput) (_ *sdk.CallToolResult, _ ExperimentSummary, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("lab_create", start, retErr, sanitizeToolParams(map[string]any{
			"name": args.Name, "type": args.Type, "overwrite": args.Overwrite, "grid": args.Grid,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "lab_create"); err != nil {
		return nil, ExperimentSummary{}, err
	}

	typ, err := exptype.Parse(args.Type)
	if err != nil {
		return nil, ExperimentSummary{}, err
	}
	if args.Grid && !typ.SupportsGrid() {
		return nil, ExperimentSummary{}, fault.New(fault.KindWrongExperimentType, "%s experiments have no grid", typ)
	}

	mode := experiment.CreateNew
	if args.Overwrite {
		mode = experiment.CreateOverwrite
	}
	e, err := s.wb.Create(ctx, args.Name, typ, mode)
	if err != nil {
		return nil, ExperimentSummary{}, err
	}
	if args.Grid {
		if err := e.SetGridMode(true); err != nil {
			_ = s.wb.Close(ctx, e, false)
			return nil, ExperimentSummary{}, err
		}
	}

	out, err := summarize(e, fmt.Sprintf("Created %s experiment %q", typ, e.Name()))
	return nil, out, err
}

// handleLabOpen implements the lab_open tool.
func (s *Server) handleLabOpen(ctx context.Context, req *sdk.CallToolRequest, args LabOpenInput) (_ *sdk.CallToolResult, _ ExperimentSummary, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("lab_open", start, retErr, sanitizeToolParams(map[string]any{"name": args.Name}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "lab_open"); err != nil {
		return nil, ExperimentSummary{}, err
	}

	e, err := s.wb.Open(ctx, args.Name)
	if err != nil {
		return nil, ExperimentSummary{}, err
	}
	out, err := summarize(e, fmt.Sprintf("Opened %q", e.Name()))
	return nil, out, err
}

// handleLabImport implements the lab_import tool.
func (s *Server) handleLabImport(ctx context.Context, req *sdk.CallToolRequest, args LabImportInput) (_ *sdk.CallToolResult, _ ExperimentSummary, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("lab_import", start, retErr, sanitizeToolParams(map[string]any{"path": args.Path}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "lab_import"); err != nil {
		return nil, ExperimentSummary{}, err
	}

	path, err := s.archivePath(args.Path)
	if err != nil {
		return nil, ExperimentSummary{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, ExperimentSummary{}, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	e, err := s.wb.Import(ctx, f)
	if err != nil {
		return nil, ExperimentSummary{}, err
	}
	out, err := summarize(e, fmt.Sprintf("Imported %q; close it to save into the library", e.Name()))
	return nil, out, err
}

// handleLabSave implements the lab_save tool.
func (s *Server) handleLabSave(ctx context.Context, req *sdk.CallToolRequest, args LabSaveInput) (_ *sdk.CallToolResult, _ LabSaveOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("lab_save", start, retErr, sanitizeToolParams(map[string]any{"name": args.Name}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "lab_save"); err != nil {
		return nil, LabSaveOutput{}, err
	}

	e, err := s.active(ctx, args.Name)
	if err != nil {
		return nil, LabSaveOutput{}, err
	}
	entry, err := s.wb.Save(ctx, e)
	if err != nil {
		return nil, LabSaveOutput{}, err
	}
	return nil, LabSaveOutput{
		Name:    entry.Name,
		Key:     entry.Key,
		Format:  string(entry.Format),
		Size:    entry.Size,
		SavedAt: entry.UpdatedAt,
		Message: fmt.Sprintf("Saved %q (%d elements, %d wires)", entry.Name, entry.Elements, entry.Wires),
	}, nil
}

// handleLabClose implements the lab_close tool.
func (s *Server) handleLabClose(ctx context.Context, req *sdk.CallToolRequest, args LabCloseInput) (_ *sdk.CallToolResult, _ LabCloseOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("lab_close", start, retErr, sanitizeToolParams(map[string]any{"name": args.Name, "discard": args.Discard}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "lab_close"); err != nil {
		return nil, LabCloseOutput{}, err
	}

	e, err := s.active(ctx, args.Name)
	if err != nil {
		return nil, LabCloseOutput{}, err
	}
	save := !args.Discard
	if err := s.wb.Close(ctx, e, save); err != nil {
		return nil, LabCloseOutput{}, err
	}

	message := fmt.Sprintf("Closed %q", e.Name())
	if save {
		message += " after saving"
	} else {
		message += " without saving"
	}
	return nil, LabCloseOutput{Name: e.Name(), Saved: save, Message: message}, nil
}

// handleLabDelete implements the lab_delete tool.
func (s *Server) handleLabDelete(ctx context.Context, req *sdk.CallToolRequest, args LabDeleteInput) (_ *sdk.CallToolResult, _ LabDeleteOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("lab_delete", start, retErr, sanitizeToolParams(map[string]any{"name": args.Name}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "lab_delete"); err != nil {
		return nil, LabDeleteOutput{}, err
	}

	if err := s.wb.Delete(ctx, args.Name); err != nil {
		return nil, LabDeleteOutput{}, err
	}
	return nil, LabDeleteOutput{Name: args.Name, Message: fmt.Sprintf("Deleted every saved version of %q", args.Name)}, nil
}

// handleLabExport implements the lab_export tool.
func (s *Server) handleLabExport(ctx context.Context, req *sdk.CallToolRequest, args LabExportInput) (_ *sdk.CallToolResult, _ LabExportOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("lab_export", start, retErr, sanitizeToolParams(map[string]any{
			"name": args.Name, "path": args.Path, "format": args.Format,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "lab_export"); err != nil {
		return nil, LabExportOutput{}, err
	}

	path, err := s.archivePath(args.Path)
	if err != nil {
		return nil, LabExportOutput{}, err
	}
	format, err := archive.FormatFor(args.Format, path)
	if err != nil {
		return nil, LabExportOutput{}, err
	}

	var doc *archive.Document
	if e, ok := s.wb.Active(args.Name); ok {
		doc, err = e.Document()
	} else {
		doc, _, err = s.wb.Library().Load(ctx, args.Name)
	}
	if err != nil {
		return nil, LabExportOutput{}, err
	}

	var buf bytes.Buffer
	if err := archive.Encode(&buf, doc, format); err != nil {
		return nil, LabExportOutput{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, LabExportOutput{}, fmt.Errorf("failed to create export directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return nil, LabExportOutput{}, fmt.Errorf("failed to write archive: %w", err)
	}

	return nil, LabExportOutput{
		Path:    path,
		Format:  string(format),
		Size:    int64(buf.Len()),
		Message: fmt.Sprintf("Exported %q as %s (%d bytes)", doc.Name, format, buf.Len()),
	}, nil
}

// handleLabPlace implements the lab_place tool.
func (s *Server) handleLabPlace(ctx context.Context, req *sdk.CallToolRequest, args LabPlaceInput) (_ *sdk.CallToolResult, _ LabPlaceOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("lab_place", start, retErr, sanitizeToolParams(map[string]any{
			"name": args.Name, "model": args.Model, "params": args.Params, "grid": args.Grid,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "lab_place"); err != nil {
		return nil, LabPlaceOutput{}, err
	}

	e, err := s.active(ctx, args.Name)
	if err != nil {
		return nil, LabPlaceOutput{}, err
	}
	if args.Model == "" {
		return nil, LabPlaceOutput{}, fault.New(fault.KindInvalidArgument, "'model' parameter is required")
	}

	pos := geom.Pos(args.X, args.Y, args.Z)
	var el *element.Element
	if args.Grid {
		el, err = s.wb.Catalog().Build(args.Model, catalog.Params(args.Params))
		if err == nil {
			var id string
			if id, err = e.PlaceGrid(el, pos); err == nil {
				el, err = e.Element(id)
			}
		}
	} else {
		el, err = e.PlaceModel(args.Model, catalog.Params(args.Params), pos)
	}
	if err != nil {
		return nil, LabPlaceOutput{}, err
	}

	return nil, LabPlaceOutput{
		Element: view(e, el),
		Message: fmt.Sprintf("Placed %s as %s", el.Model, el.ID()),
	}, nil
}

// handleLabMove implements the lab_move tool.
func (s *Server) handleLabMove(ctx context.Context, req *sdk.CallToolRequest, args LabMoveInput) (_ *sdk.CallToolResult, _ LabElementOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("lab_move", start, retErr, sanitizeToolParams(map[string]any{"name": args.Name, "element": args.Element}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "lab_move"); err != nil {
		return nil, LabElementOutput{}, err
	}

	e, err := s.active(ctx, args.Name)
	if err != nil {
		return nil, LabElementOutput{}, err
	}
	if err := e.Move(args.Element, geom.Pos(args.X, args.Y, args.Z)); err != nil {
		return nil, LabElementOutput{}, err
	}
	return nil, LabElementOutput{Element: args.Element, Message: fmt.Sprintf("Moved %s", args.Element)}, nil
}

// handleLabRemove implements the lab_remove tool.
func (s *Server) handleLabRemove(ctx context.Context, req *sdk.CallToolRequest, args LabRemoveInput) (_ *sdk.CallToolResult, _ LabElementOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("lab_remove", start, retErr, sanitizeToolParams(map[string]any{"name": args.Name, "element": args.Element}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "lab_remove"); err != nil {
		return nil, LabElementOutput{}, err
	}

	e, err := s.active(ctx, args.Name)
	if err != nil {
		return nil, LabElementOutput{}, err
	}
	if err := e.Remove(args.Element); err != nil {
		return nil, LabElementOutput{}, err
	}
	return nil, LabElementOutput{Element: args.Element, Message: fmt.Sprintf("Removed %s and its wires", args.Element)}, nil
}

func wireParams(args LabConnectInput) map[string]any {
	return map[string]any{
		"name": args.Name, "source": args.Source, "source_pin": args.SourcePin,
		"target": args.Target, "target_pin": args.TargetPin, "color": args.Color,
	}
}

// handleLabConnect implements the lab_connect tool.
func (s *Server) handleLabConnect(ctx context.Context, req *sdk.CallToolRequest, args LabConnectInput) (_ *sdk.CallToolResult, _ LabConnectOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("lab_connect", start, retErr, sanitizeToolParams(wireParams(args)))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "lab_connect"); err != nil {
		return nil, LabConnectOutput{}, err
	}

	e, err := s.active(ctx, args.Name)
	if err != nil {
		return nil, LabConnectOutput{}, err
	}
	a := element.PinRef{Element: args.Source, Pin: args.SourcePin}
	b := element.PinRef{Element: args.Target, Pin: args.TargetPin}
	if err := e.Connect(a, b, args.Color); err != nil {
		return nil, LabConnectOutput{}, err
	}
	wires, err := e.Wires()
	if err != nil {
		return nil, LabConnectOutput{}, err
	}
	return nil, LabConnectOutput{
		Wires:   len(wires),
		Message: fmt.Sprintf("Wired %s:%d -> %s:%d", a.Element, a.Pin, b.Element, b.Pin),
	}, nil
}

// handleLabDisconnect implements the lab_disconnect tool.
func (s *Server) handleLabDisconnect(ctx context.Context, req *sdk.CallToolRequest, args LabConnectInput) (_ *sdk.CallToolResult, _ LabConnectOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("lab_disconnect", start, retErr, sanitizeToolParams(wireParams(args)))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "lab_disconnect"); err != nil {
		return nil, LabConnectOutput{}, err
	}

	e, err := s.active(ctx, args.Name)
	if err != nil {
		return nil, LabConnectOutput{}, err
	}
	a := element.PinRef{Element: args.Source, Pin: args.SourcePin}
	b := element.PinRef{Element: args.Target, Pin: args.TargetPin}
	if err := e.Disconnect(a, b); err != nil {
		return nil, LabConnectOutput{}, err
	}
	wires, err := e.Wires()
	if err != nil {
		return nil, LabConnectOutput{}, err
	}
	return nil, LabConnectOutput{
		Wires:   len(wires),
		Message: fmt.Sprintf("Removed wire %s:%d -> %s:%d", a.Element, a.Pin, b.Element, b.Pin),
	}, nil
}

// handleLabShow implements the lab_show tool.
func (s *Server) handleLabShow(ctx context.Context, req *sdk.CallToolRequest, args LabShowInput) (_ *sdk.CallToolResult, _ LabShowOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("lab_show", start, retErr, sanitizeToolParams(map[string]any{"name": args.Name}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "lab_show"); err != nil {
		return nil, LabShowOutput{}, err
	}

	e, err := s.active(ctx, args.Name)
	if err != nil {
		return nil, LabShowOutput{}, err
	}
	out, err := s.show(e)
	return nil, out, err
}

// handleLabList implements the lab_list tool.
func (s *Server) handleLabList(ctx context.Context, req *sdk.CallToolRequest, args LabListInput) (_ *sdk.CallToolResult, _ LabListOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("lab_list", start, retErr, nil)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "lab_list"); err != nil {
		return nil, LabListOutput{}, err
	}

	entries, err := s.wb.Library().List(ctx)
	if err != nil {
		return nil, LabListOutput{}, err
	}
	out := LabListOutput{
		Saved: make([]SavedItem, 0, len(entries)),
		Open:  s.wb.OpenNames(),
		Count: len(entries),
	}
	for _, en := range entries {
		out.Saved = append(out.Saved, SavedItem{
			Name:      en.Name,
			Type:      en.Type.String(),
			Format:    string(en.Format),
			Elements:  en.Elements,
			Wires:     en.Wires,
			UpdatedAt: en.UpdatedAt,
		})
	}
	return nil, out, nil
}
