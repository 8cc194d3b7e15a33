package mcp

import "time"

// LabModelsInput defines the input for lab_models tool.
type LabModelsInput struct {
	Type string `json:"type,omitempty" jsonschema:"Experiment type: circuit, celestial or electromagnetism (default: all)"`
}

// LabModelsOutput defines the output for lab_models tool.
type LabModelsOutput struct {
	Models map[string][]string `json:"models" jsonschema:"Model IDs grouped by experiment type"`
	Count  int                 `json:"count" jsonschema:"Number of models"`
}

// LabCreateInput defines the input for lab_create tool.
type LabCreateInput struct {
	Name      string `json:"name" jsonschema:"Experiment name"`
	Type      string `json:"type" jsonschema:"Experiment type: circuit, celestial or electromagnetism"`
	Overwrite bool   `json:"overwrite,omitempty" jsonschema:"Replace a saved experiment with the same name (default: false)"`
	Grid      bool   `json:"grid,omitempty" jsonschema:"Read positions as grid coordinates (circuit only)"`
}

// LabOpenInput defines the input for lab_open tool.
type LabOpenInput struct {
	Name string `json:"name" jsonschema:"Name of a saved experiment"`
}

// LabImportInput defines the input for lab_import tool.
type LabImportInput struct {
	Path string `json:"path" jsonschema:"Path of a .sav or .lkb archive to open"`
}

// ExperimentSummary describes an open experiment.
type ExperimentSummary struct {
	Name     string `json:"name" jsonschema:"Experiment name"`
	Type     string `json:"type" jsonschema:"Experiment type"`
	GridMode bool   `json:"grid_mode" jsonschema:"Whether positions are grid coordinates"`
	Elements int    `json:"elements" jsonschema:"Number of placed elements"`
	Wires    int    `json:"wires" jsonschema:"Number of wires"`
	Message  string `json:"message" jsonschema:"Human-readable result message"`
}

// LabSaveInput defines the input for lab_save tool.
type LabSaveInput struct {
	Name string `json:"name" jsonschema:"Name of an open experiment"`
}

// LabSaveOutput defines the output for lab_save tool.
type LabSaveOutput struct {
	Name    string    `json:"name" jsonschema:"Experiment name"`
	Key     string    `json:"key" jsonschema:"Storage key of the saved version"`
	Format  string    `json:"format" jsonschema:"Archive format"`
	Size    int64     `json:"size_bytes" jsonschema:"Archive size in bytes"`
	SavedAt time.Time `json:"saved_at" jsonschema:"Time of the save"`
	Message string    `json:"message" jsonschema:"Human-readable result message"`
}

// LabCloseInput defines the input for lab_close tool.
type LabCloseInput struct {
	Name    string `json:"name" jsonschema:"Name of an open experiment"`
	Discard bool   `json:"discard,omitempty" jsonschema:"Close without saving (default: false)"`
}

// LabCloseOutput defines the output for lab_close tool.
type LabCloseOutput struct {
	Name    string `json:"name" jsonschema:"Experiment name"`
	Saved   bool   `json:"saved" jsonschema:"Whether the experiment was saved before closing"`
	Message string `json:"message" jsonschema:"Human-readable result message"`
}

// LabDeleteInput defines the input for lab_delete tool.
type LabDeleteInput struct {
	Name string `json:"name" jsonschema:"Name of a saved experiment that is not open"`
}

// LabDeleteOutput defines the output for lab_delete tool.
type LabDeleteOutput struct {
	Name    string `json:"name" jsonschema:"Experiment name"`
	Message string `json:"message" jsonschema:"Human-readable result message"`
}

// LabExportInput defines the input for lab_export tool.
type LabExportInput struct {
	Name   string `json:"name" jsonschema:"Experiment name, open or saved"`
	Path   string `json:"path" jsonschema:"Destination file path"`
	Format string `json:"format,omitempty" jsonschema:"Archive format: sav or bundle (default: from the path extension, else sav)"`
}

// LabExportOutput defines the output for lab_export tool.
type LabExportOutput struct {
	Path    string `json:"path" jsonschema:"File written"`
	Format  string `json:"format" jsonschema:"Archive format"`
	Size    int64  `json:"size_bytes" jsonschema:"Bytes written"`
	Message string `json:"message" jsonschema:"Human-readable result message"`
}

// LabPlaceInput defines the input for lab_place tool.
type LabPlaceInput struct {
	Name   string            `json:"name" jsonschema:"Name of an open experiment"`
	Model  string            `json:"model" jsonschema:"Model ID from lab_models"`
	Params map[string]string `json:"params,omitempty" jsonschema:"Model parameters such as pitch or bpm"`
	X      float64           `json:"x" jsonschema:"X coordinate"`
	Y      float64           `json:"y" jsonschema:"Y coordinate"`
	Z      float64           `json:"z" jsonschema:"Z coordinate"`
	Grid   bool              `json:"grid,omitempty" jsonschema:"Read the position as grid coordinates even when grid mode is off"`
}

// LabPlaceOutput defines the output for lab_place tool.
type LabPlaceOutput struct {
	Element ElementView `json:"element" jsonschema:"The placed element"`
	Message string      `json:"message" jsonschema:"Human-readable result message"`
}

// LabMoveInput defines the input for lab_move tool.
type LabMoveInput struct {
	Name    string  `json:"name" jsonschema:"Name of an open experiment"`
	Element string  `json:"element" jsonschema:"Element identifier"`
	X       float64 `json:"x" jsonschema:"X coordinate"`
	Y       float64 `json:"y" jsonschema:"Y coordinate"`
	Z       float64 `json:"z" jsonschema:"Z coordinate"`
}

// LabRemoveInput defines the input for lab_remove tool.
type LabRemoveInput struct {
	Name    string `json:"name" jsonschema:"Name of an open experiment"`
	Element string `json:"element" jsonschema:"Element identifier"`
}

// LabElementOutput is returned by tools that change one element.
type LabElementOutput struct {
	Element string `json:"element" jsonschema:"Element identifier"`
	Message string `json:"message" jsonschema:"Human-readable result message"`
}

// LabConnectInput defines the input for lab_connect and lab_disconnect tools.
type LabConnectInput struct {
	Name      string `json:"name" jsonschema:"Name of an open experiment"`
	Source    string `json:"source" jsonschema:"Source element identifier"`
	SourcePin int    `json:"source_pin" jsonschema:"Source pin index"`
	Target    string `json:"target" jsonschema:"Target element identifier"`
	TargetPin int    `json:"target_pin" jsonschema:"Target pin index"`
	Color     string `json:"color,omitempty" jsonschema:"Wire color: blue, red, green, yellow or black (default: blue)"`
}

// LabConnectOutput defines the output for lab_connect and lab_disconnect tools.
type LabConnectOutput struct {
	Wires   int    `json:"wires" jsonschema:"Number of wires after the change"`
	Message string `json:"message" jsonschema:"Human-readable result message"`
}

// LabShowInput defines the input for lab_show tool.
type LabShowInput struct {
	Name string `json:"name" jsonschema:"Name of an open experiment"`
}

// LabShowOutput defines the output for lab_show tool.
type LabShowOutput struct {
	Name     string        `json:"name" jsonschema:"Experiment name"`
	Type     string        `json:"type" jsonschema:"Experiment type"`
	GridMode bool          `json:"grid_mode" jsonschema:"Whether positions are grid coordinates"`
	Elements []ElementView `json:"elements" jsonschema:"Placed elements in export order"`
	Wires    []WireView    `json:"wires" jsonschema:"Wires in connection order"`
}

// ElementView is the tool-facing form of an element.
type ElementView struct {
	ID       string     `json:"id"`
	Model    string     `json:"model"`
	Position [3]float64 `json:"position"`
	Grid     []float64  `json:"grid,omitempty"`
	Pins     []string   `json:"pins,omitempty"`
}

// WireView is the tool-facing form of a wire.
type WireView struct {
	Source    string `json:"source"`
	SourcePin int    `json:"source_pin"`
	Target    string `json:"target"`
	TargetPin int    `json:"target_pin"`
	Color     string `json:"color"`
}

// LabListInput defines the input for lab_list tool.
type LabListInput struct{}

// LabListOutput defines the output for lab_list tool.
type LabListOutput struct {
	Saved []SavedItem `json:"saved" jsonschema:"Saved experiments"`
	Open  []string    `json:"open" jsonschema:"Names of open experiments"`
	Count int         `json:"count" jsonschema:"Number of saved experiments"`
}

// SavedItem provides a list view of a saved experiment.
type SavedItem struct {
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Format    string    `json:"format"`
	Elements  int       `json:"elements"`
	Wires     int       `json:"wires"`
	UpdatedAt time.Time `json:"updated_at"`
}
