package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nvandessel/labkit/internal/exptype"
	"github.com/nvandessel/labkit/internal/fault"
	"github.com/nvandessel/labkit/internal/geom"
)

// savVersion is the consumer's save format version written by Encode.
const savVersion = 2404

// colorSuffix is appended to wire colors in sav files ("蓝" -> "蓝色导线").
const colorSuffix = "色导线"

type savFile struct {
	Type         int             `json:"Type"`
	Experiment   savExperiment   `json:"Experiment"`
	ID           *string         `json:"ID"`
	Summary      savSummary      `json:"Summary"`
	CreationDate int64           `json:"CreationDate"`
	InternalName string          `json:"InternalName"`
	Speed        float64         `json:"Speed"`
	SpeedMinimum float64         `json:"SpeedMinimum"`
	Paused       bool            `json:"Paused"`
	Version      int             `json:"Version"`
	Plots        []any           `json:"Plots"`
	Widgets      []any           `json:"Widgets"`
	Labkit       *savLabkitBlock `json:"Labkit,omitempty"`
}

type savExperiment struct {
	ID           *string `json:"ID"`
	Type         int     `json:"Type"`
	Components   int     `json:"Components"`
	Subject      *string `json:"Subject"`
	StatusSave   string  `json:"StatusSave"`
	CameraSave   string  `json:"CameraSave"`
	Version      int     `json:"Version"`
	CreationDate int64   `json:"CreationDate"`
	Paused       bool    `json:"Paused"`
}

type savSummary struct {
	Type         int      `json:"Type"`
	Subject      string   `json:"Subject"`
	Tags         []string `json:"Tags"`
	Description  []string `json:"Description"`
	CreationDate int64    `json:"CreationDate"`
}

// savLabkitBlock carries state the consumer does not model. The consumer
// ignores unknown top-level keys.
type savLabkitBlock struct {
	Origin    string `json:"Origin"`
	GridMode  bool   `json:"GridMode"`
	UpdatedAt int64  `json:"UpdatedAt"`
}

type savStatus struct {
	SimulationSpeed float64      `json:"SimulationSpeed"`
	Elements        []savElement `json:"Elements"`
	Wires           []savWire    `json:"Wires"`
}

type savElement struct {
	ModelID    string             `json:"ModelID"`
	Identifier string             `json:"Identifier"`
	IsBroken   bool               `json:"IsBroken"`
	IsLocked   bool               `json:"IsLocked"`
	Properties map[string]float64 `json:"Properties"`
	Statistics map[string]float64 `json:"Statistics"`
	Position   string             `json:"Position"`
	Rotation   string             `json:"Rotation"`
}

type savWire struct {
	Source    string `json:"Source"`
	SourcePin int    `json:"SourcePin"`
	Target    string `json:"Target"`
	TargetPin int    `json:"TargetPin"`
	ColorName string `json:"ColorName"`
}

type savCamera struct {
	Mode           int     `json:"Mode"`
	Distance       float64 `json:"Distance"`
	VisionCenter   string  `json:"VisionCenter"`
	TargetRotation string  `json:"TargetRotation"`
}

// MarshalSav renders d as consumer JSON.
func MarshalSav(d *Document) ([]byte, error) {
	status := savStatus{
		SimulationSpeed: 1,
		Elements:        make([]savElement, 0, len(d.Elements)),
		Wires:           make([]savWire, 0, len(d.Wires)),
	}
	for _, e := range d.Elements {
		status.Elements = append(status.Elements, savElement{
			ModelID:    e.Model,
			Identifier: e.ID,
			IsBroken:   e.Broken,
			IsLocked:   e.Locked,
			Properties: nonNil(e.Properties),
			Statistics: nonNil(e.Statistics),
			Position:   e.Position.String(),
			Rotation:   e.Rotation.String(),
		})
	}
	for _, w := range d.Wires {
		status.Wires = append(status.Wires, savWire{
			Source:    w.Source,
			SourcePin: w.SourcePin,
			Target:    w.Target,
			TargetPin: w.TargetPin,
			ColorName: w.Color + colorSuffix,
		})
	}

	statusJSON, err := json.Marshal(status)
	if err != nil {
		return nil, fmt.Errorf("marshaling status: %w", err)
	}
	cameraJSON, err := json.Marshal(savCamera{
		Mode:           d.Camera.Mode,
		Distance:       d.Camera.Distance,
		VisionCenter:   d.Camera.VisionCenter.String(),
		TargetRotation: d.Camera.TargetRotation.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling camera: %w", err)
	}

	created := toMillis(d.CreatedAt)
	f := savFile{
		Type: d.Type.Code(),
		Experiment: savExperiment{
			Type:         d.Type.Code(),
			Components:   len(d.Elements),
			StatusSave:   string(statusJSON),
			CameraSave:   string(cameraJSON),
			Version:      savVersion,
			CreationDate: created,
		},
		Summary: savSummary{
			Type:         d.Type.Code(),
			Subject:      d.Name,
			Tags:         []string{fmt.Sprintf("Type-%d", d.Type.Code())},
			Description:  []string{},
			CreationDate: created,
		},
		CreationDate: created,
		InternalName: d.Name,
		Speed:        1,
		SpeedMinimum: 0.0002,
		Plots:        []any{},
		Widgets:      []any{},
		Labkit: &savLabkitBlock{
			Origin:    d.Origin.String(),
			GridMode:  d.GridMode,
			UpdatedAt: toMillis(d.UpdatedAt),
		},
	}
	return json.MarshalIndent(f, "", "  ")
}

// UnmarshalSav parses consumer JSON. Every failure is an InvalidArchive error.
func UnmarshalSav(data []byte) (*Document, error) {
	var f savFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fault.Wrap(fault.KindInvalidArchive, err, "parsing sav")
	}
	typ, err := exptype.FromCode(f.Experiment.Type)
	if err != nil {
		return nil, fault.Wrap(fault.KindInvalidArchive, err, "sav experiment type")
	}
	if f.Type != f.Experiment.Type {
		return nil, fault.New(fault.KindInvalidArchive, "sav type %d disagrees with experiment type %d", f.Type, f.Experiment.Type)
	}

	var status savStatus
	if err := json.Unmarshal([]byte(f.Experiment.StatusSave), &status); err != nil {
		return nil, fault.Wrap(fault.KindInvalidArchive, err, "parsing StatusSave")
	}

	d := &Document{
		Name:      f.Summary.Subject,
		Type:      typ,
		CreatedAt: fromMillis(f.Experiment.CreationDate),
		Camera:    DefaultCamera(typ),
		Elements:  make([]Element, 0, len(status.Elements)),
		Wires:     make([]Wire, 0, len(status.Wires)),
	}
	if d.Name == "" {
		d.Name = f.InternalName
	}
	d.UpdatedAt = d.CreatedAt

	if f.Experiment.CameraSave != "" {
		var cam savCamera
		if err := json.Unmarshal([]byte(f.Experiment.CameraSave), &cam); err != nil {
			return nil, fault.Wrap(fault.KindInvalidArchive, err, "parsing CameraSave")
		}
		d.Camera.Mode, d.Camera.Distance = cam.Mode, cam.Distance
		if d.Camera.VisionCenter, err = parseField("VisionCenter", cam.VisionCenter); err != nil {
			return nil, err
		}
		if d.Camera.TargetRotation, err = parseField("TargetRotation", cam.TargetRotation); err != nil {
			return nil, err
		}
	}

	if f.Labkit != nil {
		if d.Origin, err = parseField("Labkit.Origin", f.Labkit.Origin); err != nil {
			return nil, err
		}
		d.GridMode = f.Labkit.GridMode
		if f.Labkit.UpdatedAt != 0 {
			d.UpdatedAt = fromMillis(f.Labkit.UpdatedAt)
		}
	}

	for _, se := range status.Elements {
		pos, err := parseField("Position of "+se.Identifier, se.Position)
		if err != nil {
			return nil, err
		}
		rot, err := parseField("Rotation of "+se.Identifier, se.Rotation)
		if err != nil {
			return nil, err
		}
		d.Elements = append(d.Elements, Element{
			ID:         se.Identifier,
			Model:      se.ModelID,
			Position:   pos,
			Rotation:   rot,
			Locked:     se.IsLocked,
			Broken:     se.IsBroken,
			Properties: se.Properties,
			Statistics: se.Statistics,
		})
	}
	for _, sw := range status.Wires {
		d.Wires = append(d.Wires, Wire{
			Source:    sw.Source,
			SourcePin: sw.SourcePin,
			Target:    sw.Target,
			TargetPin: sw.TargetPin,
			Color:     strings.TrimSuffix(sw.ColorName, colorSuffix),
		})
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// EncodeSav writes d to w as consumer JSON.
func EncodeSav(w io.Writer, d *Document) error {
	data, err := MarshalSav(d)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing sav: %w", err)
	}
	return nil
}

// parseField parses an "x,y,z" field; an empty field is the zero position.
func parseField(name, s string) (geom.Position, error) {
	if s == "" {
		return geom.Position{}, nil
	}
	p, err := geom.ParsePosition(s)
	if err != nil {
		return geom.Position{}, fault.Wrap(fault.KindInvalidArchive, err, "field %s", name)
	}
	return p, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func nonNil(m map[string]float64) map[string]float64 {
	if m == nil {
		return map[string]float64{}
	}
	return m
}
