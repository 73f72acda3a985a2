// Package domain defines the ecosystem-model entities (Universe, Element,
// Action, Attribute, Timestep and the universe configuration objects) and
// the object-graph engine that links, clones, templates and repairs them.
package domain

import "time"

// ObjType identifies the concrete kind of an entity.
type ObjType string

// Supported entity kinds. ObjAll is only meaningful as a registry query.
const (
	// ObjUniverse identifies the root model definition.
	ObjUniverse ObjType = "universe"
	// ObjElement identifies a model element owned by a universe.
	ObjElement ObjType = "element"
	// ObjAction identifies an element action.
	ObjAction ObjType = "action"
	// ObjAttribute identifies an element attribute (dataset).
	ObjAttribute ObjType = "attribute"
	// ObjTimestep identifies an action timestep.
	ObjTimestep ObjType = "timestep"
	// ObjEClass identifies an element class.
	ObjEClass ObjType = "eclass"
	// ObjSpatial identifies the universe spatial configuration.
	ObjSpatial ObjType = "spatial"
	// ObjReport identifies the universe report configuration.
	ObjReport ObjType = "report"
	// ObjTrial identifies a universe trial configuration.
	ObjTrial ObjType = "trial"
	// ObjAll selects every kind in registry queries.
	ObjAll ObjType = "all"
)

var objTypes = []ObjType{
	ObjUniverse, ObjElement, ObjAction, ObjAttribute, ObjTimestep,
	ObjEClass, ObjSpatial, ObjReport, ObjTrial,
}

// ObjTypes returns every concrete kind in canonical order.
func ObjTypes() []ObjType {
	return append([]ObjType(nil), objTypes...)
}

// Valid reports whether t names a concrete kind.
func (t ObjType) Valid() bool {
	for _, known := range objTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Reserved identity values.
const (
	// UIDNew marks an object that has never been persisted.
	UIDNew = 0
	// UIDBroken marks a broken-link placeholder.
	UIDBroken = -1
)

// Module partitions a universe's elements.
type Module string

// Element modules in the order a universe iterates them.
const (
	ModuleBiota        Module = "biota"
	ModuleEnvironment  Module = "environment"
	ModuleActivity     Module = "activity"
	ModuleManagement   Module = "management"
	ModuleOutput       Module = "output"
	ModulePresentation Module = "presentation"
)

var modules = []Module{
	ModuleBiota, ModuleEnvironment, ModuleActivity,
	ModuleManagement, ModuleOutput, ModulePresentation,
}

// Modules returns every element module in iteration order.
func Modules() []Module {
	return append([]Module(nil), modules...)
}

// Valid reports whether m names a known module.
func (m Module) Valid() bool {
	for _, known := range modules {
		if m == known {
			return true
		}
	}
	return false
}

// ActionKind classifies element actions.
type ActionKind string

// Canonical action kinds. Only timestep actions carry a transform link.
const (
	ActionSetup    ActionKind = "setup"
	ActionTimestep ActionKind = "timestep"
	ActionSupport  ActionKind = "support"
)

// StepType places a timestep relative to the period it covers.
type StepType string

// Canonical step types.
const (
	StepBefore StepType = "before"
	StepDuring StepType = "during"
	StepAfter  StepType = "after"
)

// Base contains the identity and bookkeeping fields shared by every entity.
type Base struct {
	UID         int       `json:"uid"`
	ParentUID   int       `json:"parent_uid"`
	Revision    string    `json:"revision"`
	Shortname   string    `json:"shortname"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Author      string    `json:"author"`
	Created     time.Time `json:"created"`
	Modified    time.Time `json:"modified"`
	Locked      bool      `json:"locked"`
	Position    int       `json:"position"`
	Template    bool      `json:"template"`
	Broken      bool      `json:"broken"`

	// removed holds owned children detached since the last save.
	removed []Object
}

// Meta returns the shared identity fields.
func (b *Base) Meta() *Base { return b }

// IsTemplate reports whether the object is registered as a template.
func (b *Base) IsTemplate() bool { return b.Template }

// IsBroken reports whether the object stands in for an unresolved reference.
func (b *Base) IsBroken() bool { return b.Broken }

// IsNew reports whether the object has never been persisted.
func (b *Base) IsNew() bool { return b.UID == UIDNew }

func newBase(shortname string) Base {
	return Base{Shortname: shortname, Name: shortname, Revision: "1"}
}

// Universe is the root of a model definition.
type Universe struct {
	Base
	Elements map[Module][]*Element `json:"-"`
	Spatial  *Spatial              `json:"-"`
	Report   *Report               `json:"-"`
	Trials   []*Trial              `json:"-"`
}

// Element is a model component (a species, an environment, a fishery...).
type Element struct {
	Base
	Module     Module        `json:"module"`
	BirthDay   int           `json:"birth_day"`
	BirthMonth int           `json:"birth_month"`
	EClass     Link[*EClass] `json:"-"`
	Actions    []*Action     `json:"-"`
	Attributes []*Attribute  `json:"-"`
}

// Action is a piece of element behaviour scheduled by its timesteps.
type Action struct {
	Base
	Kind      ActionKind       `json:"kind"`
	Code      string           `json:"code"`
	Dataset   Link[*Attribute] `json:"-"`
	Transform Link[*Action]    `json:"-"`
	Related   []Link[*Element] `json:"-"`
	Timesteps []*Timestep      `json:"-"`
}

// IsTimestepKind reports whether the action runs on timesteps and may carry a transform.
func (a *Action) IsTimestepKind() bool { return a.Kind == ActionTimestep }

// Attribute is an element dataset value.
type Attribute struct {
	Base
	Value string `json:"value"`
}

// Timestep schedules an action within the model calendar.
type Timestep struct {
	Base
	StartDay   int              `json:"start_day"`
	StartMonth int              `json:"start_month"`
	EndDay     int              `json:"end_day"`
	EndMonth   int              `json:"end_month"`
	StepType   StepType         `json:"step_type"`
	Dataset    Link[*Attribute] `json:"-"`
}

// EClass classifies elements. Element classes are only ever shared templates.
type EClass struct {
	Base
	Module Module `json:"module"`
}

// Coord is one polygon vertex.
type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Polygon is a named spatial area.
type Polygon struct {
	Name   string  `json:"name"`
	Coords []Coord `json:"coords"`
}

// Spatial holds the universe's spatial configuration.
type Spatial struct {
	Base
	Polygons []Polygon `json:"polygons"`
}

// Report holds the universe's reporting configuration.
type Report struct {
	Base
	LogFile      string `json:"log_file"`
	Debug        bool   `json:"debug"`
	HeadlineOnly bool   `json:"headline_only"`
}

// Trial describes one simulation run configuration.
type Trial struct {
	Base
	YearStart    int    `json:"year_start"`
	YearEnd      int    `json:"year_end"`
	FishingStart int    `json:"fishing_start"`
	FishingEnd   int    `json:"fishing_end"`
	DataPath     string `json:"data_path"`
}

// NewUniverse constructs an empty, unsaved universe.
func NewUniverse(shortname string) *Universe {
	return &Universe{Base: newBase(shortname), Elements: make(map[Module][]*Element)}
}

// NewElement constructs an unsaved element in the given module.
func NewElement(module Module, shortname string) *Element {
	return &Element{Base: newBase(shortname), Module: module}
}

// NewAction constructs an unsaved action.
func NewAction(kind ActionKind, shortname string) *Action {
	return &Action{Base: newBase(shortname), Kind: kind}
}

// NewAttribute constructs an unsaved attribute holding value.
func NewAttribute(shortname, value string) *Attribute {
	return &Attribute{Base: newBase(shortname), Value: value}
}

// NewTimestep constructs an unsaved timestep.
func NewTimestep(shortname string, stepType StepType) *Timestep {
	return &Timestep{Base: newBase(shortname), StepType: stepType, StartDay: 1, StartMonth: 1, EndDay: 1, EndMonth: 1}
}

// NewEClass constructs an unsaved element class.
func NewEClass(module Module, shortname string) *EClass {
	return &EClass{Base: newBase(shortname), Module: module}
}

// NewSpatial constructs an unsaved spatial configuration.
func NewSpatial(shortname string) *Spatial {
	return &Spatial{Base: newBase(shortname)}
}

// NewReport constructs an unsaved report configuration.
func NewReport(shortname string) *Report {
	return &Report{Base: newBase(shortname)}
}

// NewTrial constructs an unsaved trial.
func NewTrial(shortname string, yearStart, yearEnd int) *Trial {
	return &Trial{Base: newBase(shortname), YearStart: yearStart, YearEnd: yearEnd}
}
