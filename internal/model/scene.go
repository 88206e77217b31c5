package model

import (
	"image/color"

	"github.com/go-gl/mathgl/mgl32"
)

type LightKind string

const (
	LightPoint       LightKind = "point"
	LightSpot        LightKind = "spot"
	LightDirectional LightKind = "directional"
	LightRectangular LightKind = "rectangular"
	LightLinear      LightKind = "linear"
)

type Light struct {
	ID        ObjectID   `json:"id" yaml:"-"`
	Kind      LightKind  `json:"kind" yaml:"kind"`
	Position  mgl32.Vec3 `json:"position" yaml:"position"`
	Direction mgl32.Vec3 `json:"direction" yaml:"direction"`
	Color     color.RGBA `json:"color" yaml:"color"`
	Intensity float32    `json:"intensity" yaml:"intensity"`
	SpotAngle float32    `json:"spot_angle,omitempty" yaml:"spot_angle,omitempty"`
	Enabled   bool       `json:"enabled" yaml:"enabled"`
}

func (l Light) WriteHash(h *Hasher) {
	h.String("light")
	h.String(string(l.Kind))
	h.Vec3(l.Position)
	h.Vec3(l.Direction)
	h.Color(l.Color)
	h.Float32(l.Intensity)
	h.Float32(l.SpotAngle)
	h.Bool(l.Enabled)
}

type ClippingPlane struct {
	ID      ObjectID   `json:"id" yaml:"-"`
	Origin  mgl32.Vec3 `json:"origin" yaml:"origin"`
	Normal  mgl32.Vec3 `json:"normal" yaml:"normal"`
	Enabled bool       `json:"enabled" yaml:"enabled"`
	Views   []ObjectID `json:"views,omitempty" yaml:"views,omitempty"`
}

func (c ClippingPlane) WriteHash(h *Hasher) {
	h.String("clipping_plane")
	h.Vec3(c.Origin)
	h.Vec3(c.Normal)
	h.Bool(c.Enabled)
	h.Int(len(c.Views))
	for _, v := range c.Views {
		h.ID(v)
	}
}

type Sun struct {
	Enabled   bool       `json:"enabled" yaml:"enabled"`
	Azimuth   float32    `json:"azimuth" yaml:"azimuth"`
	Altitude  float32    `json:"altitude" yaml:"altitude"`
	Intensity float32    `json:"intensity" yaml:"intensity"`
	Color     color.RGBA `json:"color" yaml:"color"`
}

func (s Sun) WriteHash(h *Hasher) {
	h.String("sun")
	h.Bool(s.Enabled)
	h.Float32(s.Azimuth)
	h.Float32(s.Altitude)
	h.Float32(s.Intensity)
	h.Color(s.Color)
}

type Skylight struct {
	Enabled        bool    `json:"enabled" yaml:"enabled"`
	Intensity      float32 `json:"intensity" yaml:"intensity"`
	ShadowQuality  int     `json:"shadow_quality" yaml:"shadow_quality"`
	UseEnvironment bool    `json:"use_environment" yaml:"use_environment"`
}

func (s Skylight) WriteHash(h *Hasher) {
	h.String("skylight")
	h.Bool(s.Enabled)
	h.Float32(s.Intensity)
	h.Int(s.ShadowQuality)
	h.Bool(s.UseEnvironment)
}

type GroundPlane struct {
	Enabled      bool     `json:"enabled" yaml:"enabled"`
	Altitude     float32  `json:"altitude" yaml:"altitude"`
	AutoAltitude bool     `json:"auto_altitude" yaml:"auto_altitude"`
	ShadowOnly   bool     `json:"shadow_only" yaml:"shadow_only"`
	Material     ObjectID `json:"material" yaml:"material"`
}

func (g GroundPlane) WriteHash(h *Hasher) {
	h.String("ground_plane")
	h.Bool(g.Enabled)
	h.Float32(g.Altitude)
	h.Bool(g.AutoAltitude)
	h.Bool(g.ShadowOnly)
	h.ID(g.Material)
}

type LinearWorkflow struct {
	Enabled          bool    `json:"enabled" yaml:"enabled"`
	PreProcessGamma  float32 `json:"pre_process_gamma" yaml:"pre_process_gamma"`
	PostProcessGamma float32 `json:"post_process_gamma" yaml:"post_process_gamma"`
}

func (l LinearWorkflow) WriteHash(h *Hasher) {
	h.String("linear_workflow")
	h.Bool(l.Enabled)
	h.Float32(l.PreProcessGamma)
	h.Float32(l.PostProcessGamma)
}

type RenderSettings struct {
	Width           int        `json:"width" yaml:"width"`
	Height          int        `json:"height" yaml:"height"`
	Samples         int        `json:"samples" yaml:"samples"`
	BackgroundStyle string     `json:"background_style" yaml:"background_style"`
	BackgroundColor color.RGBA `json:"background_color" yaml:"background_color"`
	Transparent     bool       `json:"transparent" yaml:"transparent"`
}

func (r RenderSettings) WriteHash(h *Hasher) {
	h.String("render_settings")
	h.Int(r.Width)
	h.Int(r.Height)
	h.Int(r.Samples)
	h.String(r.BackgroundStyle)
	h.Color(r.BackgroundColor)
	h.Bool(r.Transparent)
}

type DisplayAttributes struct {
	Name               string `json:"name" yaml:"name"`
	ShadingMode        string `json:"shading_mode" yaml:"shading_mode"`
	ShowLights         bool   `json:"show_lights" yaml:"show_lights"`
	ShowClippingPlanes bool   `json:"show_clipping_planes" yaml:"show_clipping_planes"`
	ShowCurves         bool   `json:"show_curves" yaml:"show_curves"`
}

func (d DisplayAttributes) WriteHash(h *Hasher) {
	h.String("display_attributes")
	h.String(d.Name)
	h.String(d.ShadingMode)
	h.Bool(d.ShowLights)
	h.Bool(d.ShowClippingPlanes)
	h.Bool(d.ShowCurves)
}

type Projection string

const (
	Perspective  Projection = "perspective"
	Orthographic Projection = "orthographic"
)

type View struct {
	ID         ObjectID   `json:"id" yaml:"id"`
	Name       string     `json:"name,omitempty" yaml:"name,omitempty"`
	Location   mgl32.Vec3 `json:"location" yaml:"location"`
	Target     mgl32.Vec3 `json:"target" yaml:"target"`
	Up         mgl32.Vec3 `json:"up" yaml:"up"`
	LensLength float32    `json:"lens_length" yaml:"lens_length"`
	Projection Projection `json:"projection" yaml:"projection"`
	Width      int        `json:"width" yaml:"width"`
	Height     int        `json:"height" yaml:"height"`
}

func (v View) WriteHash(h *Hasher) {
	h.String("view")
	h.Vec3(v.Location)
	h.Vec3(v.Target)
	h.Vec3(v.Up)
	h.Float32(v.LensLength)
	h.String(string(v.Projection))
	h.Int(v.Width)
	h.Int(v.Height)
}

// Settings is the document-wide render state.
type Settings struct {
	Sun               Sun                           `yaml:"sun"`
	Skylight          Skylight                      `yaml:"skylight"`
	GroundPlane       GroundPlane                   `yaml:"ground_plane"`
	LinearWorkflow    LinearWorkflow                `yaml:"linear_workflow"`
	RenderSettings    RenderSettings                `yaml:"render_settings"`
	DisplayAttributes DisplayAttributes             `yaml:"display_attributes"`
	Environments      map[EnvironmentUsage]ObjectID `yaml:"environments,omitempty"`
}
