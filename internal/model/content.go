package model

import (
	"image/color"

	"github.com/google/uuid"
)

// TextureSlot binds a document texture to a material or environment channel.
// Content is the texture's resolved ContentID; only Channel and Content take
// part in hashing.
type TextureSlot struct {
	Channel string    `json:"channel" yaml:"channel"`
	Texture ObjectID  `json:"texture" yaml:"texture"`
	Content ContentID `json:"content,omitempty" yaml:"-"`
}

func (s TextureSlot) Empty() bool { return s.Texture == uuid.Nil }

func (s TextureSlot) WriteHash(h *Hasher) {
	h.String(s.Channel)
	h.Uint32(uint32(s.Content))
}

type Material struct {
	ID   ObjectID `json:"id" yaml:"id"`
	Name string   `json:"name,omitempty" yaml:"name,omitempty"`

	Diffuse      color.RGBA    `json:"diffuse" yaml:"diffuse"`
	Specular     color.RGBA    `json:"specular" yaml:"specular"`
	Emission     color.RGBA    `json:"emission" yaml:"emission"`
	Reflection   color.RGBA    `json:"reflection" yaml:"reflection"`
	Shine        float32       `json:"shine" yaml:"shine"`
	Transparency float32       `json:"transparency" yaml:"transparency"`
	IOR          float32       `json:"ior" yaml:"ior"`
	Reflectivity float32       `json:"reflectivity" yaml:"reflectivity"`
	DoubleSided  bool          `json:"double_sided,omitempty" yaml:"double_sided,omitempty"`
	Textures     []TextureSlot `json:"textures,omitempty" yaml:"textures,omitempty"`
}

func (m Material) WriteHash(h *Hasher) {
	h.String("material")
	h.Color(m.Diffuse)
	h.Color(m.Specular)
	h.Color(m.Emission)
	h.Color(m.Reflection)
	h.Float32(m.Shine)
	h.Float32(m.Transparency)
	h.Float32(m.IOR)
	h.Float32(m.Reflectivity)
	h.Bool(m.DoubleSided)
	h.Int(len(m.Textures))
	for _, s := range m.Textures {
		s.WriteHash(h)
	}
}

// DefaultMaterial is used by instances that resolve to no document material.
// Its owner id is uuid.Nil.
func DefaultMaterial() Material {
	return Material{
		Name:     "Default",
		Diffuse:  color.RGBA{R: 255, G: 255, B: 255, A: 255},
		Specular: color.RGBA{R: 255, G: 255, B: 255, A: 255},
		IOR:      1,
	}
}

type Texture struct {
	ID   ObjectID `json:"id" yaml:"id"`
	Name string   `json:"name,omitempty" yaml:"name,omitempty"`

	File     string  `json:"file" yaml:"file"`
	RepeatU  float32 `json:"repeat_u" yaml:"repeat_u"`
	RepeatV  float32 `json:"repeat_v" yaml:"repeat_v"`
	OffsetU  float32 `json:"offset_u" yaml:"offset_u"`
	OffsetV  float32 `json:"offset_v" yaml:"offset_v"`
	Rotation float32 `json:"rotation" yaml:"rotation"`
	Filtered bool    `json:"filtered" yaml:"filtered"`
	Wrap     string  `json:"wrap,omitempty" yaml:"wrap,omitempty"`
}

func (t Texture) WriteHash(h *Hasher) {
	h.String("texture")
	h.String(t.File)
	h.Float32(t.RepeatU)
	h.Float32(t.RepeatV)
	h.Float32(t.OffsetU)
	h.Float32(t.OffsetV)
	h.Float32(t.Rotation)
	h.Bool(t.Filtered)
	h.String(t.Wrap)
}

type Environment struct {
	ID   ObjectID `json:"id" yaml:"id"`
	Name string   `json:"name,omitempty" yaml:"name,omitempty"`

	Background color.RGBA  `json:"background" yaml:"background"`
	Texture    TextureSlot `json:"texture" yaml:"texture"`
	Intensity  float32     `json:"intensity" yaml:"intensity"`
	Rotation   float32     `json:"rotation" yaml:"rotation"`
}

func (e Environment) WriteHash(h *Hasher) {
	h.String("environment")
	h.Color(e.Background)
	e.Texture.WriteHash(h)
	h.Float32(e.Intensity)
	h.Float32(e.Rotation)
}

// EnvironmentUsage is the channel an environment is assigned to.
type EnvironmentUsage string

const (
	UsageBackground  EnvironmentUsage = "background"
	UsageReflection  EnvironmentUsage = "reflection"
	UsageSkylighting EnvironmentUsage = "skylighting"
)

// EnvironmentUsages lists every usage channel in delivery order.
var EnvironmentUsages = []EnvironmentUsage{UsageBackground, UsageReflection, UsageSkylighting}

// MaterialRecord is a cached material as delivered to the consumer.
type MaterialRecord struct {
	ID       ContentID `json:"id"`
	Material Material  `json:"material"`
}

type EnvironmentRecord struct {
	ID          ContentID   `json:"id"`
	Environment Environment `json:"environment"`
}
