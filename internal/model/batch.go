package model

// Batch is everything one Flush delivered, in dispatch order. Singleton
// fields are nil when they did not change.
type Batch struct {
	Seq       uint64 `json:"seq"`
	Timestamp int64  `json:"timestamp"`
	World     bool   `json:"world,omitempty"`

	View              *View              `json:"view,omitempty"`
	Meshes            MeshDelta          `json:"meshes"`
	Instances         MeshInstanceDelta  `json:"instances"`
	Sun               *Sun               `json:"sun,omitempty"`
	Skylight          *Skylight          `json:"skylight,omitempty"`
	Lights            LightDelta         `json:"lights"`
	Materials         MaterialDelta      `json:"materials"`
	Environments      []EnvironmentDelta `json:"environments,omitempty"`
	GroundPlane       *GroundPlane       `json:"ground_plane,omitempty"`
	LinearWorkflow    *LinearWorkflow    `json:"linear_workflow,omitempty"`
	RenderSettings    *RenderSettings    `json:"render_settings,omitempty"`
	ClippingPlanes    ClippingPlaneDelta `json:"clipping_planes"`
	DisplayAttributes *DisplayAttributes `json:"display_attributes,omitempty"`
}

// Records returns the batch as change records in dispatch order. Empty
// deltas are skipped.
func (b Batch) Records() []ChangeRecord {
	var out []ChangeRecord
	if b.View != nil {
		out = append(out, *b.View)
	}
	if len(b.Meshes.Deleted) > 0 || len(b.Meshes.Changed) > 0 {
		out = append(out, b.Meshes)
	}
	if len(b.Instances.Deleted) > 0 || len(b.Instances.Changed) > 0 {
		out = append(out, b.Instances)
	}
	if b.Sun != nil {
		out = append(out, *b.Sun)
	}
	if b.Skylight != nil {
		out = append(out, *b.Skylight)
	}
	if len(b.Lights.Deleted) > 0 || len(b.Lights.Changed) > 0 {
		out = append(out, b.Lights)
	}
	if len(b.Materials.Deleted) > 0 || len(b.Materials.Changed) > 0 {
		out = append(out, b.Materials)
	}
	for _, e := range b.Environments {
		out = append(out, e)
	}
	if b.GroundPlane != nil {
		out = append(out, *b.GroundPlane)
	}
	if b.LinearWorkflow != nil {
		out = append(out, *b.LinearWorkflow)
	}
	if b.RenderSettings != nil {
		out = append(out, *b.RenderSettings)
	}
	if len(b.ClippingPlanes.Deleted) > 0 || len(b.ClippingPlanes.Changed) > 0 {
		out = append(out, b.ClippingPlanes)
	}
	if b.DisplayAttributes != nil {
		out = append(out, *b.DisplayAttributes)
	}
	return out
}

func (b Batch) Empty() bool { return len(b.Records()) == 0 }
