package model

// Kind tags a change record.
type Kind string

const (
	KindView                   Kind = "view"
	KindDynamicObjectTransform Kind = "dynamic_object_transform"
	KindDynamicLight           Kind = "dynamic_light"
	KindMesh                   Kind = "mesh"
	KindMeshInstance           Kind = "mesh_instance"
	KindSun                    Kind = "sun"
	KindSkylight               Kind = "skylight"
	KindLight                  Kind = "light"
	KindMaterial               Kind = "material"
	KindEnvironment            Kind = "environment"
	KindGroundPlane            Kind = "ground_plane"
	KindLinearWorkflow         Kind = "linear_workflow"
	KindRenderSettings         Kind = "render_settings"
	KindClippingPlane          Kind = "clipping_plane"
	KindDynamicClippingPlane   Kind = "dynamic_clipping_plane"
	KindDisplayAttributes      Kind = "display_attributes"

	// Pending-only kinds: they never reach the consumer directly but fan out
	// into the kinds above during a flush.
	KindDefinition Kind = "definition"
	KindLayer      Kind = "layer"
	KindTexture    Kind = "texture"
)

// ChangeRecord is one delivered change.
type ChangeRecord interface {
	Kind() Kind
}

func (View) Kind() Kind              { return KindView }
func (Sun) Kind() Kind               { return KindSun }
func (Skylight) Kind() Kind          { return KindSkylight }
func (GroundPlane) Kind() Kind       { return KindGroundPlane }
func (LinearWorkflow) Kind() Kind    { return KindLinearWorkflow }
func (RenderSettings) Kind() Kind    { return KindRenderSettings }
func (DisplayAttributes) Kind() Kind { return KindDisplayAttributes }

// DynamicLight wraps a light delivered on the dynamic path.
type DynamicLight struct{ Light }

func (DynamicLight) Kind() Kind { return KindDynamicLight }

// DynamicClippingPlane wraps a clipping plane delivered on the dynamic path.
type DynamicClippingPlane struct{ ClippingPlane }

func (DynamicClippingPlane) Kind() Kind { return KindDynamicClippingPlane }

type MeshDelta struct {
	Deleted []GeometryID `json:"deleted"`
	Changed []Mesh       `json:"changed"`
}

func (MeshDelta) Kind() Kind { return KindMesh }

type MeshInstanceDelta struct {
	Deleted []InstanceID   `json:"deleted"`
	Changed []MeshInstance `json:"changed"`
}

func (MeshInstanceDelta) Kind() Kind { return KindMeshInstance }

type LightDelta struct {
	Deleted []ObjectID `json:"deleted"`
	Changed []Light    `json:"changed"`
}

func (LightDelta) Kind() Kind { return KindLight }

type MaterialDelta struct {
	Deleted []ContentID      `json:"deleted"`
	Changed []MaterialRecord `json:"changed"`
}

func (MaterialDelta) Kind() Kind { return KindMaterial }

// EnvironmentDelta reports the environment now bound to Usage. Deleted lists
// environment ids that are no longer referenced by any usage.
type EnvironmentDelta struct {
	Usage       EnvironmentUsage  `json:"usage"`
	Environment EnvironmentRecord `json:"environment"`
	Deleted     []ContentID       `json:"deleted,omitempty"`
}

func (EnvironmentDelta) Kind() Kind { return KindEnvironment }

type ClippingPlaneDelta struct {
	Deleted []ObjectID      `json:"deleted"`
	Changed []ClippingPlane `json:"changed"`
}

func (ClippingPlaneDelta) Kind() Kind { return KindClippingPlane }
