package tripo

import "encoding/json"

// Task types accepted by the generation endpoint.
const (
	TaskImageToModel     = "image_to_model"
	TaskTextToModel      = "text_to_model"
	TaskMultiviewToModel = "multiview_to_model"
)

// ModelVersions lists the model versions the service currently accepts.
// An empty version in GenerationOptions selects the service default.
var ModelVersions = []string{
	"v2.5-20250123",
	"v2.0-20240919",
	"v1.4-20240625",
	"Turbo-v1.0-20250506",
}

// Texture quality levels.
const (
	TextureQualityStandard = "standard"
	TextureQualityDetailed = "detailed"
)

// Texture alignment modes.
const (
	TextureAlignOriginalImage = "original_image"
	TextureAlignGeometry      = "geometry"
)

// OutputFormats lists the artifact formats a caller may request. The client
// never converts between them; bytes are written verbatim.
var OutputFormats = []string{"glb", "fbx", "obj", "stl", "usdz"}

// ValidFormat reports whether f is a supported output format.
func ValidFormat(f string) bool {
	for _, v := range OutputFormats {
		if v == f {
			return true
		}
	}
	return false
}

// TaskStatus is the remote job state reported by each poll.
type TaskStatus string

const (
	StatusQueued    TaskStatus = "queued"
	StatusRunning   TaskStatus = "running"
	StatusSuccess   TaskStatus = "success"
	StatusFailed    TaskStatus = "failed"
	StatusCancelled TaskStatus = "cancelled"
	StatusUnknown   TaskStatus = "unknown"
)

// Terminal reports whether no further polling is meaningful.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled, StatusUnknown:
		return true
	}
	return false
}

// GenerationOptions are the caller-tunable knobs shared by all three
// pipelines. Unset optional fields (nil pointers, empty strings) are omitted
// from the wire request entirely, never sent as null or zero.
type GenerationOptions struct {
	// ModelVersion selects a model release; empty means service default.
	ModelVersion string
	// Texture enables texturing.
	Texture bool
	// PBR enables physically-based rendering materials.
	PBR bool
	// TextureQuality is "standard" or "detailed"; only non-standard values
	// are sent.
	TextureQuality string
	// TextureSeed fixes texture generation; nil means service-random.
	TextureSeed *int64
	// TextureAlignment is "original_image" or "geometry"; empty means
	// service default.
	TextureAlignment string
	// FaceLimit caps the polygon count; nil means automatic.
	FaceLimit *int
	// Seed fixes geometry generation; nil means service-random.
	Seed *int64
	// Quad requests a quad mesh (extra cost).
	Quad bool
	// AutoSize scales the model to real-world dimensions.
	AutoSize bool
}

// DefaultOptions returns the options the original tooling defaults to:
// texture and PBR on, everything else left to the service.
func DefaultOptions() GenerationOptions {
	return GenerationOptions{
		Texture:        true,
		PBR:            true,
		TextureQuality: TextureQualityStandard,
	}
}

// fileRef references an uploaded image by its opaque token.
type fileRef struct {
	Type      string `json:"type"`
	FileToken string `json:"file_token"`
}

// taskParams is the wire body for POST /task. Optional fields use pointers
// or omitempty so an unset option never appears in the serialized request;
// texture and pbr are always present.
type taskParams struct {
	Type             string    `json:"type"`
	File             *fileRef  `json:"file,omitempty"`
	Files            []fileRef `json:"files,omitempty"`
	Prompt           string    `json:"prompt,omitempty"`
	ModelVersion     string    `json:"model_version,omitempty"`
	Texture          bool      `json:"texture"`
	PBR              bool      `json:"pbr"`
	TextureQuality   string    `json:"texture_quality,omitempty"`
	TextureSeed      *int64    `json:"texture_seed,omitempty"`
	TextureAlignment string    `json:"texture_alignment,omitempty"`
	FaceLimit        *int      `json:"face_limit,omitempty"`
	Seed             *int64    `json:"seed,omitempty"`
	Quad             bool      `json:"quad,omitempty"`
	AutoSize         bool      `json:"auto_size,omitempty"`
}

// envelope is the {code, message, data} wrapper every response uses.
// code == 0 is the only success signal; HTTP 200 alone is not sufficient.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// TaskOutput maps artifact kinds to download URLs. Only populated on a
// successful task.
type TaskOutput struct {
	Model         string `json:"model,omitempty"`
	PBRModel      string `json:"pbr_model,omitempty"`
	BaseModel     string `json:"base_model,omitempty"`
	RenderedImage string `json:"rendered_image,omitempty"`
}

// TaskData is the immutable snapshot returned by each status poll.
type TaskData struct {
	TaskID   string     `json:"task_id"`
	Type     string     `json:"type,omitempty"`
	Status   TaskStatus `json:"status"`
	Progress int        `json:"progress"`
	Output   TaskOutput `json:"output,omitempty"`
	Message  string     `json:"message,omitempty"`
}

// BalanceData reports the account's remaining credits.
type BalanceData struct {
	Balance float64 `json:"balance"`
	Frozen  float64 `json:"frozen"`
}

// uploadData carries the token minted by POST /upload.
type uploadData struct {
	ImageToken string `json:"image_token"`
}

// createData carries the id minted by POST /task.
type createData struct {
	TaskID string `json:"task_id"`
}
