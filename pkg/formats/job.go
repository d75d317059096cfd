package formats

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/rigtools/skelmerge/pkg/transform"
)

// Job document errors.
var (
	ErrJobNoSources = errors.New("job lists no rigs and no meshes")
	ErrJobNoOutput  = errors.New("job names no output files")
)

// Job describes one merge run: which rig and mesh files to combine, how to
// attach them, and where the results go. File paths are resolved relative
// to the job file by LoadJob.
type Job struct {
	Name   string    `yaml:"name"`
	Rigs   []JobRig  `yaml:"rigs,omitempty"`
	Meshes []JobMesh `yaml:"meshes,omitempty"`
	Output JobOutput `yaml:"output"`
}

// JobRig points at a rig file and how it joins the merge. Attach names a
// bone contributed by an earlier rig.
type JobRig struct {
	File      string                  `yaml:"file"`
	Attach    string                  `yaml:"attach,omitempty"`
	Offset    TransformDoc            `yaml:"offset,omitempty"`
	BoundPose map[string]TransformDoc `yaml:"bound_pose,omitempty"`
}

// ComponentOffset returns the rig's placement transform.
func (r JobRig) ComponentOffset() transform.Transform {
	return r.Offset.Transform()
}

// BoundPoses returns the bound mesh pose overrides, nil when absent.
func (r JobRig) BoundPoses() map[string]transform.Transform {
	return boundPoses(r.BoundPose)
}

// JobMesh points at a mesh file plus its per-job merge inputs.
type JobMesh struct {
	File string `yaml:"file"`

	// Slots re-keys the mesh's sections onto output material slots, one
	// entry per section. Empty keeps the authored slots.
	Slots []int `yaml:"slots,flow,omitempty"`

	// UVTransforms applies per-channel UV transforms during the merge.
	UVTransforms []TransformDoc `yaml:"uv_transforms,omitempty"`
}

// ChannelTransforms returns the UV transforms, nil when absent.
func (m JobMesh) ChannelTransforms() []transform.Transform {
	if len(m.UVTransforms) == 0 {
		return nil
	}
	out := make([]transform.Transform, len(m.UVTransforms))
	for i, d := range m.UVTransforms {
		out[i] = d.Transform()
	}
	return out
}

// JobOutput names where results are written. Either may be empty when the
// job produces only the other.
type JobOutput struct {
	Rig  string `yaml:"rig,omitempty"`
	Mesh string `yaml:"mesh,omitempty"`
}

// ParseJob decodes a job document without touching the filesystem.
func ParseJob(data []byte) (*Job, error) {
	var job Job
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("parse job: %w", err)
	}
	if len(job.Rigs) == 0 && len(job.Meshes) == 0 {
		return nil, fmt.Errorf("parse job %q: %w", job.Name, ErrJobNoSources)
	}
	if job.Output.Rig == "" && job.Output.Mesh == "" {
		return nil, fmt.Errorf("parse job %q: %w", job.Name, ErrJobNoOutput)
	}
	return &job, nil
}

// LoadJob reads a job document and resolves its source file references
// relative to the job file's directory. Output paths are left as written;
// the caller decides the output root.
func LoadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	job, err := ParseJob(data)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	for i := range job.Rigs {
		job.Rigs[i].File = resolve(job.Rigs[i].File)
	}
	for i := range job.Meshes {
		job.Meshes[i].File = resolve(job.Meshes[i].File)
	}
	return job, nil
}
