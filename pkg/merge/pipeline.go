// Package merge orchestrates full merge jobs: an optional rig merge
// followed by an optional geometry merge, tracked through an explicit
// state machine.
package merge

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rigtools/skelmerge/pkg/mesh"
	"github.com/rigtools/skelmerge/pkg/skeleton"
)

// State is the pipeline's current stage.
type State int

const (
	StateIdle State = iota
	StateValidatingInputs
	StateMergingHierarchy
	StateMergingGeometry
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateValidatingInputs:
		return "ValidatingInputs"
	case StateMergingHierarchy:
		return "MergingHierarchy"
	case StateMergingGeometry:
		return "MergingGeometry"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrNoWork marks a request with neither rigs nor meshes to merge.
	ErrNoWork = errors.New("nothing to merge")
	// ErrNilSource marks a nil entry in the request's source lists.
	ErrNilSource = errors.New("nil source")
	// ErrDuplicateSource marks the same rig or mesh listed twice.
	ErrDuplicateSource = errors.New("duplicate source")
)

// Request describes one merge job.
type Request struct {
	// Rigs are the skeleton merge sources, in priority order. Leave empty
	// for geometry-only jobs.
	Rigs            []skeleton.Source
	SkeletonOptions skeleton.Options

	// PrebuiltRig supplies an already merged skeleton instead of running the
	// hierarchy stage. Ignored when Rigs is non-empty.
	PrebuiltRig *skeleton.Skeleton

	// Meshes are the geometry merge sources. Leave empty for rig-only jobs.
	Meshes      []*mesh.Mesh
	MeshOptions mesh.Options

	// AssignSkeletonBefore binds the merged (or prebuilt) rig to the
	// geometry merge so bone maps re-base onto it. When false the geometry
	// merge runs against the sources' shared rig and the merged rig is only
	// attached to the result afterwards.
	AssignSkeletonBefore bool
}

// Result carries whatever a job produced plus all non-fatal issues
// accumulated along the way.
type Result struct {
	Rig    *skeleton.Skeleton
	Mesh   *mesh.MergedMesh
	Issues []skeleton.Issue
}

// Pipeline runs merge jobs one at a time and exposes the stage it is in.
// A Pipeline is not safe for concurrent Runs.
type Pipeline struct {
	log   *zap.Logger
	state State
}

// New returns an idle pipeline. A nil logger disables logging.
func New(log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{log: log, state: StateIdle}
}

// State returns the stage the last Run reached.
func (p *Pipeline) State() State {
	return p.state
}

func (p *Pipeline) setState(s State) {
	p.state = s
	p.log.Debug("pipeline state", zap.Stringer("state", s))
}

func (p *Pipeline) fail(res *Result, stage string, err error) (*Result, error) {
	p.setState(StateFailed)
	p.log.Error("merge job failed", zap.String("stage", stage), zap.Error(err))
	return res, fmt.Errorf("%s: %w", stage, err)
}

// Run executes the job and leaves the pipeline in Done or Failed. On
// failure the returned Result still carries whatever the earlier stages
// produced, issues included, alongside the error.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	res := &Result{}

	p.setState(StateValidatingInputs)
	if err := validate(req); err != nil {
		return p.fail(res, "validate inputs", err)
	}

	if len(req.Rigs) > 0 {
		p.setState(StateMergingHierarchy)
		if err := ctx.Err(); err != nil {
			return p.fail(res, "merge hierarchy", err)
		}
		rig, issues, err := skeleton.Merge(req.Rigs, req.SkeletonOptions)
		res.Issues = append(res.Issues, issues...)
		if err != nil {
			return p.fail(res, "merge hierarchy", err)
		}
		res.Rig = rig
		for _, issue := range issues {
			p.log.Warn("hierarchy merge issue",
				zap.String("kind", issue.Kind.String()),
				zap.String("rig", issue.Rig),
				zap.String("bone", issue.Bone),
				zap.Bool("fatal", issue.Fatal))
		}
		p.log.Info("hierarchy merged",
			zap.Int("sources", len(req.Rigs)),
			zap.Int("bones", len(rig.Bones)))
	} else if req.PrebuiltRig != nil {
		res.Rig = req.PrebuiltRig
	}

	if len(req.Meshes) > 0 {
		p.setState(StateMergingGeometry)
		if err := ctx.Err(); err != nil {
			return p.fail(res, "merge geometry", err)
		}
		opts := req.MeshOptions
		if req.AssignSkeletonBefore && res.Rig != nil {
			opts.Rig = res.Rig
		}
		merged, err := mesh.MergeMeshes(ctx, req.Meshes, opts)
		if err != nil {
			return p.fail(res, "merge geometry", err)
		}
		if !req.AssignSkeletonBefore && res.Rig != nil {
			merged.Rig = res.Rig
		}
		res.Mesh = merged
		p.log.Info("geometry merged",
			zap.Int("sources", len(req.Meshes)),
			zap.Int("lods", len(merged.LODs)))
	}

	p.setState(StateDone)
	return res, nil
}

func validate(req Request) error {
	if len(req.Rigs) == 0 && req.PrebuiltRig == nil && len(req.Meshes) == 0 {
		return ErrNoWork
	}

	seenRigs := make(map[*skeleton.Skeleton]struct{}, len(req.Rigs))
	for i, src := range req.Rigs {
		if src.Rig == nil {
			return fmt.Errorf("rig source %d: %w", i, ErrNilSource)
		}
		if _, dup := seenRigs[src.Rig]; dup {
			return fmt.Errorf("rig source %d (%s): %w", i, src.Rig.Name, ErrDuplicateSource)
		}
		seenRigs[src.Rig] = struct{}{}
	}

	seenMeshes := make(map[*mesh.Mesh]struct{}, len(req.Meshes))
	for i, m := range req.Meshes {
		if m == nil {
			return fmt.Errorf("mesh source %d: %w", i, ErrNilSource)
		}
		if _, dup := seenMeshes[m]; dup {
			return fmt.Errorf("mesh source %d (%s): %w", i, m.Name, ErrDuplicateSource)
		}
		seenMeshes[m] = struct{}{}
	}
	return nil
}
