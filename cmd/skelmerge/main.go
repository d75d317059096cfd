// Package main is the entry point for the skelmerge batch merge tool.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/rigtools/skelmerge/internal/config"
	"github.com/rigtools/skelmerge/internal/logger"
	"github.com/rigtools/skelmerge/pkg/formats"
	"github.com/rigtools/skelmerge/pkg/merge"
	"github.com/rigtools/skelmerge/pkg/mesh"
	"github.com/rigtools/skelmerge/pkg/skeleton"
	"github.com/rigtools/skelmerge/pkg/transform"
)

func main() {
	// Parse CLI flags first
	config.ParseFlags()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	jobs := flag.Args()
	if len(jobs) == 0 {
		fmt.Fprintln(os.Stderr, "usage: skelmerge [flags] job.yaml [job.yaml ...]")
		os.Exit(2)
	}

	for _, path := range jobs {
		if err := runJob(context.Background(), cfg, path); err != nil {
			logger.Error("job failed", zap.String("job", path), zap.Error(err))
			os.Exit(1)
		}
	}
}

// runJob loads one job file, merges its sources, and writes the outputs.
func runJob(ctx context.Context, cfg *config.Config, path string) error {
	job, err := formats.LoadJob(path)
	if err != nil {
		return err
	}
	logger.Info("running merge job",
		zap.String("job", job.Name),
		zap.Int("rigs", len(job.Rigs)),
		zap.Int("meshes", len(job.Meshes)))

	req, rigName, err := buildRequest(cfg, job)
	if err != nil {
		return err
	}

	res, err := merge.New(logger.Log).Run(ctx, *req)
	if res != nil {
		for _, issue := range res.Issues {
			logger.Warn("merge issue", zap.String("issue", issue.String()))
		}
	}
	if err != nil {
		return err
	}

	return writeOutputs(cfg, job, res, rigName)
}

// buildRequest loads the job's source files and assembles the pipeline
// request. Returns the name the output mesh's rig is recorded under.
func buildRequest(cfg *config.Config, job *formats.Job) (*merge.Request, string, error) {
	req := &merge.Request{
		SkeletonOptions: skeleton.Options{
			CheckCompatibility: cfg.Hierarchy.CheckCompatibility,
			MergeSockets:       cfg.Hierarchy.MergeSockets,
			MergeDerivedBones:  cfg.Hierarchy.MergeDerivedBones,
			MergeCurves:        cfg.Hierarchy.MergeCurves,
			MergeBlendProfiles: cfg.Hierarchy.MergeBlendProfiles,
			MergeSlotGroups:    cfg.Hierarchy.MergeSlotGroups,
			PoseTolerance:      cfg.Hierarchy.PoseTolerance,
		},
		MeshOptions: mesh.Options{
			StripTopLODs:  cfg.Geometry.StripTopLODs,
			NeedCPUAccess: cfg.Geometry.NeedCPUAccess,
		},
		AssignSkeletonBefore: cfg.Geometry.AssignSkeletonBefore,
	}

	rigsByName := make(map[string]*skeleton.Skeleton)
	for _, jr := range job.Rigs {
		rig, err := formats.LoadRig(jr.File)
		if err != nil {
			return nil, "", err
		}
		rigsByName[rig.Name] = rig
		req.Rigs = append(req.Rigs, skeleton.Source{
			Rig:             rig,
			AttachBone:      jr.Attach,
			ComponentOffset: jr.ComponentOffset(),
			BoundPose:       jr.BoundPoses(),
		})
	}

	var slots [][]int
	var uvs [][]transform.Transform
	explicitSlots := false
	for _, jm := range job.Meshes {
		m, rigName, err := formats.LoadMesh(jm.File)
		if err != nil {
			return nil, "", err
		}
		rig, ok := rigsByName[rigName]
		if !ok {
			return nil, "", fmt.Errorf("mesh %s: rig %q not listed in job", jm.File, rigName)
		}
		m.Rig = rig
		req.Meshes = append(req.Meshes, m)
		slots = append(slots, jm.Slots)
		uvs = append(uvs, jm.ChannelTransforms())
		explicitSlots = explicitSlots || len(jm.Slots) > 0
	}

	if explicitSlots {
		// Section mappings are all-or-nothing; fill the unmapped meshes
		// with their authored slots.
		for i, m := range req.Meshes {
			if len(slots[i]) > 0 {
				continue
			}
			for _, sec := range m.LODs[0].Sections {
				slots[i] = append(slots[i], sec.MaterialSlot)
			}
		}
		req.MeshOptions.SectionMappings = slots
	}
	req.MeshOptions.UVTransforms = uvs

	rigName := "merged"
	if job.Name != "" {
		rigName = job.Name
	}
	return req, rigName, nil
}

// writeOutputs saves whatever the job produced to its output paths.
func writeOutputs(cfg *config.Config, job *formats.Job, res *merge.Result, rigName string) error {
	outPath := func(p string) string {
		if filepath.IsAbs(p) || cfg.Output.Dir == "" {
			return p
		}
		return filepath.Join(cfg.Output.Dir, p)
	}

	if res.Rig != nil && job.Output.Rig != "" {
		res.Rig.Name = rigName
		target := outPath(job.Output.Rig)
		if err := formats.SaveRig(target, res.Rig); err != nil {
			return err
		}
		logger.Info("wrote merged rig",
			zap.String("path", target),
			zap.Int("bones", len(res.Rig.Bones)))
	}
	if res.Mesh != nil && job.Output.Mesh != "" {
		target := outPath(job.Output.Mesh)
		if err := formats.SaveMesh(target, &res.Mesh.Mesh, rigName); err != nil {
			return err
		}
		logger.Info("wrote merged mesh",
			zap.String("path", target),
			zap.Int("lods", len(res.Mesh.LODs)))
	}
	return nil
}
