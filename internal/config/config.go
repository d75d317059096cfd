// Package config handles tool configuration loading and management.
package config

// Config holds all merge tool settings.
type Config struct {
	Hierarchy HierarchyConfig `yaml:"hierarchy"`
	Geometry  GeometryConfig  `yaml:"geometry"`
	Output    OutputConfig    `yaml:"output"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// HierarchyConfig holds rig merge defaults. Job files can override these
// per merge.
type HierarchyConfig struct {
	CheckCompatibility bool    `yaml:"check_compatibility"`
	MergeSockets       bool    `yaml:"merge_sockets"`
	MergeDerivedBones  bool    `yaml:"merge_derived_bones"`
	MergeCurves        bool    `yaml:"merge_curves"`
	MergeBlendProfiles bool    `yaml:"merge_blend_profiles"`
	MergeSlotGroups    bool    `yaml:"merge_slot_groups"`
	PoseTolerance      float64 `yaml:"pose_tolerance"`
}

// GeometryConfig holds mesh merge defaults.
type GeometryConfig struct {
	StripTopLODs         int  `yaml:"strip_top_lods"`
	NeedCPUAccess        bool `yaml:"need_cpu_access"`
	AssignSkeletonBefore bool `yaml:"assign_skeleton_before"`
}

// OutputConfig holds output paths.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Hierarchy: HierarchyConfig{
			CheckCompatibility: true,
			MergeSockets:       true,
			MergeDerivedBones:  true,
			MergeCurves:        true,
			MergeBlendProfiles: true,
			MergeSlotGroups:    true,
			PoseTolerance:      0,
		},
		Geometry: GeometryConfig{
			StripTopLODs:         0,
			NeedCPUAccess:        false,
			AssignSkeletonBefore: true,
		},
		Output: OutputConfig{
			Dir: ".",
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
