package archivist

// Config carries the runtime options of an archive run.
type Config struct {
	// ExtractionDirectory receives unpacked archive contents and
	// scratch files.
	ExtractionDirectory string
	// OutputDirectory and OutputFile locate the exported result.
	OutputDirectory string
	OutputFile      string
	// OutputFormat selects the export rule, case-insensitively.
	OutputFormat string
	// LazyLoad keeps parsed values in an on-disk store instead of
	// memory until the merge needs them.
	LazyLoad bool
	// Overwrite permits replacing an existing output file.
	Overwrite bool
	// AutoCleanup removes extracted archive contents after the run.
	AutoCleanup bool
	// AddDescription and AddType enrich leaf fields with the
	// descriptions and types their definitions declare.
	AddDescription bool
	AddType        bool
}

// DefaultConfig returns the stock configuration: extraction and output
// in the current directory, eager loading, overwriting allowed, cleanup
// on, JSON output.
func DefaultConfig() Config {
	return Config{
		ExtractionDirectory: ".",
		OutputDirectory:     ".",
		OutputFile:          "metadata.json",
		OutputFormat:        "JSON",
		Overwrite:           true,
		AutoCleanup:         true,
	}
}

// normalize fills empty path and format fields from the defaults so a
// zero-value Config behaves like DefaultConfig.
func (c *Config) normalize() {
	def := DefaultConfig()
	if c.ExtractionDirectory == "" {
		c.ExtractionDirectory = def.ExtractionDirectory
	}
	if c.OutputDirectory == "" {
		c.OutputDirectory = def.OutputDirectory
	}
	if c.OutputFile == "" {
		c.OutputFile = def.OutputFile
	}
	if c.OutputFormat == "" {
		c.OutputFormat = def.OutputFormat
	}
}
