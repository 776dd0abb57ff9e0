package config

import "flag"

// Flags are the command-line overrides shared by the lmeshc commands.
type Flags struct {
	Config   string
	Debug    bool
	LogFile  string
	Scale    float64
	Winding  string
	FlipV    string
	Encoding string

	NoMeshes   bool
	NoSkeleton bool
	NoBounds   bool
	Colors     bool
}

// BindFlags registers the override flags on fs.
func BindFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVar(&f.Config, "config", "", "Path to config file (.yaml or .toml)")
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	fs.StringVar(&f.LogFile, "log-file", "", "Also write logs to this file")
	fs.Float64Var(&f.Scale, "scale", 0, "Scale applied to positions and translations")
	fs.StringVar(&f.Winding, "winding", "", "Source winding: ccw or cw")
	fs.StringVar(&f.FlipV, "flip-v", "", "Flip texture V: true or false")
	fs.StringVar(&f.Encoding, "name-encoding", "", "Encoding of names in the scene (utf-8, euc-kr, shift-jis, latin1)")
	fs.BoolVar(&f.NoMeshes, "no-meshes", false, "Do not export meshes")
	fs.BoolVar(&f.NoSkeleton, "no-skeleton", false, "Do not export the skeleton or animations")
	fs.BoolVar(&f.NoBounds, "no-bounds", false, "Do not export per-frame bounds")
	fs.BoolVar(&f.Colors, "colors", false, "Export vertex colors")
	return f
}

// apply applies CLI flag overrides to the config.
func (f *Flags) apply(cfg *Config) {
	if f.Debug {
		cfg.Logging.Level = "debug"
	}
	if f.LogFile != "" {
		cfg.Logging.LogFile = f.LogFile
	}
	if f.Scale > 0 {
		cfg.Scene.Scale = float32(f.Scale)
	}
	if f.Winding != "" {
		cfg.Scene.Winding = f.Winding
	}
	switch f.FlipV {
	case "true", "1", "yes":
		cfg.Scene.FlipV = true
	case "false", "0", "no":
		cfg.Scene.FlipV = false
	}
	if f.Encoding != "" {
		cfg.Scene.NameEncoding = f.Encoding
	}
	if f.NoMeshes {
		cfg.Export.Meshes = false
	}
	if f.NoSkeleton {
		cfg.Export.Skeleton = false
	}
	if f.NoBounds {
		cfg.Export.Bounds = false
	}
	if f.Colors {
		cfg.Export.Colors = true
	}
}
