package rebuild

// Config holds the configuration for the watched source trees, the output
// directory they are mirrored into, and the child commands to supervise.
type Config struct {
	// Watch holds the source directories to mirror. At least one is
	// required. Paths are taken relative to the working directory.
	Watch []string `yaml:"watch"`

	// Output is the directory the watched trees are mirrored into. It is
	// deleted and recreated on startup.
	Output string `yaml:"output"`

	// Transform holds glob patterns selecting files that are passed
	// through the transformer hook instead of copied verbatim.
	Transform []string `yaml:"transform"`

	// Using is the shell command run as the transformer hook. Setting it
	// without any transform glob is a validation error.
	Using string `yaml:"using"`

	// Fork holds commands started as fork children, in order. Fork
	// children get an IPC channel and may pause sibling startup.
	Fork []string `yaml:"fork"`

	// Spawn holds commands started as spawn children, in order, after all
	// fork children.
	Spawn []string `yaml:"spawn"`

	// Cleanup is the shell command run as the cleanup hook when a child is
	// asked to exit. When empty the built-in cleanup is used.
	Cleanup string `yaml:"cleanup"`

	// Kill holds TCP ports to free during final shutdown.
	Kill []int `yaml:"kill"`

	// Wait is the force-kill deadline in milliseconds for children that do
	// not exit on their own. Defaults to 3000.
	Wait int `yaml:"wait"`

	// Debug enables verbose resolver and filter logging.
	Debug bool `yaml:"debug"`
}

// DefaultWait is the force-kill deadline used when Config.Wait is zero.
const DefaultWait = 3000
