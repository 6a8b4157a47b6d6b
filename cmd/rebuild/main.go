// Command rebuild mirrors watched source trees into an output directory and
// keeps a set of child commands alive across source changes.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	rebuild "github.com/taylorgoolsby/rebuild-aio"

	yaml "gopkg.in/yaml.v2"
)

var (
	cfg        rebuild.Config
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   `rebuild`,
	Short: "mirror source trees into an output directory and supervise children",
	Long: `rebuild is a file-watch driven rebuild and supervise loop for monorepo
development. It mirrors one or more watched directories into a single output
directory, optionally passing matching files through a transformer hook, and
keeps fork and spawn children alive across source changes and crashes.

The output directory is deleted and recreated on startup. Files land with the
first path segment stripped, so src/a/b.txt mirrors to out/a/b.txt. Inside
node_modules trees only the folders a production install would carry are
mirrored, found by walking every top-level package.json and its dependency
graph.

Whenever a mirrored write completes, a restart is scheduled; writes within
300ms coalesce into a single restart. Fork children start one at a time and
may hold sibling startup with the IPC message {"pauseForking":true} until
they send {"resumeForking":true}. During a restart, fork children receive the
protocol token "SIGRES" over IPC and spawn children are killed; children that
linger past the --wait deadline are killed unconditionally.

On the first interrupt the cleanup hook runs for every child with SIGINT,
every --kill port is freed once the child set drains, and the process exits
0. Without fork or spawn commands, rebuild performs a single mirror pass and
exits.

An example invocation for a NodeJS monorepo:

  rebuild -w src -w shared -o build \
    -t 'src/**/*.js' -u 'babel-strip' \
    -f 'node build/migrate.js' -f 'node build/server.js' \
    -s 'node build/assets.js' \
    -k 3000 --wait 2000

The same options load from a YAML file with --config; flags given on the
command line win over file values.

Visit https://github.com/taylorgoolsby/rebuild-aio for more information.`,
	Run: func(cmd *cobra.Command, args []string) {
		if configFile != "" {
			if err := loadConfigFile(cmd, configFile); err != nil {
				fmt.Fprintf(os.Stderr, "%v\n", err)
				os.Exit(1)
			}
		}

		w := rebuild.NewWatcher(cfg)
		w.Stdout = os.Stdout
		w.Stderr = os.Stderr

		if cfg.Debug {
			w.Debug = os.Stderr
		}

		if err := w.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	},
}

// loadConfigFile layers the command line over the YAML file: file values
// apply wherever the corresponding flag was not given.
func loadConfigFile(cmd *cobra.Command, path string) error {
	r, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to load configuration file: %v", err)
	}
	defer r.Close()

	fileCfg := rebuild.Config{}
	if err := yaml.NewDecoder(r).Decode(&fileCfg); err != nil {
		return fmt.Errorf("decoding configuration failed: %v", err)
	}

	flags := cmd.Flags()
	if !flags.Changed("watch") {
		cfg.Watch = fileCfg.Watch
	}
	if !flags.Changed("output") {
		cfg.Output = fileCfg.Output
	}
	if !flags.Changed("transform") {
		cfg.Transform = fileCfg.Transform
	}
	if !flags.Changed("using") {
		cfg.Using = fileCfg.Using
	}
	if !flags.Changed("fork") {
		cfg.Fork = fileCfg.Fork
	}
	if !flags.Changed("spawn") {
		cfg.Spawn = fileCfg.Spawn
	}
	if !flags.Changed("cleanup") {
		cfg.Cleanup = fileCfg.Cleanup
	}
	if !flags.Changed("kill") {
		cfg.Kill = fileCfg.Kill
	}
	if !flags.Changed("wait") {
		cfg.Wait = fileCfg.Wait
	}
	if !flags.Changed("debug") {
		cfg.Debug = fileCfg.Debug
	}

	return nil
}

func init() {
	rootCmd.Flags().StringArrayVarP(&cfg.Watch, "watch", "w", nil, "directory to watch and mirror. may be given more than once")
	rootCmd.Flags().StringVarP(&cfg.Output, "output", "o", "", "output directory. deleted and recreated on startup")
	rootCmd.Flags().StringArrayVarP(&cfg.Transform, "transform", "t", nil, "glob selecting files passed through the transformer hook. may be given more than once")
	rootCmd.Flags().StringVarP(&cfg.Using, "using", "u", "", "shell command run as the transformer hook")
	rootCmd.Flags().StringArrayVarP(&cfg.Fork, "fork", "f", nil, "command to run as a fork child with an IPC channel. may be given more than once")
	rootCmd.Flags().StringArrayVarP(&cfg.Spawn, "spawn", "s", nil, "command to run as a spawn child. may be given more than once")
	rootCmd.Flags().StringVarP(&cfg.Cleanup, "cleanup", "c", "", "shell command run as the cleanup hook")
	rootCmd.Flags().IntSliceVarP(&cfg.Kill, "kill", "k", nil, "TCP port to free on final shutdown. may be given more than once")
	rootCmd.Flags().IntVar(&cfg.Wait, "wait", rebuild.DefaultWait, "force-kill deadline in ms for children that do not exit")
	rootCmd.Flags().BoolVarP(&cfg.Debug, "debug", "d", false, "adds verbose vendor-path output")
	rootCmd.Flags().StringVar(&configFile, "config", "", "path to a YAML file holding the same options")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
