// Package rebuild implements a file-watch driven rebuild and supervise loop
// for monorepo development. It mirrors one or more watched source trees into
// a single output directory, optionally transforming matching files through a
// user-supplied hook, and keeps a set of child commands alive across source
// changes and crashes.
//
// The core of rebuild is rebuild.Watcher, which is configured with the
// following:
//
// 1. A list of watch directories. Each directory is scanned at startup and
// monitored for changes afterwards. Files are mirrored into the output
// directory with the first path segment stripped, so src/a/b.txt lands at
// out/a/b.txt.
//
// 2. Zero or more transform globs plus a transformer hook. A file whose path
// matches at least one glob is passed through the hook instead of being
// copied verbatim. Globs use doublestar semantics: * matches within a
// directory and ** matches any level of subdirectories, so src/**/*.js
// matches any JS file in any subfolder of src.
//
// 3. A list of fork commands and a list of spawn commands. Both are child
// processes kept alive by the supervisor; fork children additionally get an
// IPC channel to the parent, spawn children only inherit stdout and stderr.
//
// Production Dependencies
//
// Watched trees usually contain node_modules folders holding far more code
// than the project actually uses. Instead of mirroring vendor trees
// indiscriminately, rebuild walks every top-level package.json, follows its
// dependencies (and their dependencies, nested-first with a flat fallback,
// the way module resolution works on disk), and mirrors only the vendor
// folders that a production install would carry. Symlinked vendor folders
// are always included. A dependency named in a manifest but missing on disk
// is a startup error.
//
// Restarts
//
// Whenever a mirrored write completes, a 300ms timer starts. All other
// writes within that window are collected; when the timer expires the
// supervisor performs exactly one restart. A restart asks every running
// child to exit (fork children receive the protocol token "SIGRES" over
// IPC, spawn children are killed), waits for the set to drain, and then
// starts the full set again. Children that refuse to exit are killed when
// the --wait deadline expires.
//
// Fork Startup Order
//
// Fork commands start one at a time, in configuration order. After a fork
// child starts it has 500ms to send {"pauseForking":true} over its IPC
// channel; if it does, no further children start until it sends
// {"resumeForking":true}, exits, or a 30 second safety timeout fires. This
// lets migrations and schema builds gate their dependents deterministically.
// Spawn commands start after all forks, in configuration order, with no
// pause coordination.
//
// Shutdown
//
// On the first interrupt the supervisor stops scheduling restarts, runs the
// cleanup hook for every child with signal SIGINT, and hard-kills whatever
// is left after the --wait deadline. Once the child set drains, every
// configured --kill port is freed and the process exits 0. Further
// interrupts are ignored.
//
// Hooks
//
// The transformer and cleanup extension points are shell commands. The
// transformer hook receives the file contents on stdin and the absolute
// source and output paths in $REBUILD_SRC and $REBUILD_OUT; its stdout is
// the transformed contents. The cleanup hook receives $REBUILD_CMD,
// $REBUILD_KIND (fork or spawn) and $REBUILD_SIGNAL (SIGINT or SIGRES).
// SIGRES is not an OS signal: it is a protocol token delivered to fork
// children over IPC, asking them to exit on their own.
//
// Here is an example invocation for a NodeJS monorepo:
//
//   rebuild -w src -w shared -o build \
//     -t 'src/**/*.js' -u 'babel-strip' \
//     -f 'node build/migrate.js' -f 'node build/server.js' \
//     -s 'node build/assets.js' \
//     -k 3000 --wait 2000
package rebuild
