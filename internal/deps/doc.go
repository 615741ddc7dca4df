// Package deps resolves the external binaries gifwright executes, ffprobe and
// ffmpeg chief among them, so commands can report missing tools up front.
package deps
