/*
Package mockmirror is an HTTP test double for package mirrors.

mockmirror serves a static/ tree the way a flaky mirror would, so download
clients can be tested against:
  - byte range requests, including unsatisfiable ones
  - files that return 404 until the third attempt
  - files that always return 404
  - files whose checksum no longer matches
  - HTTP Basic authentication
  - a file that grows on request, with delta download statistics

The main packages are:

	github.com/mirrorctl/mockmirror/internal/mirror    - Server, routing and failure injection
	github.com/mirrorctl/mockmirror/internal/growing   - Growing file generator and delta tools
	github.com/mirrorctl/mockmirror/internal/artifact  - Size and checksum descriptors
	github.com/mirrorctl/mockmirror/cmd/mockmirror     - Command-line interface
*/
package mockmirror
