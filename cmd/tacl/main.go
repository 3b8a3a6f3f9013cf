// Command tacl is the command-line client for the TSD/TACL file service:
// resumable chunked uploads, ranged resumable downloads, and recursive
// directory sync, with optional end-to-end encryption.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/unioslo/tacl/internal/tacerr"
)

func main() {
	err := newRootCmd().Execute()
	if err == nil {
		return
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	os.Exit(exitCode(err))
}

// exitCode maps an error to a process exit status: 1 for usage, auth,
// and config failures; a distinct non-zero code for a surfaced HTTP
// error, so scripts can tell the two apart.
func exitCode(err error) int {
	var apiErr *tacerr.APIError
	if errors.As(err, &apiErr) {
		return 2
	}

	return 1
}
