package supervisor

// notRunningError signals a call that requires a live server.
type notRunningError struct{}

func (notRunningError) Error() string { return "server is not running" }

// ErrNotRunning constructs a notRunningError.
func ErrNotRunning() error { return notRunningError{} }

// IsNotRunning reports whether err indicates the server is down.
func IsNotRunning(err error) bool {
	_, ok := err.(notRunningError)
	return ok
}

// modelFileError signals a start attempt with a missing model file.
type modelFileError struct{ path string }

func (e modelFileError) Error() string { return "model file not found: " + e.path }

func ErrModelFile(path string) error { return modelFileError{path: path} }

// IsModelFileMissing reports whether err indicates a nonexistent model path.
func IsModelFileMissing(err error) bool {
	_, ok := err.(modelFileError)
	return ok
}

// startTimeoutError signals a background start that never became healthy.
type startTimeoutError struct{ url string }

func (e startTimeoutError) Error() string { return "server not ready in time: " + e.url }

func ErrStartTimeout(url string) error { return startTimeoutError{url: url} }

// IsStartTimeout reports whether err indicates a readiness timeout.
func IsStartTimeout(err error) bool {
	_, ok := err.(startTimeoutError)
	return ok
}
