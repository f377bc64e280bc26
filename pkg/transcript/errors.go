package transcript

// NotFoundError is returned when a thread has no entries.
type NotFoundError struct {
	ThreadID string
}

func (e NotFoundError) Error() string {
	if e.ThreadID == "" {
		return "thread not found"
	}

	return "thread not found: " + e.ThreadID
}
