package remote

// Wire records returned by the PM system's versioned REST API.
// Decoding is tolerant by construction: unknown fields are ignored and
// optional fields that a given server version omits simply stay zero.

// ProjectRecord is a remote project.
type ProjectRecord struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// TaskRecord is a remote work package, read back for verification.
type TaskRecord struct {
	ID          int64   `json:"id"`
	ProjectID   int64   `json:"project_id,omitempty"`
	Title       string  `json:"subject"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status,omitempty"`
	Assignee    string  `json:"assignee,omitempty"`
	LockVersion int64   `json:"lock_version"`
	SpentHours  float64 `json:"spent_hours,omitempty"`
}

// TimeEntryRecord is a remote time entry.
type TimeEntryRecord struct {
	ID       int64   `json:"id"`
	TaskID   int64   `json:"work_package_id,omitempty"`
	Hours    float64 `json:"hours"`
	Activity string  `json:"activity,omitempty"`
	SpentOn  string  `json:"spent_on,omitempty"`
}

// TaskFields is the client-side payload for creating or updating a
// work package. The zero value of a field means "not set".
type TaskFields struct {
	Title          string  `json:"subject"`
	Description    string  `json:"description,omitempty"`
	Status         string  `json:"status,omitempty"`
	Assignee       string  `json:"assignee,omitempty"`
	EstimatedHours float64 `json:"estimated_hours,omitempty"`
}

// TimeEntryFields is the payload for creating a time entry.
type TimeEntryFields struct {
	Hours    float64 `json:"hours"`
	Activity string  `json:"activity,omitempty"`
	SpentOn  string  `json:"spent_on,omitempty"`
	Comment  string  `json:"comment,omitempty"`
}
