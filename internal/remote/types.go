package remote

// Auth is the authentication context bound into a Client. It is loaded
// once at startup and never read from disk implicitly.
type Auth struct {
	User  string
	Token string
}

// ManifestEntry is the remote's record of one tenant file. Location is
// relative to the tenant root.
type ManifestEntry struct {
	Location     string `json:"location"`
	Hash         string `json:"hash"`
	LastModified int64  `json:"last_modified"`
}

// Upload action types understood by the watch endpoint.
const (
	ActionCreate    = "create"
	ActionUpdate    = "update"
	ActionDelete    = "delete"
	ActionCreateDir = "create-dir"
	ActionDeleteDir = "delete-dir"
)

// UploadPayload is the body of a watch (write) request. Content is
// base64 encoded. Directory entries leave the file fields empty.
type UploadPayload struct {
	FileName     string `json:"file_name"`
	FilePath     string `json:"file_path"`
	Content      string `json:"content"`
	Directory    string `json:"directory"`
	ActionType   string `json:"action_type"`
	LastModified string `json:"last_modified"`
}

// DownloadRequest asks for one file. Directory carries the file's wire
// path, matching what the remote expects.
type DownloadRequest struct {
	Directory string `json:"directory"`
}

// CommandRequest passes a command line to the remote project runner.
type CommandRequest struct {
	Command string `json:"command"`
}
