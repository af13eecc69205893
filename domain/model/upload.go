package model

import "time"

// UploadState is the lifecycle of one (asset, platform) job.
type UploadState string

const (
	StatePending      UploadState = "pending"
	StateInitiating   UploadState = "initiating"
	StateTransferring UploadState = "transferring"
	StateVerifying    UploadState = "verifying"
	StateSucceeded    UploadState = "succeeded"
	StateFailed       UploadState = "failed"
)

// IsTerminal reports whether no further transitions happen.
func (s UploadState) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// ProgressFunc receives job state changes from adapters and the upload engine.
type ProgressFunc func(state UploadState, bytesSent, totalBytes int64)

// Report is nil safe.
func (f ProgressFunc) Report(state UploadState, bytesSent, totalBytes int64) {
	if f != nil {
		f(state, bytesSent, totalBytes)
	}
}

// UploadJob is created per (asset, platform) during a fan-out and discarded
// once its result is folded into the report.
type UploadJob struct {
	ID          string      `json:"id"`
	Asset       *Asset      `json:"-"`
	Platform    Platform    `json:"platform"`
	Credential  *Credential `json:"-"`
	State       UploadState `json:"state"`
	BytesSent   int64       `json:"bytes_sent"`
	TotalBytes  int64       `json:"total_bytes"`
	ResultURL   string      `json:"result_url,omitempty"`
	ErrorDetail string      `json:"error_detail,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
}

// NewUploadJob starts a pending job for one platform of a run.
func NewUploadJob(runID string, asset *Asset, p Platform, now time.Time) *UploadJob {
	return &UploadJob{
		ID:        runID + ":" + string(p),
		Asset:     asset,
		Platform:  p,
		State:     StatePending,
		StartedAt: now,
	}
}

// Advance records a transition reported by an adapter. Terminal jobs do not
// move and the sent counter never goes backwards.
func (j *UploadJob) Advance(state UploadState, bytesSent, totalBytes int64) {
	if j.State.IsTerminal() {
		return
	}
	j.State = state
	if bytesSent > j.BytesSent {
		j.BytesSent = bytesSent
	}
	if totalBytes > 0 {
		j.TotalBytes = totalBytes
	}
}

// Complete folds the result into the job. Byte counters the adapter left
// empty are filled from the job.
func (j *UploadJob) Complete(res *UploadResult) {
	if res.Success {
		j.State = StateSucceeded
		j.ResultURL = res.ResultURL
	} else {
		j.State = StateFailed
		j.ErrorDetail = res.Detail
	}
	res.State = j.State
	if res.BytesSent > j.BytesSent {
		j.BytesSent = res.BytesSent
	}
	if res.TotalBytes > 0 {
		j.TotalBytes = res.TotalBytes
	}
	if res.BytesSent == 0 {
		res.BytesSent = j.BytesSent
	}
	if res.TotalBytes == 0 {
		res.TotalBytes = j.TotalBytes
	}
	// the credential is only borrowed for the lifetime of the job
	j.Credential = nil
}

// Progress is the caller-facing view of the job.
func (j *UploadJob) Progress(at time.Time) JobProgress {
	return JobProgress{
		Platform:    j.Platform,
		State:       j.State,
		BytesSent:   j.BytesSent,
		TotalBytes:  j.TotalBytes,
		ResultURL:   j.ResultURL,
		ErrorDetail: j.ErrorDetail,
		UpdatedAt:   at,
	}
}

// UploadSession is the resumable upload engine's per-job state.
type UploadSession struct {
	SessionURL string
	TotalBytes int64
	Offset     int64
}

// Remaining returns the number of bytes not yet acknowledged.
func (s *UploadSession) Remaining() int64 { return s.TotalBytes - s.Offset }

// UploadResult is the outcome of one platform within a publish.
type UploadResult struct {
	Platform   Platform    `json:"platform"`
	Success    bool        `json:"success"`
	State      UploadState `json:"state"`
	RemoteID   string      `json:"remote_id,omitempty"`
	ResultURL  string      `json:"result_url,omitempty"`
	ErrorKind  ErrorKind   `json:"error_kind,omitempty"`
	Message    string      `json:"message"`
	Detail     string      `json:"detail,omitempty"`
	BytesSent  int64       `json:"bytes_sent,omitempty"`
	TotalBytes int64       `json:"total_bytes,omitempty"`
	DurationMs int64       `json:"duration_ms"`
}

// SuccessResult builds a successful result.
func SuccessResult(p Platform, remoteID, resultURL string) *UploadResult {
	return &UploadResult{
		Platform:  p,
		Success:   true,
		State:     StateSucceeded,
		RemoteID:  remoteID,
		ResultURL: resultURL,
		Message:   UserMessage("", p),
	}
}

// FailedResult converts an error into a failed result.
func FailedResult(p Platform, err error) *UploadResult {
	kind := KindOf(err)
	res := &UploadResult{
		Platform:  p,
		State:     StateFailed,
		ErrorKind: kind,
		Message:   UserMessage(kind, p),
	}
	if err != nil {
		res.Detail = err.Error()
	}
	return res
}

// PublishReport aggregates one result per requested platform, in request order.
type PublishReport struct {
	RunID      string         `json:"run_id" bson:"run_id"`
	UserID     string         `json:"user_id" bson:"user_id"`
	AssetID    string         `json:"asset_id" bson:"asset_id"`
	AssetType  AssetType      `json:"asset_type" bson:"asset_type"`
	Results    []UploadResult `json:"results" bson:"results"`
	Succeeded  int            `json:"succeeded" bson:"succeeded"`
	Failed     int            `json:"failed" bson:"failed"`
	StartedAt  time.Time      `json:"started_at" bson:"started_at"`
	FinishedAt time.Time      `json:"finished_at" bson:"finished_at"`
}

// Tally recomputes the success/failure counters.
func (r *PublishReport) Tally() {
	r.Succeeded, r.Failed = 0, 0
	for _, res := range r.Results {
		if res.Success {
			r.Succeeded++
		} else {
			r.Failed++
		}
	}
}

// JobProgress is a snapshot of one job.
type JobProgress struct {
	Platform    Platform    `json:"platform"`
	State       UploadState `json:"state"`
	BytesSent   int64       `json:"bytes_sent"`
	TotalBytes  int64       `json:"total_bytes"`
	ResultURL   string      `json:"result_url,omitempty"`
	ErrorDetail string      `json:"error_detail,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// PublishProgress is the running state of a fan-out.
type PublishProgress struct {
	RunID    string        `json:"run_id"`
	UserID   string        `json:"user_id"`
	Jobs     []JobProgress `json:"jobs"`
	InFlight []Platform    `json:"in_flight"`
	Done     bool          `json:"done"`
}
