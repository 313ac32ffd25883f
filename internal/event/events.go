package event

// Kind discriminates the closed set of event payloads.
type Kind int

const (
	KindDownloadPending Kind = iota
	KindDownloadStart
	KindDownloadImageSuccess
	KindDownloadImageError
	KindDownloadSpeed
	KindDownloadEnd
	KindOverallProgress
	KindRemoveWatermarkStart
	KindRemoveWatermarkSuccess
	KindRemoveWatermarkError
	KindRemoveWatermarkEnd
)

// Event is implemented by every payload struct in this package and by
// nothing else.
type Event interface {
	Kind() Kind
}

// DownloadPending is emitted once per task at admission, before any network
// activity, so observers can render a queue.
type DownloadPending struct {
	ID           int64
	ComicTitle   string
	EpisodeTitle string
}

func (DownloadPending) Kind() Kind { return KindDownloadPending }

// DownloadStart is emitted when a worker begins a task and its image count
// is known.
type DownloadStart struct {
	ID    int64
	Title string
	Total int
}

func (DownloadStart) Kind() Kind { return KindDownloadStart }

// DownloadImageSuccess reports one successfully fetched image. Current is
// the 1-based running count of completed images within the task.
type DownloadImageSuccess struct {
	ID      int64
	URL     string
	Current int
}

func (DownloadImageSuccess) Kind() Kind { return KindDownloadImageSuccess }

// DownloadImageError reports one failed image. The owning task continues
// with its remaining images.
type DownloadImageError struct {
	ID     int64
	URL    string
	ErrMsg string
}

func (DownloadImageError) Kind() Kind { return KindDownloadImageError }

// DownloadSpeed carries the human-readable aggregate transfer rate sampled
// across all active workers.
type DownloadSpeed struct {
	Speed string
}

func (DownloadSpeed) Kind() Kind { return KindDownloadSpeed }

// DownloadEnd is the terminal event of a task. ErrMsg is nil iff every
// image succeeded and packaging completed.
type DownloadEnd struct {
	ID     int64
	ErrMsg *string
}

func (DownloadEnd) Kind() Kind { return KindDownloadEnd }

// OverallProgress aggregates image completion across all active tasks.
type OverallProgress struct {
	DownloadedImageCount int
	TotalImageCount      int
	Percentage           float64
}

func (OverallProgress) Kind() Kind { return KindOverallProgress }

// RemoveWatermarkStart opens a watermark-removal job over one directory.
type RemoveWatermarkStart struct {
	DirPath string
	Total   int
}

func (RemoveWatermarkStart) Kind() Kind { return KindRemoveWatermarkStart }

// RemoveWatermarkSuccess reports one processed image. Current is the
// job-wide monotonically increasing completed count.
type RemoveWatermarkSuccess struct {
	DirPath string
	ImgPath string
	Current int
}

func (RemoveWatermarkSuccess) Kind() Kind { return KindRemoveWatermarkSuccess }

// RemoveWatermarkError reports one image that could not be processed.
type RemoveWatermarkError struct {
	DirPath string
	ImgPath string
	ErrMsg  string
}

func (RemoveWatermarkError) Kind() Kind { return KindRemoveWatermarkError }

// RemoveWatermarkEnd fires exactly once per job, after every enumerated
// image has produced a success or error event.
type RemoveWatermarkEnd struct {
	DirPath string
}

func (RemoveWatermarkEnd) Kind() Kind { return KindRemoveWatermarkEnd }
