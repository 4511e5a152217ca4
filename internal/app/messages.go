package app

import (
	"fmt"
	"time"
)

// ProgressMsg updates the overall progress bar.
type ProgressMsg struct {
	Tag      string // task title
	Current  int64
	Total    int64
	Activity string
}

// FileProgressMsg updates the status line of one archive.
type FileProgressMsg struct {
	FileID   string
	FileName string
	Status   string
	Batch    int
	ErrMsg   string
}

// BatchDoneMsg marks every archive of a batch as merged.
type BatchDoneMsg struct {
	Batch       int
	Images      int
	Annotations int
}

// TaskFinishedMsg signals the completion of a background task.
type TaskFinishedMsg struct {
	Tag       string
	Err       error
	StartTime time.Time
	EndTime   time.Time
	Message   string
}

func NewProgress(tag string, current, total int64, activity string) ProgressMsg {
	return ProgressMsg{Tag: tag, Current: current, Total: total, Activity: activity}
}

func NewFileProgress(fileID, fileName, status string, batch int, errMsg string) FileProgressMsg {
	return FileProgressMsg{
		FileID:   fileID,
		FileName: fileName,
		Status:   status,
		Batch:    batch,
		ErrMsg:   errMsg,
	}
}

func NewTaskFinished(tag string, start time.Time, err error, msg string) TaskFinishedMsg {
	return TaskFinishedMsg{
		Tag:       tag,
		StartTime: start,
		EndTime:   time.Now(),
		Err:       err,
		Message:   msg,
	}
}

func (p ProgressMsg) String() string {
	return fmt.Sprintf("Progress %s: %d/%d", p.Tag, p.Current, p.Total)
}
func (fp FileProgressMsg) String() string {
	return fmt.Sprintf("FileProgress %s: %s", fp.FileID, fp.Status)
}
func (tf TaskFinishedMsg) String() string { return fmt.Sprintf("TaskFinished %s", tf.Tag) }
