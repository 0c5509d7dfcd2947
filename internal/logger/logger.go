package logger

import "github.com/marcel/stitch/internal/models"

// Logger is the event sink pipeline components report progress to.
// Console and NoOp satisfy it.
type Logger interface {
	Tracef(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	TaskStart(task *models.SubTask)
	Stage(task *models.SubTask, stage models.Stage)
	TaskRetry(task *models.SubTask, reason string)
	TaskComplete(task *models.SubTask)
	RunSummary(report *models.RunReport)
}

var (
	_ Logger = (*Console)(nil)
	_ Logger = (*NoOp)(nil)
)
