package transport

import "time"

const (
	plannerStreamName   = "PLANNER"
	goalDetailSubject   = "goal.detail"
	statusEchoSubject   = "task.status.echo"
	statusRequestSubj   = "task.status.request"
	layoutSubjectPrefix = "layout."
	streamMaxAge        = 24 * time.Hour
	streamMaxMsgs       = -1
	operationTimeout    = 30 * time.Second
)

var plannerSubjects = []string{"goal.*", "layout.*", "task.status.*"}
