package types

import "math"

// IsValidMode reports whether mode is a known session mode.
func IsValidMode(mode string) bool {
	return mode == ModeTeacherStory || mode == ModeFreeTime
}

// IsValidStatus reports whether status is a known student status.
func IsValidStatus(status string) bool {
	switch status {
	case StatusIdle, StatusReading, StatusCompleted, StatusStoryReady:
		return true
	}
	return false
}

// IsValidEventType reports whether t is a loggable event type.
// "connected" is relay-only and never appended to the log.
func IsValidEventType(t string) bool {
	switch t {
	case EventTypeStudentJoin, EventTypeProgressUpdate,
		EventTypeTeacherStoryReady, EventTypeSessionEnd:
		return true
	}
	return false
}

// DeriveProgress computes the progress percentage and status for a
// paragraph position. Paragraphs are zero-based, so finishing
// paragraph N-1 of N yields 100.
func DeriveProgress(currentParagraph, totalParagraphs int) (int, string) {
	if totalParagraphs <= 0 {
		return 0, StatusIdle
	}

	percent := int(math.Round(float64(currentParagraph+1) / float64(totalParagraphs) * 100))

	switch {
	case percent >= 100:
		return percent, StatusCompleted
	case percent == 0:
		return percent, StatusIdle
	default:
		return percent, StatusReading
	}
}
