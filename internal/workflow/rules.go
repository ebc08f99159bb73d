package workflow

import (
	"strings"
	"time"
	"unicode/utf16"
)

func CheckQuestionEditable(status QuestionStatus) error {
	if status != QuestionDraft {
		return InvalidTransition("only draft questions can be edited")
	}
	return nil
}

func CheckPublish(status QuestionStatus) error {
	if status != QuestionDraft {
		return InvalidTransition("only draft questions can be published")
	}
	return nil
}

func CheckClose(status QuestionStatus) error {
	if status != QuestionOpen {
		return InvalidTransition("only open questions can be closed")
	}
	return nil
}

func CheckQuestionDelete(status QuestionStatus, answerCount int) error {
	if status != QuestionDraft && status != QuestionClosed {
		return Conflict("only draft or closed questions can be deleted")
	}
	if answerCount > 0 {
		return Conflict("question has answers and cannot be deleted")
	}
	return nil
}

// CheckSubmissionWindow gates every submission, first or revised.
func CheckSubmissionWindow(status QuestionStatus, deadline, now time.Time) error {
	if status != QuestionOpen {
		return InvalidTransition("question is not open for submissions")
	}
	if !now.Before(deadline) {
		return Expired("submission deadline has passed")
	}
	return nil
}

func CheckRevise(status AnswerStatus, locked bool) error {
	if locked {
		return InvalidTransition("answer is locked")
	}
	if !status.Revisable() {
		return InvalidTransition("answer cannot be edited unless a revision is requested")
	}
	return nil
}

// CheckDisposition gates request-revision, approve and reject.
func CheckDisposition(locked bool) error {
	if locked {
		return InvalidTransition("answer is locked")
	}
	return nil
}

func CheckAnswerDelete(status AnswerStatus, locked bool) error {
	if locked || status == AnswerApproved {
		return InvalidTransition("approved or locked answers cannot be deleted")
	}
	return nil
}

func CheckCompilationSave(status QuestionStatus) error {
	if status != QuestionOpen && status != QuestionClosed {
		return InvalidTransition("compilation can only be saved while the question is open or closed")
	}
	return nil
}

func CheckCompilationApprove(status QuestionStatus, content string) error {
	if strings.TrimSpace(content) == "" {
		return InvalidTransition("compiled answer is empty")
	}
	if status != QuestionOpen && status != QuestionClosed {
		return InvalidTransition("only open or closed questions can be completed")
	}
	return nil
}

// CheckCommentRange validates a half-open [start, end) range into content.
// Offsets are UTF-16 code units, the unit browser selections report.
func CheckCommentRange(start, end int, content string) error {
	if start < 0 || end < 0 {
		return Validation("startIndex and endIndex must be non-negative")
	}
	if start > end {
		return Validation("startIndex must not exceed endIndex")
	}
	if end > utf16Len(content) {
		return Validation("endIndex is past the end of the version content")
	}
	return nil
}

// CheckDeadline is applied on create and on draft edits.
func CheckDeadline(deadline, now time.Time) error {
	if deadline.IsZero() {
		return Validation("submissionDeadline is required")
	}
	if !deadline.After(now) {
		return Validation("submissionDeadline must be in the future")
	}
	return nil
}

func utf16Len(content string) int {
	n := 0
	for _, r := range content {
		n += utf16.RuneLen(r)
	}
	return n
}
