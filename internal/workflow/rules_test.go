package workflow

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuestionTransitionsOnlyAdvance(t *testing.T) {
	statuses := []QuestionStatus{QuestionDraft, QuestionOpen, QuestionClosed, QuestionCompleted}
	for _, status := range statuses {
		publishErr := CheckPublish(status)
		closeErr := CheckClose(status)
		if status == QuestionDraft {
			assert.NoError(t, publishErr)
		} else {
			assert.ErrorIs(t, publishErr, ErrInvalidTransition, "publish from %s", status)
		}
		if status == QuestionOpen {
			assert.NoError(t, closeErr)
		} else {
			assert.ErrorIs(t, closeErr, ErrInvalidTransition, "close from %s", status)
		}
	}
}

func TestCheckQuestionDelete(t *testing.T) {
	cases := []struct {
		status  QuestionStatus
		answers int
		ok      bool
	}{
		{QuestionDraft, 0, true},
		{QuestionClosed, 0, true},
		{QuestionDraft, 1, false},
		{QuestionClosed, 3, false},
		{QuestionOpen, 0, false},
		{QuestionCompleted, 0, false},
	}
	for _, tc := range cases {
		err := CheckQuestionDelete(tc.status, tc.answers)
		if tc.ok {
			assert.NoError(t, err)
			continue
		}
		assert.ErrorIs(t, err, ErrConflict, "status=%s answers=%d", tc.status, tc.answers)
	}
}

func TestCheckSubmissionWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, CheckSubmissionWindow(QuestionOpen, now.Add(time.Minute), now))
	assert.ErrorIs(t, CheckSubmissionWindow(QuestionOpen, now, now), ErrExpired)
	assert.ErrorIs(t, CheckSubmissionWindow(QuestionOpen, now.Add(-time.Second), now), ErrExpired)
	assert.ErrorIs(t, CheckSubmissionWindow(QuestionClosed, now.Add(time.Hour), now), ErrInvalidTransition)
	assert.ErrorIs(t, CheckSubmissionWindow(QuestionDraft, now.Add(time.Hour), now), ErrInvalidTransition)
}

func TestCheckRevise(t *testing.T) {
	assert.NoError(t, CheckRevise(AnswerDraft, false))
	assert.NoError(t, CheckRevise(AnswerRevisionRequested, false))
	assert.ErrorIs(t, CheckRevise(AnswerSubmitted, false), ErrInvalidTransition)
	assert.ErrorIs(t, CheckRevise(AnswerRejected, false), ErrInvalidTransition)
	assert.ErrorIs(t, CheckRevise(AnswerRevisionRequested, true), ErrInvalidTransition)
}

func TestCheckAnswerDelete(t *testing.T) {
	assert.NoError(t, CheckAnswerDelete(AnswerSubmitted, false))
	assert.NoError(t, CheckAnswerDelete(AnswerRejected, false))
	assert.ErrorIs(t, CheckAnswerDelete(AnswerApproved, false), ErrInvalidTransition)
	assert.ErrorIs(t, CheckAnswerDelete(AnswerSubmitted, true), ErrInvalidTransition)
}

func TestCheckCompilation(t *testing.T) {
	assert.NoError(t, CheckCompilationSave(QuestionOpen))
	assert.NoError(t, CheckCompilationSave(QuestionClosed))
	assert.ErrorIs(t, CheckCompilationSave(QuestionDraft), ErrInvalidTransition)
	assert.ErrorIs(t, CheckCompilationSave(QuestionCompleted), ErrInvalidTransition)

	assert.NoError(t, CheckCompilationApprove(QuestionClosed, "final"))
	assert.NoError(t, CheckCompilationApprove(QuestionOpen, "final"))
	assert.ErrorIs(t, CheckCompilationApprove(QuestionOpen, ""), ErrInvalidTransition)
	assert.ErrorIs(t, CheckCompilationApprove(QuestionDraft, "final"), ErrInvalidTransition)
	assert.ErrorIs(t, CheckCompilationApprove(QuestionClosed, "   "), ErrInvalidTransition)
	assert.ErrorIs(t, CheckCompilationApprove(QuestionCompleted, "final"), ErrInvalidTransition)
}

func TestCheckCommentRange(t *testing.T) {
	content := "héllo world"

	assert.NoError(t, CheckCommentRange(0, 0, content))
	assert.NoError(t, CheckCommentRange(0, 11, content))
	assert.ErrorIs(t, CheckCommentRange(-1, 3, content), ErrValidation)
	assert.ErrorIs(t, CheckCommentRange(4, 3, content), ErrValidation)
	assert.ErrorIs(t, CheckCommentRange(0, 12, content), ErrValidation)

	// The emoji takes two UTF-16 code units.
	withEmoji := "ship it \U0001F680 now"
	assert.NoError(t, CheckCommentRange(8, 10, withEmoji))
	assert.NoError(t, CheckCommentRange(0, 14, withEmoji))
	assert.ErrorIs(t, CheckCommentRange(0, 15, withEmoji), ErrValidation)
}

func TestCheckDeadline(t *testing.T) {
	now := time.Now()
	assert.NoError(t, CheckDeadline(now.Add(time.Hour), now))
	assert.ErrorIs(t, CheckDeadline(now, now), ErrValidation)
	assert.ErrorIs(t, CheckDeadline(time.Time{}, now), ErrValidation)
}

func TestErrorKindMatching(t *testing.T) {
	err := Expired("too late")
	assert.True(t, errors.Is(err, ErrExpired))
	assert.False(t, errors.Is(err, ErrConflict))
	assert.Equal(t, KindExpired, KindOf(err))
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
	assert.Equal(t, "Expired: too late", err.Error())
}
