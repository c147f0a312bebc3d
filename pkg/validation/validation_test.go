package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealerchat/pkg/apperr"
)

func issuesOf(t *testing.T, err error) []apperr.Issue {
	t.Helper()
	require.Error(t, err)
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, apperr.Validation, ae.Code)
	return ae.Issues
}

func TestSendMessageBounds(t *testing.T) {
	assert.NoError(t, Check(SendMessage{ChatID: "c", Text: "x"}))
	assert.NoError(t, Check(SendMessage{ChatID: "c", Text: strings.Repeat("é", 2000)}), "length counts characters")

	issues := issuesOf(t, Check(SendMessage{ChatID: "c", Text: ""}))
	require.Len(t, issues, 1)
	assert.Equal(t, "text", issues[0].Path)

	issues = issuesOf(t, Check(SendMessage{ChatID: "c", Text: strings.Repeat("a", 2001)}))
	assert.Equal(t, "text must be at most 2000 characters", issues[0].Message)

	for _, blank := range []string{" ", "   \n\t ", "\u3000"} {
		issues = issuesOf(t, Check(SendMessage{ChatID: "c", Text: blank}))
		require.Len(t, issues, 1)
		assert.Equal(t, "text must not be blank", issues[0].Message)
	}
	assert.NoError(t, Check(SendMessage{ChatID: "c", Text: "  hi  "}))
}

func TestAppointmentInputs(t *testing.T) {
	ok := CreateAppointment{LeadID: "l", ManagerID: "m", TS: 1, Location: "Showroom"}
	assert.NoError(t, Check(ok))

	bad := ok
	bad.Location = "  "
	issues := issuesOf(t, Check(bad))
	assert.Equal(t, "location", issues[0].Path)

	bad = ok
	bad.TS = 0
	bad.Note = strings.Repeat("n", 501)
	issues = issuesOf(t, Check(bad))
	paths := []string{issues[0].Path, issues[1].Path}
	assert.ElementsMatch(t, []string{"dateTimeTs", "note"}, paths)
}

func TestLeadInputs(t *testing.T) {
	assert.NoError(t, Check(CreateLead{CarID: "car", Type: "TEST_DRIVE"}))
	issues := issuesOf(t, Check(CreateLead{Type: "PURCHASE"}))
	paths := []string{issues[0].Path, issues[1].Path}
	assert.ElementsMatch(t, []string{"carId", "type"}, paths)

	assert.NoError(t, Check(UpdateLeadStatus{LeadID: "l", Status: "APPROVED"}))
	issuesOf(t, Check(UpdateLeadStatus{LeadID: "l", Status: "DONE"}))
}

func TestPromotionWindow(t *testing.T) {
	assert.NoError(t, Check(CreatePromotion{Title: "Spring", DiscountPercent: 10, StartsTS: 1, EndsTS: 2}))
	issues := issuesOf(t, Check(CreatePromotion{Title: "Spring", DiscountPercent: 101, StartsTS: 2, EndsTS: 1}))
	assert.Len(t, issues, 2)
}
