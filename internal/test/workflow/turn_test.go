package workflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pack-design-backend/internal/models"
	"pack-design-backend/internal/workflow"
)

type stubMatcher struct {
	matches []models.BaselineMatch
	calls   int
}

func (m *stubMatcher) FindMatches(spec *models.DesignSpec, minScore, limit int) ([]models.BaselineMatch, error) {
	m.calls++
	return m.matches, nil
}

func TestFullIntentAdvancesToBaselineDecision(t *testing.T) {
	state := models.NewSessionState("s1")
	matcher := &stubMatcher{matches: []models.BaselineMatch{{AssetRelPath: "jar_glass.png", Score: 7}}}

	msg, flags, err := workflow.HandleTurn(state, "I want a 50 ml PP jar with screw cap, minimal style", matcher)
	require.NoError(t, err)

	assert.Equal(t, 3, state.Step)
	assert.Equal(t, workflow.BaselineSearchMessage, msg.Text)
	assert.Equal(t, workflow.KindDecision, msg.Kind)
	assert.False(t, msg.Kind.Polishable())
	assert.True(t, state.BaselineDecisionDone())
	assert.True(t, flags.CanGenerateImage)
	assert.Empty(t, flags.RequiredQuestions)
}

func TestNoMatchesEmitsNewConceptMessage(t *testing.T) {
	state := models.NewSessionState("s1")
	matcher := &stubMatcher{}

	msg, _, err := workflow.HandleTurn(state, "I want a 50 ml PP jar with screw cap, minimal style", matcher)
	require.NoError(t, err)
	assert.Equal(t, workflow.BaselineNewConceptMessage, msg.Text)
}

func TestMissingFieldsStayAtStepOne(t *testing.T) {
	state := models.NewSessionState("s1")
	matcher := &stubMatcher{}

	msg, flags, err := workflow.HandleTurn(state, "I want a jar", matcher)
	require.NoError(t, err)

	assert.Equal(t, 1, state.Step)
	assert.Equal(t, workflow.KindPrompt, msg.Kind)
	assert.Contains(t, msg.Text, "To continue, I need:")
	assert.Contains(t, msg.Text, "approx size or volume")
	assert.False(t, flags.CanGenerateImage)
	assert.Equal(t, 0, matcher.calls)
}

func TestBaselineDecisionIsOneShot(t *testing.T) {
	state := models.NewSessionState("s1")
	matcher := &stubMatcher{}

	_, _, err := workflow.HandleTurn(state, "I want a 50 ml PP jar with screw cap, minimal style", matcher)
	require.NoError(t, err)
	require.Equal(t, 1, matcher.calls)

	msg, _, err := workflow.HandleTurn(state, "ok what now", matcher)
	require.NoError(t, err)

	assert.Equal(t, 4, state.Step)
	assert.Equal(t, workflow.KindTransition, msg.Kind)
	assert.Equal(t, 1, matcher.calls, "matcher must be consulted exactly once per session")
}

func advanceToStepFour(t *testing.T, state *models.SessionState, matcher workflow.BaselineMatcher) {
	t.Helper()
	_, _, err := workflow.HandleTurn(state, "I want a 50 ml PP jar with screw cap, minimal style", matcher)
	require.NoError(t, err)
	_, _, err = workflow.HandleTurn(state, "continue", matcher)
	require.NoError(t, err)
	require.Equal(t, 4, state.Step)
}

func TestStepFourPromptsForFirstImage(t *testing.T) {
	state := models.NewSessionState("s1")
	matcher := &stubMatcher{}
	advanceToStepFour(t, state, matcher)

	msg, flags, err := workflow.HandleTurn(state, "let's see it", matcher)
	require.NoError(t, err)
	assert.Contains(t, msg.Text, "generate the first 2D concept image")
	assert.True(t, flags.CanGenerateImage)
	assert.False(t, flags.CanIterateImage)
}

func TestLockFlow(t *testing.T) {
	state := models.NewSessionState("s1")
	matcher := &stubMatcher{}
	advanceToStepFour(t, state, matcher)
	state.Images = append(state.Images, models.ImageVersion{ImageID: "img-1", Version: 1})

	msg, flags, err := workflow.HandleTurn(state, "this looks final, lock it", matcher)
	require.NoError(t, err)
	assert.Equal(t, 5, state.Step)
	assert.Equal(t, models.LockAsked, state.LockPhase)
	assert.Equal(t, workflow.LockQuestion, msg.Text)
	assert.Equal(t, workflow.KindDecision, msg.Kind)
	assert.True(t, flags.CanLock)

	msg, flags, err = workflow.HandleTurn(state, "confirm", matcher)
	require.NoError(t, err)
	assert.Equal(t, 6, state.Step)
	assert.True(t, state.Locked())
	assert.Equal(t, workflow.KindTransition, msg.Kind)
	assert.True(t, flags.CanGenerateCad)
	assert.False(t, flags.CanIterateImage)
}

func TestNonConfirmReplyStaysAtStepFive(t *testing.T) {
	state := models.NewSessionState("s1")
	matcher := &stubMatcher{}
	advanceToStepFour(t, state, matcher)
	state.Images = append(state.Images, models.ImageVersion{ImageID: "img-1", Version: 1})

	_, _, err := workflow.HandleTurn(state, "lock it", matcher)
	require.NoError(t, err)

	msg, flags, err := workflow.HandleTurn(state, "hmm not sure, maybe a taller cap", matcher)
	require.NoError(t, err)
	assert.Equal(t, 5, state.Step)
	assert.False(t, state.Locked())
	assert.Equal(t, workflow.KindInfo, msg.Kind)
	assert.False(t, flags.CanGenerateCad)
}

func TestIterationAcknowledgedAtStepFour(t *testing.T) {
	state := models.NewSessionState("s1")
	matcher := &stubMatcher{}
	advanceToStepFour(t, state, matcher)
	state.Images = append(state.Images, models.ImageVersion{ImageID: "img-1", Version: 1})

	msg, flags, err := workflow.HandleTurn(state, "make the cap a bit wider", matcher)
	require.NoError(t, err)
	assert.Equal(t, 4, state.Step)
	assert.Equal(t, workflow.KindInfo, msg.Kind)
	assert.True(t, flags.CanIterateImage)
}

func TestStepNeverRegresses(t *testing.T) {
	state := models.NewSessionState("s1")
	matcher := &stubMatcher{}
	messages := []string{
		"I want a 50 ml PP jar with screw cap, minimal style",
		"continue",
		"make it taller",
		"lock it in",
		"confirm",
		"anything else?",
		"and now?",
	}
	state.Images = append(state.Images, models.ImageVersion{ImageID: "img-1", Version: 1})

	prev := state.Step
	for _, m := range messages {
		_, _, err := workflow.HandleTurn(state, m, matcher)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, state.Step, prev, "step regressed on message %q", m)
		prev = state.Step
	}
}

func TestStepSixAdvancesOnceCadCodeExists(t *testing.T) {
	state := models.NewSessionState("s1")
	matcher := &stubMatcher{}
	advanceToStepFour(t, state, matcher)
	state.Images = append(state.Images, models.ImageVersion{ImageID: "img-1", Version: 1})
	_, _, err := workflow.HandleTurn(state, "lock", matcher)
	require.NoError(t, err)
	_, _, err = workflow.HandleTurn(state, "yes", matcher)
	require.NoError(t, err)
	require.Equal(t, 6, state.Step)

	state.CadCode = "import cadquery as cq"
	_, flags, err := workflow.HandleTurn(state, "status?", matcher)
	require.NoError(t, err)
	assert.Equal(t, 7, state.Step)
	assert.False(t, flags.CanGenerateCad)
}

func TestHistoryRecordsBothRoles(t *testing.T) {
	state := models.NewSessionState("s1")
	matcher := &stubMatcher{}

	_, _, err := workflow.HandleTurn(state, "I want a jar", matcher)
	require.NoError(t, err)
	require.Len(t, state.History, 2)
	assert.Equal(t, "user", state.History[0].Role)
	assert.Equal(t, "assistant", state.History[1].Role)
}

func TestMessageKindPolishable(t *testing.T) {
	assert.True(t, workflow.KindPrompt.Polishable())
	assert.True(t, workflow.KindTransition.Polishable())
	assert.True(t, workflow.KindInfo.Polishable())
	assert.False(t, workflow.KindDecision.Polishable())
}
