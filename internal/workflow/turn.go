package workflow

import (
	"strings"

	"pack-design-backend/internal/models"
)

// MessageKind tags every assistant message the turn handler produces.
// Decision messages are strict-protocol output and must never be rewritten
// by the tone-polish layer; everything else may be.
type MessageKind string

const (
	KindPrompt     MessageKind = "prompt"
	KindDecision   MessageKind = "decision"
	KindTransition MessageKind = "transition"
	KindInfo       MessageKind = "info"
)

// Polishable reports whether the LLM polish layer may rewrite the message.
func (k MessageKind) Polishable() bool {
	return k != KindDecision
}

// TurnMessage is the deterministic assistant response for one chat turn.
type TurnMessage struct {
	Kind MessageKind
	Text string
}

// TurnFlags are the capability flags derived from session state every turn.
// They are never stored.
type TurnFlags struct {
	CanGenerateImage  bool
	CanIterateImage   bool
	CanLock           bool
	CanGenerateCad    bool
	RequiredQuestions []string
}

// The two baseline-decision protocol strings. Tests and the polish-skip
// logic match on these literally; do not reword them.
const (
	BaselineSearchMessage     = "Searching for a similar baseline design…"
	BaselineNewConceptMessage = "No close baseline found. Creating a new concept."
)

// LockQuestion is the one-shot step-5 confirmation prompt.
const LockQuestion = "Lock the current design? Reply confirm to freeze it and enable CAD generation."

// BaselineMatcher supplies ranked catalog candidates for the step-3 decision.
// The state machine performs no I/O of its own; this is its only collaborator.
type BaselineMatcher interface {
	FindMatches(spec *models.DesignSpec, minScore, limit int) ([]models.BaselineMatch, error)
}

var confirmWords = []string{"yes", "confirm", "lock", "proceed", "go ahead", "approve", "confirmed"}
var lockSignals = []string{"lock", "final", "ready", "freeze"}

func isConfirm(message string) bool {
	return containsAny(strings.ToLower(message), confirmWords)
}

// Flags derives the capability flags from the current session state.
func Flags(state *models.SessionState) TurnFlags {
	return TurnFlags{
		CanGenerateImage:  state.Step >= 3 && len(state.Images) == 0,
		CanIterateImage:   state.Step >= 4 && len(state.Images) > 0 && !state.Locked(),
		CanLock:           state.Step == 5 && state.LockPhase != models.LockNotAsked,
		CanGenerateCad:    state.Step >= 6 && state.Locked() && state.CadCode == "",
		RequiredQuestions: state.RequiredQuestions,
	}
}

// HandleTurn advances the 7-step workflow for one user message. It mutates
// only the session state; the matcher is consulted exactly once per session,
// on first entry to step 3. The returned error can only come from the
// matcher; the state machine itself never fails.
func HandleTurn(state *models.SessionState, userMessage string, matcher BaselineMatcher) (TurnMessage, TurnFlags, error) {
	state.History = append(state.History, models.ChatMessage{Role: "user", Content: userMessage})
	UpdateSpecFromMessage(&state.Spec, userMessage)
	state.MissingFields = MissingFields(&state.Spec)
	state.RequiredQuestions = RequiredQuestionsForMissing(state.MissingFields)

	var msg TurnMessage

	if state.Step <= 2 {
		if len(state.MissingFields) > 0 {
			state.Step = 1
			text := "To continue, I need: " + strings.Join(state.MissingFields, ", ") + "."
			if len(state.RequiredQuestions) > 0 {
				limit := len(state.RequiredQuestions)
				if limit > 2 {
					limit = 2
				}
				text += " " + strings.Join(state.RequiredQuestions[:limit], " ")
			}
			msg = TurnMessage{Kind: KindPrompt, Text: text}
		} else {
			state.Step = 3
		}
	}

	switch {
	case msg.Text != "":
		// Intake prompt already produced; nothing further this turn.

	case state.Step == 3 && !state.BaselineDecisionDone():
		matches, err := matcher.FindMatches(&state.Spec, 2, 5)
		if err != nil {
			return TurnMessage{}, Flags(state), err
		}
		state.BaselineMatches = matches
		if state.BaselineAsset != nil {
			kept := false
			for _, m := range matches {
				if m.AssetRelPath == state.BaselineAsset.AssetRelPath {
					kept = true
					break
				}
			}
			if !kept {
				state.BaselineAsset = nil
			}
		}
		text := BaselineNewConceptMessage
		if len(matches) > 0 {
			text = BaselineSearchMessage
		}
		state.BaselineDecision = text
		state.BaselinePhase = models.BaselineDecided
		msg = TurnMessage{Kind: KindDecision, Text: text}

	case state.Step == 3:
		state.Step = 4
		msg = TurnMessage{
			Kind: KindTransition,
			Text: "Baseline decision is complete. Use Generate 2D Concept to create the first visual reference.",
		}

	case state.Step == 4:
		if len(state.Images) == 0 {
			msg = TurnMessage{
				Kind: KindPrompt,
				Text: "Please generate the first 2D concept image so we can start visual iteration.",
			}
		} else if containsAny(strings.ToLower(userMessage), lockSignals) {
			state.Step = 5
			state.LockPhase = models.LockAsked
			msg = TurnMessage{Kind: KindDecision, Text: LockQuestion}
		} else {
			msg = TurnMessage{
				Kind: KindInfo,
				Text: "I captured your iteration request. Use Iterate Design to refine the current 2D reference while preserving design consistency.",
			}
		}

	case state.Step == 5:
		switch {
		case state.LockPhase == models.LockNotAsked:
			state.LockPhase = models.LockAsked
			msg = TurnMessage{Kind: KindDecision, Text: LockQuestion}
		case state.LockPhase == models.LockAsked && isConfirm(userMessage):
			state.LockPhase = models.LockConfirmed
			state.Step = 6
			msg = TurnMessage{
				Kind: KindTransition,
				Text: "Design is locked. CAD generation is now enabled.",
			}
		default:
			msg = TurnMessage{
				Kind: KindInfo,
				Text: "Understood. Continue iterating or reply confirm when you are ready to lock the design.",
			}
		}

	case state.Step == 6:
		if state.CadCode != "" || state.CadStepFile != "" {
			state.Step = 7
			msg = TurnMessage{
				Kind: KindTransition,
				Text: "Final CAD output is available in Approve & CAD.",
			}
		} else {
			msg = TurnMessage{
				Kind: KindInfo,
				Text: "Design is locked. Use Generate CAD to produce the model.",
			}
		}

	case state.Step >= 7:
		msg = TurnMessage{Kind: KindInfo, Text: "Final CAD output is available."}
	}

	if msg.Text != "" {
		state.History = append(state.History, models.ChatMessage{Role: "assistant", Content: msg.Text})
	}

	return msg, Flags(state), nil
}
