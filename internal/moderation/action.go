package moderation

import (
	"fmt"
	"strconv"
	"strings"
)

type ActionKind string

const (
	ActionAccept ActionKind = "accept"
	ActionReject ActionKind = "reject"
	ActionBlock  ActionKind = "block"
)

// Action is an admin decision. Target is a suggestion id for accept and
// reject, and a user id for block.
type Action struct {
	Kind   ActionKind
	Target int64
}

func Accept(suggestionID int64) Action { return Action{Kind: ActionAccept, Target: suggestionID} }
func Reject(suggestionID int64) Action { return Action{Kind: ActionReject, Target: suggestionID} }
func Block(userID int64) Action        { return Action{Kind: ActionBlock, Target: userID} }

// Encode renders the action as inline button callback data.
func (a Action) Encode() string {
	return fmt.Sprintf("%s_%d", a.Kind, a.Target)
}

// DecodeAction parses callback data produced by Encode.
func DecodeAction(data string) (Action, error) {
	kind, target, ok := strings.Cut(strings.TrimSpace(data), "_")
	if !ok {
		return Action{}, validationError("Неизвестное действие.")
	}

	switch ActionKind(kind) {
	case ActionAccept, ActionReject, ActionBlock:
	default:
		return Action{}, validationError("Неизвестное действие.")
	}

	id, err := strconv.ParseInt(target, 10, 64)
	if err != nil || id <= 0 {
		return Action{}, validationError("Некорректный идентификатор в действии.")
	}

	return Action{Kind: ActionKind(kind), Target: id}, nil
}
