package nats

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	SubjectPrefix = "personality"

	EventAction = "event"
	TickAction  = "tick"
	JoinAction  = "join"
	LeaveAction = "leave"
	EndAction   = "end"
	StateAction = "state"
)

var subjectTokenReplacer = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_", "\t", "_")

// SubjectToken makes a player name usable as a single subject token.
func SubjectToken(s string) string {
	return subjectTokenReplacer.Replace(s)
}

func GameSubject(gameID uint64, action string) string {
	return fmt.Sprintf("%s.%d.%s", SubjectPrefix, gameID, action)
}

// WildcardSubject matches an action across all games.
func WildcardSubject(action string) string {
	return fmt.Sprintf("%s.*.%s", SubjectPrefix, action)
}

func StateSubject(gameID uint64, playerName string) string {
	return fmt.Sprintf("%s.%d.%s.%s", SubjectPrefix, gameID, StateAction, SubjectToken(playerName))
}

// ParseSubject returns the game id and the action of an inbound subject.
func ParseSubject(subject string) (uint64, string, error) {
	tokens := strings.Split(subject, ".")
	if len(tokens) != 3 || tokens[0] != SubjectPrefix {
		return 0, "", fmt.Errorf("Invalid subject %s", subject)
	}
	gameID, err := strconv.ParseUint(tokens[1], 10, 64)
	if err != nil || gameID == 0 {
		return 0, "", fmt.Errorf("Invalid game id in subject %s", subject)
	}
	return gameID, tokens[2], nil
}
