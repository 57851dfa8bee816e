package cache

import (
	"fmt"
	"strings"

	"github.com/trigg3rX/labelmarket-backend/pkg/env"
)

// Query keys. Addresses are normalized so that equivalent spellings share an entry.
const (
	KeyTasksAll       = "tasks:all"
	KeySubmissionsAll = "submissions:all"
	KeyProfilesAll    = "profiles:all"
)

func KeyTask(taskID uint64) string {
	return fmt.Sprintf("task:%d", taskID)
}

func KeyTasksByRequester(addr string) string {
	return "tasks:byRequester:" + addrKey(addr)
}

func KeySubmissionsByTask(taskID uint64) string {
	return fmt.Sprintf("submissions:byTask:%d", taskID)
}

func KeySubmissionsByLabeler(addr string) string {
	return "submissions:byLabeler:" + addrKey(addr)
}

func KeyProfile(addr string) string {
	return "profile:" + addrKey(addr)
}

func KeyStakesByOwner(addr string) string {
	return "stakes:byOwner:" + addrKey(addr)
}

func KeyReputation(addr string) string {
	return "reputation:" + addrKey(addr)
}

// NormalizeKey rewrites a key whose last segment is an address into the form the
// Key* helpers produce.
func NormalizeKey(key string) string {
	i := strings.LastIndex(key, ":")
	if i < 0 || !env.IsValidObjectID(key[i+1:]) {
		return key
	}
	return key[:i+1] + addrKey(key[i+1:])
}

func addrKey(addr string) string {
	return strings.ToLower(env.NormalizeObjectID(addr))
}
