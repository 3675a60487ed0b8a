package chat

import "regexp"

// threadSeparator joins user and character keys into the thread id the agent
// uses to keep multi-turn context. Keys may not contain it, which keeps the
// derived id unique per (user, character) pair.
const threadSeparator = "_"

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.-]*$`)

// ThreadID derives the stable agent-side conversation key for a pair.
func ThreadID(userKey, characterKey string) string {
	return userKey + threadSeparator + characterKey
}

// ValidKey reports whether a user or character key is usable. The separator
// character is excluded from the alphabet on purpose.
func ValidKey(key string) bool {
	return keyPattern.MatchString(key)
}
