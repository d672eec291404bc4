package redis

import "fmt"

// accountsKey returns the Redis key for the accounts document
func accountsKey(prefix string) string {
	return fmt.Sprintf("%s:accounts", prefix)
}

// gamesKey returns the Redis key for the games document
func gamesKey(prefix string) string {
	return fmt.Sprintf("%s:games", prefix)
}

// revisionKey counts saves of a document, for operators inspecting the store
func revisionKey(docKey string) string {
	return docKey + ":rev"
}
