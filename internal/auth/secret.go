package auth

import "crypto/subtle"

// SecretsEqual compares a presented credential with the configured one in
// constant time. An empty configured secret never matches.
func SecretsEqual(presented, configured string) bool {
	if configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
}
