// Package revocation tracks token families that have been forcibly killed.
//
// A family lands here when its refresh token is replayed (suspected theft) or
// when the user logs out everywhere. Membership is checked before honoring
// any refresh; a revoked family can never mint tokens again, even if a live
// session record still exists for it.
package revocation
