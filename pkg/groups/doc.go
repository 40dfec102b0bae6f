// Package groups implements scientific groups: user sets led by a
// single governor. The governor is created as a member, cannot be
// removed from the membership, and can only be replaced by another
// member. Membership mutations hit the relational store immediately
// rather than waiting for an entity Update.
package groups
